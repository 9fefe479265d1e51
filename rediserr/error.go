// Package rediserr defines the error taxonomy shared by every layer of the
// client: transport faults, malformed wire frames, and error replies from
// the store itself.
package rediserr

import "fmt"

// Category classifies a Error by where the fault originated.
type Category int

const (
	// Io covers transport faults: connect failure, short read/write,
	// timeouts, and a connection closed mid-reply. An Io error always
	// hard-closes the Client that produced it.
	Io Category = iota
	// Protocol covers malformed RESP, unexpected reply shapes from a typed
	// helper, arity mismatches, and out-of-range or unmapped slots.
	Protocol
	// ServerReply wraps a verbatim "-..." error reply from the store.
	ServerReply
)

func (c Category) String() string {
	switch c {
	case Io:
		return "io"
	case Protocol:
		return "protocol"
	case ServerReply:
		return "server_reply"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every blocking operation in this
// module. Message is preserved verbatim for ServerReply errors so callers
// (and the cluster router) can parse MOVED/ASK out of it.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("uredis: %s: %s", e.Category, e.Message)
}

// New builds a Error of the given category.
func New(cat Category, msg string) *Error {
	return &Error{Category: cat, Message: msg}
}

// Newf builds a Error of the given category with a formatted message.
func Newf(cat Category, format string, args ...interface{}) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// MessageOf returns the raw, unprefixed message of err if it is a
// *Error, and ok=false otherwise. Used by callers (the cluster router)
// that need to parse a ServerReply's verbatim text rather than Error()'s
// "uredis: category: message" rendering.
func MessageOf(err error) (string, bool) {
	re, ok := err.(*Error)
	if !ok {
		return "", false
	}
	return re.Message, true
}

// IsIO reports whether err is a Error of category Io.
func IsIO(err error) bool { return hasCategory(err, Io) }

// IsProtocol reports whether err is a Error of category Protocol.
func IsProtocol(err error) bool { return hasCategory(err, Protocol) }

// IsServerReply reports whether err is a Error of category ServerReply.
func IsServerReply(err error) bool { return hasCategory(err, ServerReply) }

func hasCategory(err error, cat Category) bool {
	re, ok := err.(*Error)
	if !ok {
		return false
	}
	return re.Category == cat
}
