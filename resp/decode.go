package resp

import (
	"strconv"

	"github.com/Usub-development/uredis/rediserr"
)

// Decoder is an incremental RESP-2 parser: Feed appends bytes, Next drains
// complete frames. It never blocks and never touches a socket — the caller
// (client.Client) owns the connection and pumps bytes in. Splitting a valid
// byte stream at any boundary and feeding the pieces in order yields the
// same sequence of frames as feeding it whole, because Next only advances
// its internal buffer once an entire frame (recursively, for arrays) has
// been located; an incomplete frame leaves the buffer untouched.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes to the decode buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Next returns the next complete frame if one is buffered. ok is false (and
// err is nil) when more bytes are needed. err is non-nil for a malformed
// frame, at which point the Decoder should be discarded along with the
// connection that fed it.
func (d *Decoder) Next() (Value, bool, error) {
	v, n, needMore, err := parseValue(d.buf, 0)
	if err != nil {
		return Value{}, false, err
	}
	if needMore {
		return Value{}, false, nil
	}
	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return v, true, nil
}

// parseValue attempts to parse one frame starting at off. On success it
// returns the value and the absolute offset just past the frame. If the
// buffer doesn't yet hold a complete frame, needMore is true and off/value
// are meaningless — callers must not consume any bytes in that case.
func parseValue(buf []byte, off int) (v Value, next int, needMore bool, err error) {
	if off >= len(buf) {
		return Value{}, 0, true, nil
	}
	switch buf[off] {
	case '+':
		line, end, ok := readLine(buf, off+1)
		if !ok {
			return Value{}, 0, true, nil
		}
		return NewSimpleString(string(line)), end, false, nil
	case '-':
		line, end, ok := readLine(buf, off+1)
		if !ok {
			return Value{}, 0, true, nil
		}
		return NewError(string(line)), end, false, nil
	case ':':
		line, end, ok := readLine(buf, off+1)
		if !ok {
			return Value{}, 0, true, nil
		}
		i, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "malformed integer frame: %q", line)
		}
		return NewInteger(i), end, false, nil
	case '$':
		return parseBulkString(buf, off)
	case '*':
		return parseArray(buf, off)
	default:
		return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "unrecognized leading byte %q", buf[off])
	}
}

func parseBulkString(buf []byte, off int) (Value, int, bool, error) {
	line, bodyStart, ok := readLine(buf, off+1)
	if !ok {
		return Value{}, 0, true, nil
	}
	length, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "malformed bulk string length: %q", line)
	}
	if length < -1 {
		return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "malformed bulk string length: %q", line)
	}
	if length == -1 {
		return NullValue, bodyStart, false, nil
	}
	end := bodyStart + int(length)
	if end+2 > len(buf) {
		return Value{}, 0, true, nil
	}
	if buf[end] != '\r' || buf[end+1] != '\n' {
		return Value{}, 0, false, rediserr.New(rediserr.Protocol, "missing CRLF after bulk string payload")
	}
	return NewBulkString(string(buf[bodyStart:end])), end + 2, false, nil
}

func parseArray(buf []byte, off int) (Value, int, bool, error) {
	line, cur, ok := readLine(buf, off+1)
	if !ok {
		return Value{}, 0, true, nil
	}
	count, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "malformed array length: %q", line)
	}
	if count < -1 {
		return Value{}, 0, false, rediserr.Newf(rediserr.Protocol, "malformed array length: %q", line)
	}
	if count == -1 {
		return NullValue, cur, false, nil
	}
	var elems []Value
	if count > 0 {
		elems = make([]Value, 0, count)
	}
	for i := int64(0); i < count; i++ {
		ev, next, needMore, everr := parseValue(buf, cur)
		if everr != nil {
			return Value{}, 0, false, everr
		}
		if needMore {
			return Value{}, 0, true, nil
		}
		elems = append(elems, ev)
		cur = next
	}
	return NewArray(elems), cur, false, nil
}

// readLine returns the bytes between start and the next CRLF, plus the
// offset just past that CRLF. ok is false if no CRLF is buffered yet.
func readLine(buf []byte, start int) ([]byte, int, bool) {
	for i := start; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[start:i], i + 2, true
		}
	}
	return nil, 0, false
}
