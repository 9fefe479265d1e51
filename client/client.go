// Package client implements the single-connection Client: the one place
// that owns a socket, runs the handshake, and enforces the exactly-one
// -command-in-flight discipline every higher layer (pool, sentinel,
// cluster) builds on.
//
// Grounded on original_source/src/uredis/RedisClient.cpp
// (connect/auth_and_select/send_and_read/read_one_reply) and on the
// teacher's redis/connection.Connection for the flags-plus-mutex shape,
// generalized from a server-side accepted connection to a client-side
// dialed one.
package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Usub-development/uredis/log"
	"github.com/Usub-development/uredis/rediserr"
	"github.com/Usub-development/uredis/resp"
)

// readChunkSize is the scratch buffer size for each socket read, per spec.
const readChunkSize = 64 * 1024

// Client is a single owned connection to one store endpoint.
type Client struct {
	cfg Config

	opMu sync.Mutex

	conn net.Conn
	dec  *resp.Decoder

	// connected/closing/closed are read from the cancellation-watcher
	// goroutine while the opMu holder is off doing socket I/O in a worker
	// goroutine, so they're atomics rather than plain bools guarded by opMu.
	connected atomic.Bool
	closing   atomic.Bool
	closed    atomic.Bool

	inFlight atomic.Bool
}

// New creates a disconnected Client for cfg. Call Connect before issuing
// commands.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Connected reports whether the Client currently holds a live connection.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// IsIdle reports whether the Client is connected, not closing, and has no
// command in flight — the condition a Pool checks before handing a Client
// back out.
func (c *Client) IsIdle() bool {
	return c.connected.Load() && !c.closing.Load() && !c.inFlight.Load()
}

// Connect dials the endpoint, applies the connect timeout, and runs the
// AUTH/SELECT handshake. Connecting an already-connected Client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Warnf("client: connect %s failed: %v", addr, err)
		return rediserr.Newf(rediserr.Io, "connect %s: %v", addr, err)
	}

	c.conn = conn
	c.dec = resp.NewDecoder()
	c.closing.Store(false)
	c.closed.Store(false)
	c.connected.Store(true)

	if err := c.authAndSelectLocked(); err != nil {
		c.hardClose()
		return err
	}

	log.Debugf("client: connected to %s", addr)
	return nil
}

func (c *Client) authAndSelectLocked() error {
	if c.cfg.Password != nil {
		args := []string{*c.cfg.Password}
		if c.cfg.Username != nil {
			args = []string{*c.cfg.Username, *c.cfg.Password}
		}
		v, err := c.sendAndReadLocked("AUTH", args)
		if err != nil {
			return err
		}
		if !isOK(v) {
			return rediserr.New(rediserr.Protocol, "AUTH: unexpected reply")
		}
	}

	if c.cfg.DB != 0 {
		v, err := c.sendAndReadLocked("SELECT", []string{strconv.Itoa(c.cfg.DB)})
		if err != nil {
			return err
		}
		if !isOK(v) {
			return rediserr.New(rediserr.Protocol, "SELECT: unexpected reply")
		}
	}
	return nil
}

func isOK(v resp.Value) bool {
	s, ok := v.AsString()
	return ok && s == "OK"
}

// Command sends verb/args and returns the first complete reply, or an
// error. Exactly one Command may be in flight at a time; callers sharing a
// Client must not interleave calls — the internal gate simply serializes
// them, it does not queue fairly.
func (c *Client) Command(ctx context.Context, verb string, args ...string) (resp.Value, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.connected.Load() || c.closing.Load() {
		return resp.Value{}, rediserr.New(rediserr.Io, "client not connected")
	}

	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	done := make(chan struct{})
	var v resp.Value
	var err error
	go func() {
		v, err = c.sendAndReadLocked(verb, args)
		close(done)
	}()

	// The worker goroutine above is the sole reader/writer of c.conn/c.dec
	// for the duration of this call. This goroutine only ever calls
	// hardClose, which is CAS-guarded and only ever touches c.conn.Close()
	// — documented safe to call concurrently with a blocked Read/Write, so
	// there's no data race even though two goroutines are "live" at once.
	select {
	case <-done:
		return v, err
	case <-ctx.Done():
		// Spec: cancellation mid-command is a hard close of this Client —
		// the caller cannot reason about partially transmitted bytes.
		c.hardClose()
		<-done
		return resp.Value{}, rediserr.New(rediserr.Io, "command cancelled: "+ctx.Err().Error())
	}
}

func (c *Client) sendAndReadLocked(verb string, args []string) (resp.Value, error) {
	frame := resp.Encode(verb, args)

	off := 0
	for off < len(frame) {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
			c.hardClose()
			return resp.Value{}, rediserr.Newf(rediserr.Io, "set write deadline: %v", err)
		}
		n, err := c.conn.Write(frame[off:])
		if err != nil || n <= 0 {
			c.hardClose()
			return resp.Value{}, rediserr.Newf(rediserr.Io, "write failed: %v", err)
		}
		off += n
	}

	return c.readOneReplyLocked()
}

func (c *Client) readOneReplyLocked() (resp.Value, error) {
	scratch := make([]byte, readChunkSize)
	for {
		v, ok, err := c.dec.Next()
		if err != nil {
			c.hardClose()
			return resp.Value{}, err
		}
		if ok {
			if v.Kind == resp.Error {
				return resp.Value{}, rediserr.New(rediserr.ServerReply, v.Str)
			}
			return v, nil
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
			c.hardClose()
			return resp.Value{}, rediserr.Newf(rediserr.Io, "set read deadline: %v", err)
		}
		n, err := c.conn.Read(scratch)
		if err != nil || n <= 0 {
			c.hardClose()
			return resp.Value{}, rediserr.Newf(rediserr.Io, "read failed: %v", err)
		}
		c.dec.Feed(scratch[:n])
	}
}

// hardClose is the single place every I/O fault and every terminal
// transition funnels through: it shuts the socket down and marks the Client
// closing/disconnected. Only an explicit Connect, which dials a new socket,
// brings it back to connected. Guarded by closed
// so it's safe to call from both the command worker goroutine (on an I/O
// error) and a racing cancellation watcher — conn.Close is documented safe
// to call concurrently with a blocked Read/Write on the same conn.
func (c *Client) hardClose() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.closing.Store(true)
	c.connected.Store(false)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Close terminates the Client. Idempotent.
func (c *Client) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.hardClose()
	return nil
}

// Config returns the Client's endpoint configuration.
func (c *Client) Config() Config { return c.cfg }

func (c *Client) String() string {
	return fmt.Sprintf("client(%s:%d)", c.cfg.Host, c.cfg.Port)
}
