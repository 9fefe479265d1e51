// Package pool implements a bounded pool of client.Clients to one
// endpoint, handed out with at-most-one in-flight command per Client.
//
// Grounded on the teacher's lib/pool/pool.go (activeCount + idles channel +
// waitingReqs), generalized to the four-part live_count/idle_queue/
// idle_sem/waiters_count shape from
// original_source/include/uredis/RedisClusterClient.h's Node and
// RedisClusterClient.cpp's acquire_client_for_node_locked /
// release_pooled_client.
package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/Usub-development/uredis/client"
	"github.com/Usub-development/uredis/rediserr"
)

// ErrClosed is returned by Acquire once the Pool has been closed.
var ErrClosed = errors.New("pool: closed")

// Config is a Client's endpoint configuration plus the pool size.
type Config struct {
	client.Config
	Size int
}

const DefaultSize = 4

func (cfg Config) withDefaults() Config {
	if cfg.Size < 1 {
		cfg.Size = DefaultSize
	}
	return cfg
}

// Pool is a bounded collection of Clients to one endpoint.
type Pool struct {
	cfg Config

	mu        sync.Mutex
	idleQueue chan *client.Client
	sem       chan struct{}
	liveCount int
	waiters   int
	closed    bool
}

// New returns an empty Pool for cfg. No connections are opened until
// Acquire or ConnectAll is called.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:       cfg,
		idleQueue: make(chan *client.Client, cfg.Size),
		sem:       make(chan struct{}, cfg.Size),
	}
}

// LiveCount reports the number of Clients currently owned by the pool,
// idle or checked out.
func (p *Pool) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveCount
}

// wakeOneLocked signals one waiter, if any is registered. Must be called
// with mu held.
func (p *Pool) wakeOneLocked() {
	if p.waiters > 0 {
		select {
		case p.sem <- struct{}{}:
		default:
		}
	}
}

// Acquire returns an idle Client, reusing one from the idle queue,
// dialing a fresh one if under the size bound, or waiting for a release
// otherwise.
func (p *Pool) Acquire(ctx context.Context) (*client.Client, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		select {
		case c := <-p.idleQueue:
			p.mu.Unlock()
			if c.Connected() && c.IsIdle() {
				return c, nil
			}
			// Stale: disconnected, or mid-command because a previous
			// caller leaked it. Account for its loss and loop.
			p.mu.Lock()
			p.liveCount--
			p.wakeOneLocked()
			p.mu.Unlock()
			continue
		default:
		}

		if p.liveCount < p.cfg.Size {
			p.liveCount++
			p.mu.Unlock()

			c := client.New(p.cfg.Config)
			if err := c.Connect(ctx); err != nil {
				p.mu.Lock()
				p.liveCount--
				p.wakeOneLocked()
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}

		p.waiters++
		p.mu.Unlock()

		select {
		case <-p.sem:
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
			continue
		case <-ctx.Done():
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
			return nil, rediserr.New(rediserr.Io, "pool acquire cancelled: "+ctx.Err().Error())
		}
	}
}

// Release returns c to the pool. faulty marks it as unusable (an I/O
// error occurred on it); a faulty, disconnected, or non-idle Client is
// closed and dropped from live_count instead of being requeued.
func (p *Pool) Release(c *client.Client, faulty bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		return
	}

	if faulty || !c.Connected() || !c.IsIdle() {
		p.liveCount--
		p.wakeOneLocked()
		p.mu.Unlock()
		_ = c.Close()
		return
	}

	select {
	case p.idleQueue <- c:
		p.wakeOneLocked()
		p.mu.Unlock()
	default:
		// Idle queue is already at its cap (== Size), so this should be
		// unreachable under the live_count bound; fail safe by dropping.
		p.liveCount--
		p.wakeOneLocked()
		p.mu.Unlock()
		_ = c.Close()
	}
}

// ConnectAll eagerly dials up to cfg.Size Clients and seeds the idle
// queue with them, stopping at the first connect failure. Used to
// prewarm a sentinel master pool or a cluster node pool right after
// discovery.
func (p *Pool) ConnectAll(ctx context.Context) error {
	p.mu.Lock()
	room := p.cfg.Size - p.liveCount
	if room <= 0 {
		p.mu.Unlock()
		return nil
	}
	p.liveCount += room
	p.mu.Unlock()

	for i := 0; i < room; i++ {
		c := client.New(p.cfg.Config)
		if err := c.Connect(ctx); err != nil {
			p.mu.Lock()
			p.liveCount -= room - i
			p.wakeOneLocked()
			p.mu.Unlock()
			return err
		}
		p.mu.Lock()
		p.idleQueue <- c
		p.wakeOneLocked()
		p.mu.Unlock()
	}
	return nil
}

// Close marks the pool closed and closes every idle Client. Clients
// already checked out are closed by their holder's next Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case c := <-p.idleQueue:
			_ = c.Close()
		default:
			return nil
		}
	}
}
