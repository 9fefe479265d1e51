package sentinel

import (
	"context"
	"sync"

	"github.com/Usub-development/uredis/client"
	"github.com/Usub-development/uredis/internal/idgen"
	"github.com/Usub-development/uredis/log"
	"github.com/Usub-development/uredis/pool"
	"github.com/Usub-development/uredis/rediserr"
	"github.com/Usub-development/uredis/resp"
)

// Pool lazily resolves the current master and owns a client pool to it,
// re-resolving once on I/O failure. Grounded on
// original_source/src/uredis/RedisSentinelPool.cpp's
// ensure_connected_locked/command.
type Pool struct {
	cfg Config

	mu         sync.Mutex
	masterPool *pool.Pool
	connected  bool

	corr *idgen.Generator
}

// New returns an unconnected sentinel Pool for cfg.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg.withDefaults(), corr: idgen.New("sentinel")}
}

// Connect resolves the master and connects a pool to it. A no-op if
// already connected.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureConnectedLocked(ctx)
}

func (p *Pool) ensureConnectedLocked(ctx context.Context) error {
	if p.connected && p.masterPool != nil {
		return nil
	}

	cid := p.corr.Next()

	masterCfg, err := ResolveMaster(ctx, p.cfg)
	if err != nil {
		log.Warnf("sentinel[%s]: resolve master %q failed: %v", cid, p.cfg.MasterName, err)
		return err
	}

	mp := pool.New(pool.Config{Config: masterCfg, Size: p.cfg.PoolSize})
	if err := mp.ConnectAll(ctx); err != nil {
		_ = mp.Close()
		log.Warnf("sentinel[%s]: connect to master %s:%d failed: %v", cid, masterCfg.Host, masterCfg.Port, err)
		return err
	}

	log.Infof("sentinel[%s]: master %q resolved to %s:%d", cid, p.cfg.MasterName, masterCfg.Host, masterCfg.Port)
	p.masterPool = mp
	p.connected = true
	return nil
}

// MasterClient is a Client checked out via GetMasterClient, bundled with
// the specific master Pool it must be released back to — the master pool
// can be swapped out by a concurrent re-resolve between acquire and
// release, so the release path can't just reread p.masterPool.
type MasterClient struct {
	pool   *pool.Pool
	Client *client.Client
}

// Release returns the Client to the Pool it was acquired from.
func (mc *MasterClient) Release(faulty bool) {
	mc.pool.Release(mc.Client, faulty)
}

// GetMasterClient checks out a pooled Client to the current master,
// resolving first if necessary.
func (p *Pool) GetMasterClient(ctx context.Context) (*MasterClient, error) {
	p.mu.Lock()
	if err := p.ensureConnectedLocked(ctx); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	mp := p.masterPool
	p.mu.Unlock()

	c, err := mp.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &MasterClient{pool: mp, Client: c}, nil
}

// Command ensures the master pool is connected, forwards verb/args to it,
// and on an Io failure drops the pool, re-resolves the master exactly
// once, and retries. Any other error, or a second failure, is returned
// as-is.
func (p *Pool) Command(ctx context.Context, verb string, args ...string) (resp.Value, error) {
	p.mu.Lock()
	if err := p.ensureConnectedLocked(ctx); err != nil {
		p.mu.Unlock()
		return resp.Value{}, err
	}
	mp := p.masterPool
	p.mu.Unlock()

	v, err := forward(ctx, mp, verb, args)
	if err == nil {
		return v, nil
	}
	if !rediserr.IsIO(err) {
		return resp.Value{}, err
	}

	log.Warnf("sentinel: command %s failed with an io error, re-resolving master: %v", verb, err)
	p.mu.Lock()
	p.connected = false
	if p.masterPool != nil {
		_ = p.masterPool.Close()
		p.masterPool = nil
	}
	if reErr := p.ensureConnectedLocked(ctx); reErr != nil {
		p.mu.Unlock()
		return resp.Value{}, err
	}
	mp = p.masterPool
	p.mu.Unlock()

	return forward(ctx, mp, verb, args)
}

func forward(ctx context.Context, mp *pool.Pool, verb string, args []string) (resp.Value, error) {
	c, err := mp.Acquire(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	v, err := c.Command(ctx, verb, args...)
	mp.Release(c, err != nil && rediserr.IsIO(err))
	return v, err
}

// Close closes the underlying master pool, if any.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.masterPool == nil {
		return nil
	}
	err := p.masterPool.Close()
	p.masterPool = nil
	p.connected = false
	return err
}
