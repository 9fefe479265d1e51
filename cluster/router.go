package cluster

import (
	"context"
	"strings"
	"sync"

	"github.com/Usub-development/uredis/client"
	"github.com/Usub-development/uredis/internal/crc16"
	"github.com/Usub-development/uredis/internal/idgen"
	"github.com/Usub-development/uredis/log"
	"github.com/Usub-development/uredis/rediserr"
	"github.com/Usub-development/uredis/resp"
)

const slotCount = 16384

// Router discovers the slot-to-node map of a sharded cluster, routes
// commands to the owning node, follows MOVED/ASK redirections, and falls
// back to single-node mode when the target reports cluster support
// disabled.
type Router struct {
	cfg Config

	// mu guards nodes/slotToNode/standalone — the routing state touched
	// by both discovery and every in-flight command.
	mu         sync.Mutex
	nodes      []*node
	slotToNode [slotCount]int32
	standalone bool

	// initMu/initDone/initErr implement single-flight discovery: the
	// first caller runs discover() and closes initDone; everyone else
	// (already waiting, or arriving after) just waits on initDone and
	// reads the one stored result.
	initMu      sync.Mutex
	initStarted bool
	initDone    chan struct{}
	initErr     error

	// corr mints one correlation ID per discovery run, shared by that
	// run's log lines so they can be grepped together, plus a fresh ID for
	// each unreachable-MOVED-target warning.
	corr *idgen.Generator
}

// New returns a Router that has not yet run discovery.
func New(cfg Config) *Router {
	r := &Router{cfg: cfg.withDefaults(), corr: idgen.New("cluster")}
	for i := range r.slotToNode {
		r.slotToNode[i] = -1
	}
	return r
}

// Connect runs discovery exactly once, no matter how many callers invoke
// it concurrently; every caller observes the same result.
func (r *Router) Connect(ctx context.Context) error {
	r.initMu.Lock()
	if r.initStarted {
		done := r.initDone
		r.initMu.Unlock()
		<-done
		return r.initErr
	}
	r.initStarted = true
	r.initDone = make(chan struct{})
	r.initMu.Unlock()

	err := r.discover(ctx)
	r.initErr = err
	close(r.initDone)
	return err
}

const clusterDisabledPhrase = "cluster support disabled"

func (r *Router) discover(ctx context.Context) error {
	if len(r.cfg.Seeds) == 0 {
		return rediserr.New(rediserr.Protocol, "cluster: seeds list is empty")
	}

	cid := r.corr.Next()

	for _, seed := range r.cfg.Seeds {
		mc := client.New(client.Config{
			Host:           seed.Host,
			Port:           seed.Port,
			Username:       r.cfg.Username,
			Password:       r.cfg.Password,
			ConnectTimeout: r.cfg.ConnectTimeout,
			IOTimeout:      r.cfg.IOTimeout,
		})
		if err := mc.Connect(ctx); err != nil {
			log.Warnf("cluster[%s]: seed %s:%d connect failed: %v", cid, seed.Host, seed.Port, err)
			continue
		}

		v, err := mc.Command(ctx, "CLUSTER", "SLOTS")
		if err != nil {
			if rediserr.IsServerReply(err) && strings.Contains(strings.ToLower(err.Error()), clusterDisabledPhrase) {
				_ = mc.Close()
				r.enterStandalone()
				r.prewarmAll(ctx)
				log.Infof("cluster[%s]: standalone fallback engaged via seed %s:%d", cid, seed.Host, seed.Port)
				return nil
			}
			log.Warnf("cluster[%s]: CLUSTER SLOTS on %s:%d failed: %v", cid, seed.Host, seed.Port, err)
			_ = mc.Close()
			continue
		}

		ranges, ok := v.AsArray()
		if !ok {
			_ = mc.Close()
			continue
		}

		r.applySlotRanges(ranges)
		_ = mc.Close()
		r.prewarmAll(ctx)
		log.Infof("cluster[%s]: discovery ok via seed %s:%d", cid, seed.Host, seed.Port)
		return nil
	}

	return rediserr.New(rediserr.Io, "cluster: CLUSTER SLOTS failed on all seeds")
}

func (r *Router) enterStandalone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.nodes) == 0 {
		for _, seed := range r.cfg.Seeds {
			r.nodes = append(r.nodes, newNode(seed.Host, seed.Port, r.cfg))
		}
	}
	for i := range r.slotToNode {
		r.slotToNode[i] = 0
	}
	r.standalone = true
}

func (r *Router) applySlotRanges(ranges []resp.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes = r.nodes[:0]
	for i := range r.slotToNode {
		r.slotToNode[i] = -1
	}

	for _, rangeVal := range ranges {
		rangeArr, ok := rangeVal.AsArray()
		if !ok || len(rangeArr) < 3 {
			continue
		}
		start, ok1 := rangeArr[0].AsInt()
		end, ok2 := rangeArr[1].AsInt()
		if !ok1 || !ok2 {
			continue
		}

		masterIdx, ok := r.ensureNodeFromInfoLocked(rangeArr[2])
		if !ok {
			continue
		}
		master := r.nodes[masterIdx]
		master.replicas = master.replicas[:0]
		for _, replicaVal := range rangeArr[3:] {
			replicaIdx, ok := r.ensureNodeFromInfoLocked(replicaVal)
			if !ok {
				continue
			}
			replica := r.nodes[replicaIdx]
			master.replicas = append(master.replicas, addr{host: replica.host, port: replica.port})
		}

		if start < 0 {
			start = 0
		}
		if end > slotCount-1 {
			end = slotCount - 1
		}
		for s := start; s <= end; s++ {
			r.slotToNode[s] = int32(masterIdx)
		}
	}
}

// ensureNodeFromInfoLocked decodes a [host, port, ...] info entry from a
// CLUSTER SLOTS reply and ensures a node exists for it. Must be called
// with mu held.
func (r *Router) ensureNodeFromInfoLocked(info resp.Value) (int, bool) {
	arr, ok := info.AsArray()
	if !ok || len(arr) < 2 {
		return 0, false
	}
	host, hok := arr[0].AsString()
	portI, pok := arr[1].AsInt()
	if !hok || !pok || portI <= 0 || portI > 65535 {
		return 0, false
	}
	return r.ensureNodeLocked(host, int(portI)), true
}

// ensureNodeLocked returns the index of the node for host:port, creating
// it if necessary. Must be called with mu held.
func (r *Router) ensureNodeLocked(host string, port int) int {
	for i, n := range r.nodes {
		if n.host == host && n.port == port {
			return i
		}
	}
	r.nodes = append(r.nodes, newNode(host, port, r.cfg))
	return len(r.nodes) - 1
}

func (r *Router) prewarmAll(ctx context.Context) {
	r.mu.Lock()
	nodes := make([]*node, len(r.nodes))
	copy(nodes, r.nodes)
	r.mu.Unlock()

	for _, n := range nodes {
		if err := n.pool.ConnectAll(ctx); err != nil {
			log.Warnf("cluster: prewarm %s:%d failed: %v", n.host, n.port, err)
		}
	}
}

func (r *Router) nodeForKey(key string) (*node, error) {
	slot := crc16.Slot(key)
	return r.nodeForSlot(slot)
}

func (r *Router) nodeForSlot(slot int) (*node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.nodes) == 0 {
		return nil, rediserr.New(rediserr.Protocol, "cluster: no nodes for slot")
	}
	idx := r.slotToNode[slot]
	if idx < 0 || int(idx) >= len(r.nodes) {
		return nil, rediserr.New(rediserr.Protocol, "cluster: slot mapping is empty")
	}
	return r.nodes[idx], nil
}

func (r *Router) anyNode() (*node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.nodes) == 0 {
		return nil, rediserr.New(rediserr.Protocol, "cluster: no nodes")
	}
	return r.nodes[0], nil
}

// ensureMainClient returns the persistent routing connection for
// host:port, creating the node and/or dialing the connection if
// necessary.
func (r *Router) ensureMainClient(ctx context.Context, host string, port int) (*client.Client, error) {
	r.mu.Lock()
	idx := r.ensureNodeLocked(host, port)
	n := r.nodes[idx]
	r.mu.Unlock()

	n.mainMu.Lock()
	defer n.mainMu.Unlock()
	if n.mainClient != nil && n.mainClient.Connected() {
		return n.mainClient, nil
	}

	c := client.New(client.Config{
		Host:           host,
		Port:           port,
		Username:       r.cfg.Username,
		Password:       r.cfg.Password,
		ConnectTimeout: r.cfg.ConnectTimeout,
		IOTimeout:      r.cfg.IOTimeout,
	})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	n.mainClient = c
	return c, nil
}

func (r *Router) applyMoved(ctx context.Context, redir redirection) {
	if redir.slot < 0 || redir.slot >= slotCount {
		return
	}
	if _, err := r.ensureMainClient(ctx, redir.host, redir.port); err != nil {
		log.Warnf("cluster[%s]: MOVED target %s:%d unreachable: %v", r.corr.Next(), redir.host, redir.port, err)
		return
	}
	r.mu.Lock()
	idx := r.ensureNodeLocked(redir.host, redir.port)
	r.slotToNode[redir.slot] = int32(idx)
	r.mu.Unlock()
}

// Command routes verb/args by args[0]'s slot (or to any node if args is
// empty), following MOVED/ASK redirections up to MaxRedirections times.
// In standalone mode every key routes to node 0 and MOVED/ASK handling is
// inert, because the store will never emit them.
func (r *Router) Command(ctx context.Context, verb string, args ...string) (resp.Value, error) {
	if err := r.Connect(ctx); err != nil {
		return resp.Value{}, err
	}

	var key string
	hasKey := len(args) > 0
	if hasKey {
		key = args[0]
	}

	for attempt := 0; attempt < r.cfg.MaxRedirections; attempt++ {
		var n *node
		var err error
		if hasKey {
			n, err = r.nodeForKey(key)
		} else {
			n, err = r.anyNode()
		}
		if err != nil {
			return resp.Value{}, err
		}

		c, err := n.pool.Acquire(ctx)
		if err != nil {
			return resp.Value{}, err
		}

		v, cmdErr := c.Command(ctx, verb, args...)
		if cmdErr == nil {
			n.pool.Release(c, false)
			return v, nil
		}
		if !rediserr.IsServerReply(cmdErr) {
			n.pool.Release(c, true)
			return resp.Value{}, cmdErr
		}
		n.pool.Release(c, false)

		msg, _ := rediserr.MessageOf(cmdErr)
		redir, ok := parseRedirection(msg)
		if !ok {
			return resp.Value{}, cmdErr
		}

		switch redir.kind {
		case redirMoved:
			r.applyMoved(ctx, redir)
			continue
		case redirAsk:
			v2, err2 := r.retryAsk(ctx, redir, verb, args)
			if err2 == nil {
				return v2, nil
			}
			if again, ok := errIsMovedAgain(err2); ok {
				r.applyMoved(ctx, again)
				continue
			}
			return resp.Value{}, err2
		default:
			return resp.Value{}, cmdErr
		}
	}

	return resp.Value{}, rediserr.New(rediserr.Protocol, "too many redirections")
}

// retryAsk sends ASKING on the target's main client then retries the
// original command on that same connection once, per spec's ASK flow.
func (r *Router) retryAsk(ctx context.Context, redir redirection, verb string, args []string) (resp.Value, error) {
	target, err := r.ensureMainClient(ctx, redir.host, redir.port)
	if err != nil {
		return resp.Value{}, err
	}
	_, _ = target.Command(ctx, "ASKING")
	return target.Command(ctx, verb, args...)
}

// errIsMovedAgain reports whether err is a ServerReply carrying a MOVED
// redirection (the one shape the ASK flow forwards to the outer retry
// loop instead of returning directly).
func errIsMovedAgain(err error) (redirection, bool) {
	if !rediserr.IsServerReply(err) {
		return redirection{}, false
	}
	msg, _ := rediserr.MessageOf(err)
	redir, ok := parseRedirection(msg)
	if !ok || redir.kind != redirMoved {
		return redirection{}, false
	}
	return redir, true
}

// Topology is a read-only snapshot of the router's routing state, useful
// for diagnostics and tests.
type Topology struct {
	Standalone  bool
	NodeCount   int
	SlotsMapped int
}

// Topology returns a snapshot of the router's current routing state.
func (r *Router) Topology() Topology {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapped := 0
	for _, idx := range r.slotToNode {
		if idx >= 0 {
			mapped++
		}
	}
	return Topology{
		Standalone:  r.standalone,
		NodeCount:   len(r.nodes),
		SlotsMapped: mapped,
	}
}

// Close closes every node's pool and main client.
func (r *Router) Close() error {
	r.mu.Lock()
	nodes := make([]*node, len(r.nodes))
	copy(nodes, r.nodes)
	r.mu.Unlock()

	for _, n := range nodes {
		n.close()
	}
	return nil
}
