package cluster

import (
	"sync"

	"github.com/Usub-development/uredis/client"
	"github.com/Usub-development/uredis/pool"
)

// node is one cluster member: a pooled set of Clients for user commands
// plus a single persistent mainClient reserved for routing operations
// (ASKING, post-MOVED warmup) so pooled connections are never disturbed
// by those. CLUSTER SLOTS during discovery does not use mainClient; it
// runs on a short-lived Client per seed that is closed afterwards.
// replicas is inert metadata — the replica addresses CLUSTER SLOTS
// reported for this master; the router never routes to a replica and
// nothing in it reads this field.
type node struct {
	host string
	port int

	mainMu     sync.Mutex
	mainClient *client.Client

	pool *pool.Pool

	replicas []addr
}

type addr struct {
	host string
	port int
}

func newNode(host string, port int, cfg Config) *node {
	return &node{
		host: host,
		port: port,
		pool: pool.New(pool.Config{
			Config: client.Config{
				Host:           host,
				Port:           port,
				Username:       cfg.Username,
				Password:       cfg.Password,
				ConnectTimeout: cfg.ConnectTimeout,
				IOTimeout:      cfg.IOTimeout,
			},
			Size: cfg.MaxConnectionsPerNode,
		}),
	}
}

func (n *node) close() {
	n.mainMu.Lock()
	if n.mainClient != nil {
		_ = n.mainClient.Close()
	}
	n.mainMu.Unlock()
	_ = n.pool.Close()
}
