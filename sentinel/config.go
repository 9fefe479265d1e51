// Package sentinel resolves the current master of a sentinel-supervised
// master/replica pair and fronts it with a re-resolving connection pool.
//
// Grounded on original_source/include/uredis/RedisSentinel.h +
// RedisSentinel.cpp (resolve_master_from_sentinel) and
// RedisSentinelPool.h/.cpp (ensure_connected_locked / command's
// at-most-once retry), translated from AsyncMutex-guarded coroutines to a
// sync.Mutex-guarded Pool snapshot-and-release pattern.
package sentinel

import (
	"time"

	"github.com/Usub-development/uredis/client"
)

// Node is one sentinel endpoint.
type Node struct {
	Host string
	Port int

	Username *string
	Password *string
}

// Config describes a master name, its sentinel quorum, and the pool built
// around whichever node currently holds the master role.
type Config struct {
	MasterName string
	Sentinels  []Node

	ConnectTimeout time.Duration
	IOTimeout      time.Duration

	// BaseRedis carries the auth/db/timeout template applied to the
	// resolved master; Host/Port on it are ignored and overwritten.
	BaseRedis client.Config

	PoolSize int
}

const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultIOTimeout      = 3 * time.Second
	DefaultPoolSize       = 4
)

func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = DefaultPoolSize
	}
	return cfg
}
