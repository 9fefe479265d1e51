package client

import "time"

// Config describes one endpoint and the handshake/timeout policy used to
// talk to it. Mirrors original_source/include/uredis/RedisClient.h's
// RedisConfig.
type Config struct {
	Host string
	Port int

	Username *string
	Password *string

	// DB is the logical database index selected after connecting, via
	// SELECT. 0 (the default) skips SELECT entirely.
	DB int

	ConnectTimeout time.Duration
	IOTimeout      time.Duration
}

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultIOTimeout      = 5 * time.Second
)

// withDefaults returns a copy of cfg with zero-value timeouts replaced by
// their defaults.
func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	return cfg
}
