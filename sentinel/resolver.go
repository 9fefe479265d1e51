package sentinel

import (
	"context"
	"strconv"

	"github.com/Usub-development/uredis/client"
	"github.com/Usub-development/uredis/log"
	"github.com/Usub-development/uredis/rediserr"
)

// ResolveMaster iterates cfg's sentinels in order, asking each
// SENTINEL get-master-addr-by-name, and returns a client.Config for the
// resolved master built from cfg.BaseRedis with host/port overridden. It
// returns Io if every sentinel fails to connect, reply, or parse.
func ResolveMaster(ctx context.Context, cfg Config) (client.Config, error) {
	if len(cfg.Sentinels) == 0 {
		return client.Config{}, rediserr.New(rediserr.Io, "sentinel: no sentinels configured")
	}

	for _, node := range cfg.Sentinels {
		sentCfg := client.Config{
			Host:           node.Host,
			Port:           node.Port,
			Username:       node.Username,
			Password:       node.Password,
			ConnectTimeout: cfg.ConnectTimeout,
			IOTimeout:      cfg.IOTimeout,
		}

		c := client.New(sentCfg)
		if err := c.Connect(ctx); err != nil {
			log.Warnf("sentinel: connect %s:%d failed: %v", node.Host, node.Port, err)
			continue
		}

		v, err := c.Command(ctx, "SENTINEL", "get-master-addr-by-name", cfg.MasterName)
		_ = c.Close()
		if err != nil {
			log.Warnf("sentinel: get-master-addr-by-name via %s:%d failed: %v", node.Host, node.Port, err)
			continue
		}

		elems, ok := v.AsArray()
		if !ok || len(elems) < 2 {
			log.Warnf("sentinel: unexpected get-master-addr-by-name reply from %s:%d", node.Host, node.Port)
			continue
		}
		host, hok := elems[0].AsString()
		portStr, pok := elems[1].AsString()
		if !hok || !pok {
			log.Warnf("sentinel: non-string host/port in reply from %s:%d", node.Host, node.Port)
			continue
		}
		port, perr := strconv.Atoi(portStr)
		if perr != nil || port < 1 || port > 65535 {
			log.Warnf("sentinel: invalid master port %q from %s:%d", portStr, node.Host, node.Port)
			continue
		}

		masterCfg := cfg.BaseRedis
		masterCfg.Host = host
		masterCfg.Port = port
		log.Infof("sentinel: resolved master %s:%d for %q", host, port, cfg.MasterName)
		return masterCfg, nil
	}

	return client.Config{}, rediserr.New(rediserr.Io, "sentinel: all sentinels failed")
}
