package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"awardvote/internal/platform/config"
)

// clientName shows up in CLIENT LIST so gateway connections can be told apart
// from other tenants of a shared instance.
const clientName = "awardvote-gateway"

const healthTimeout = 2 * time.Second

// Client is the one connection pool shared by the session store, tally locks,
// rate-limit buckets and the results cache.
type Client struct {
	*redis.Client
	addr string
}

// Open dials Redis and returns nil, nil when no URL is configured so callers
// fall back to in-process stores.
func Open(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	if logger != nil {
		logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	}
	return &Client{Client: rdb, addr: opts.Addr}, nil
}

// options maps config onto go-redis options. Zero values keep the library
// defaults rather than disabling pooling or timeouts.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.ClientName = clientName
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Health pings with its own deadline so a hung Redis cannot stall /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", c.addr, err)
	}
	return nil
}
