package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"consent-ledger/internal/platform/config"
	"consent-ledger/internal/platform/metrics"
)

// Client wraps the go-redis client with health checking and pool metrics.
type Client struct {
	*redis.Client

	mu        sync.Mutex
	lastStats *redis.PoolStats
}

// New connects and pings. Returns nil if the URL is empty.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats publishes pool gauges and the counter deltas since the
// previous call.
func (c *Client) RecordPoolStats(m *metrics.Metrics) {
	stats := c.PoolStats()

	c.mu.Lock()
	defer c.mu.Unlock()

	m.RedisPoolTotalConns.Set(float64(stats.TotalConns))
	m.RedisPoolIdleConns.Set(float64(stats.IdleConns))

	var last redis.PoolStats
	if c.lastStats != nil {
		last = *c.lastStats
	}
	addDelta(m.RedisPoolHits, stats.Hits, last.Hits)
	addDelta(m.RedisPoolMisses, stats.Misses, last.Misses)
	addDelta(m.RedisPoolTimeouts, stats.Timeouts, last.Timeouts)
	addDelta(m.RedisPoolStaleConns, stats.StaleConns, last.StaleConns)

	c.lastStats = stats
}

func addDelta(counter interface{ Add(float64) }, now, before uint32) {
	if now > before {
		counter.Add(float64(now - before))
	}
}
