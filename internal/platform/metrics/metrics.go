// Package metrics holds process-level collectors for connection pools.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Redis pool
	RedisPoolHits       prometheus.Counter
	RedisPoolMisses     prometheus.Counter
	RedisPoolTimeouts   prometheus.Counter
	RedisPoolStaleConns prometheus.Counter
	RedisPoolTotalConns prometheus.Gauge
	RedisPoolIdleConns  prometheus.Gauge

	// Database pool
	DBOpenConns    prometheus.Gauge
	DBInUseConns   prometheus.Gauge
	DBWaitCount    prometheus.Gauge
	DBWaitDuration prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RedisPoolHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}),
		RedisPoolMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}),
		RedisPoolTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
		RedisPoolStaleConns: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_redis_pool_stale_conns_total",
			Help: "Number of stale connections removed from the pool",
		}),
		RedisPoolTotalConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		RedisPoolIdleConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
		DBOpenConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_db_open_conns",
			Help: "Number of established database connections",
		}),
		DBInUseConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_db_in_use_conns",
			Help: "Number of database connections currently in use",
		}),
		DBWaitCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_db_wait_count",
			Help: "Total number of connections waited for",
		}),
		DBWaitDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_db_wait_duration_seconds",
			Help: "Total time blocked waiting for a new connection",
		}),
	}
}

// Poll calls each recorder every interval until ctx is done.
func Poll(ctx context.Context, interval time.Duration, recorders ...func()) error {
	if len(recorders) == 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, record := range recorders {
			record()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
