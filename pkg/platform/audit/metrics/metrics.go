package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher and ingest consumer.
type Metrics struct {
	// Queue metrics
	QueueDepth     prometheus.Gauge
	EventsDropped  prometheus.Counter
	EventsEnqueued prometheus.Counter

	// Persistence metrics
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	EventsIngested  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consent_ledger_audit_queue_depth",
			Help: "Current number of events in the audit publisher queue",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to full buffer",
		}),
		EventsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_audit_events_enqueued_total",
			Help: "Total number of audit events successfully enqueued",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "consent_ledger_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit event to the store",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_audit_events_ingested_total",
			Help: "Total number of audit events ingested from the event stream",
		}),
	}
}

func (m *Metrics) IncQueueDepth() {
	m.QueueDepth.Inc()
}

func (m *Metrics) DecQueueDepth() {
	m.QueueDepth.Dec()
}

func (m *Metrics) IncEventsDropped() {
	m.EventsDropped.Inc()
}

func (m *Metrics) IncEventsEnqueued() {
	m.EventsEnqueued.Inc()
}

// ObservePersist records one store append and whether it failed.
func (m *Metrics) ObservePersist(d time.Duration, err error) {
	m.PersistDuration.Observe(d.Seconds())
	if err != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) IncEventsIngested() {
	m.EventsIngested.Inc()
}
