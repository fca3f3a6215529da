package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger transitions.
type Metrics struct {
	StudiesCreated     prometheus.Counter
	StudyActiveChanges *prometheus.CounterVec
	ConsentsRequested  prometheus.Counter
	ConsentsGranted    *prometheus.CounterVec
	ConsentsRevoked    prometheus.Counter
	GrantFailures      *prometheus.CounterVec
	PermissionUpdates  prometheus.Counter
	PermissionChecks   *prometheus.CounterVec
	GrantLatency       prometheus.Histogram
	LockWait           prometheus.Histogram
}

// New registers ledger collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StudiesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_studies_created_total",
			Help: "Total number of studies created",
		}),
		StudyActiveChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_ledger_study_active_changes_total",
			Help: "Study activation toggles, labeled by resulting state",
		}, []string{"active"}),
		ConsentsRequested: f.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_consents_requested_total",
			Help: "Total number of consent requests",
		}),
		ConsentsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_ledger_consents_granted_total",
			Help: "Total number of consents granted, labeled by credential format",
		}, []string{"format"}),
		ConsentsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_consents_revoked_total",
			Help: "Total number of consents revoked",
		}),
		GrantFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_ledger_grant_failures_total",
			Help: "Grant attempts that left the consent pending, labeled by error code",
		}, []string{"code"}),
		PermissionUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_permission_updates_total",
			Help: "Total number of permission upserts",
		}),
		PermissionChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_ledger_permission_checks_total",
			Help: "Permission checks, labeled by result",
		}, []string{"result"}),
		GrantLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "consent_ledger_grant_latency_seconds",
			Help:    "Latency of grant operations including credential issuance",
			Buckets: prometheus.DefBuckets,
		}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "consent_ledger_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a per-entity lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementStudiesCreated() {
	m.StudiesCreated.Inc()
}

func (m *Metrics) IncrementStudyActiveChanged(active bool) {
	label := "false"
	if active {
		label = "true"
	}
	m.StudyActiveChanges.WithLabelValues(label).Inc()
}

func (m *Metrics) IncrementConsentsRequested() {
	m.ConsentsRequested.Inc()
}

func (m *Metrics) IncrementConsentsGranted(format string) {
	m.ConsentsGranted.WithLabelValues(format).Inc()
}

func (m *Metrics) IncrementConsentsRevoked() {
	m.ConsentsRevoked.Inc()
}

func (m *Metrics) IncrementGrantFailure(code string) {
	m.GrantFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementPermissionUpdates() {
	m.PermissionUpdates.Inc()
}

func (m *Metrics) ObservePermissionCheck(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PermissionChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGrantLatency(d time.Duration) {
	m.GrantLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.LockWait.Observe(d.Seconds())
}
