package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications *prometheus.CounterVec
	DocumentsPut  prometheus.Counter
	DocumentBytes prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_ledger_credential_verifications_total",
			Help: "Credential verifications by kind and outcome",
		}, []string{"kind", "outcome"}),
		DocumentsPut: factory.NewCounter(prometheus.CounterOpts{
			Name: "consent_ledger_documents_stored_total",
			Help: "Documents written to the content-addressed store",
		}),
		DocumentBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "consent_ledger_document_size_bytes",
			Help:    "Size of stored documents",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
}

func (m *Metrics) ObserveVerification(kind string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.Verifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveDocument(size int) {
	m.DocumentsPut.Inc()
	m.DocumentBytes.Observe(float64(size))
}
