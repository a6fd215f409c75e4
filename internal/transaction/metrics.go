package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outcomes by status and times every Submit call.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharos_tx_outcomes_total",
		Help: "Total number of submitted transactions by terminal status",
	}, []string{"status"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pharos_tx_duration_seconds",
		Help:    "Time from building a transaction to its classification",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	if reg != nil {
		reg.MustRegister(outcomes, duration)
	}

	return &Metrics{outcomes: outcomes, duration: duration}
}

// Observe records one outcome.
func (m *Metrics) Observe(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.Status.String()).Inc()
	m.duration.Observe(o.Duration.Seconds())
}
