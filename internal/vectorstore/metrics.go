package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for index operations.
type Metrics struct {
	// Operations counts calls. Labels: backend, op, result (success, error).
	Operations *prometheus.CounterVec

	// Duration observes call latency. Labels: backend, op.
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ragd",
				Subsystem: "vectorstore",
				Name:      "operations_total",
				Help:      "Total number of vector store operations",
			},
			[]string{"backend", "op", "result"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ragd",
				Subsystem: "vectorstore",
				Name:      "operation_duration_seconds",
				Help:      "Duration of vector store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
	}
}

func (m *Metrics) observe(backend, op string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(backend, op, result).Inc()
	m.Duration.WithLabelValues(backend, op).Observe(seconds)
}
