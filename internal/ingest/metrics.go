package ingest

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the ingest collectors.
type Metrics struct {
	// Chunks counts chunks by result (upserted, failed).
	Chunks *prometheus.CounterVec
	// Batches counts batches by result (success, error).
	Batches *prometheus.CounterVec
	// Documents counts files by result (success, error).
	Documents *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks submitted for upsert",
		}, []string{"result"}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total number of upsert batches",
		}, []string{"result"}),
		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents processed by bulk ingestion",
		}, []string{"result"}),
	}
}

func (m *Metrics) batch(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Batches.WithLabelValues("error").Inc()
		m.Chunks.WithLabelValues("failed").Add(float64(size))
		return
	}
	m.Batches.WithLabelValues("success").Inc()
	m.Chunks.WithLabelValues("upserted").Add(float64(size))
}

func (m *Metrics) document(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Documents.WithLabelValues(result).Inc()
}

// Push sends everything in g to a Prometheus Pushgateway under job. Batch
// commands call it once on exit since they expose no scrape endpoint.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "ragd"
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
