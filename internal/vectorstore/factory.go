package vectorstore

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/qdrant"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Option configures New.
type Option func(*options)

type options struct {
	tracer  trace.Tracer
	metrics *Metrics
}

// WithTracer sets the tracer for index spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics records Prometheus metrics for every operation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates the Index selected by cfg.VectorStore.Provider:
//   - "qdrant" (default): QdrantIndex over gRPC
//   - "chromem": embedded ChromemIndex, persisted when chromem.path is set
//
// The returned Index is instrumented.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var (
		idx Index
		err error
	)
	provider := cfg.VectorStore.Provider
	switch provider {
	case "qdrant", "":
		provider = "qdrant"
		var client *qdrant.GRPCClient
		client, err = qdrant.NewGRPCClient(qdrant.ClientConfigFrom(cfg.Qdrant), logger.Named("qdrant"))
		if err != nil {
			return nil, err
		}
		idx, err = NewQdrantIndex(client, logger.Named("vectorstore"))
	case "chromem":
		idx, err = NewChromemIndex(ChromemConfig{
			Path:        cfg.VectorStore.Chromem.Path,
			Compress:    cfg.VectorStore.Chromem.Compress,
			Concurrency: cfg.Upsert.Concurrency,
		}, logger.Named("vectorstore"))
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q", ragerr.ErrConfiguration, provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(idx, provider, o.tracer, o.metrics), nil
}

// SpecFrom builds the collection contract from configuration. An empty name
// uses the configured collection.
func SpecFrom(cfg config.VectorStoreConfig, name string) CollectionSpec {
	if name == "" {
		name = cfg.Collection
	}
	return CollectionSpec{Name: name, Dimension: cfg.Dimension, Distance: cfg.Distance}
}
