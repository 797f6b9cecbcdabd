package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Need selects optional components.
type Need uint8

const (
	// NeedEmbedder builds the embedding provider, ingest and retrieval.
	NeedEmbedder Need = 1 << iota
	// NeedGenerator builds the generator and the answer service. It implies
	// NeedEmbedder.
	NeedGenerator
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Collection overrides vectorstore.collection when set.
	Collection string
	Logger     *logging.Logger
	Needs      Need
	// Provider replaces the embedding provider selected by the config.
	Provider embeddings.Provider
	// Index replaces the index selected by the config.
	Index vectorstore.Index
	// Generator replaces the generator selected by the config.
	Generator generation.Generator
}

// Build creates the components selected by opts.Needs. The index, chunker
// and extractor are always built. On error, everything built so far is
// closed.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (_ Registry, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ragerr.ErrConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Needs&NeedGenerator != 0 {
		opts.Needs |= NeedEmbedder
	}

	o := Options{
		Config:     cfg,
		Logger:     logger,
		Collection: vectorstore.SpecFrom(cfg.VectorStore, opts.Collection),
		Metrics:    prometheus.NewRegistry(),
	}
	if err := o.Collection.Validate(); err != nil {
		return nil, err
	}
	reg := NewRegistry(o)
	defer func() {
		if err != nil {
			_ = reg.Close()
		}
	}()

	o.Chunker, err = chunker.New(chunker.OptionsFrom(cfg.Chunking))
	if err != nil {
		return nil, err
	}
	o.Extractor = extract.NewService(nil)

	o.Index = opts.Index
	if o.Index == nil {
		o.Index, err = vectorstore.New(cfg, logger,
			vectorstore.WithTracer(otel.Tracer("ragd.vectorstore")),
			vectorstore.WithMetrics(vectorstore.NewMetrics(o.Metrics)))
		if err != nil {
			return nil, err
		}
	}
	reg = NewRegistry(o)

	if opts.Needs&NeedEmbedder != 0 {
		provider := opts.Provider
		if provider == nil {
			provider, err = embeddings.NewProvider(embeddings.ProviderConfigFrom(cfg.Embeddings))
			if err != nil {
				return nil, err
			}
		}
		o.Embedder = embeddings.NewBatcher(provider,
			embeddings.BatcherConfigFrom(cfg.Embeddings, o.Collection.Dimension),
			embeddings.WithLogger(logger.Named("embeddings")),
			embeddings.WithMetrics(embeddings.NewMetrics(otel.Meter("ragd.embeddings"), logger)))
		reg = NewRegistry(o)

		o.Ingest, err = ingest.NewService(o.Index, o.Embedder, o.Chunker,
			ingest.ConfigFrom(cfg, o.Collection.Name),
			ingest.WithLogger(logger.Named("ingest")),
			ingest.WithMetrics(ingest.NewMetrics(o.Metrics)),
			ingest.WithExtractor(o.Extractor))
		if err != nil {
			return nil, err
		}

		o.Retrieval, err = retrieval.NewService(o.Index, o.Embedder,
			retrieval.ConfigFrom(cfg, o.Collection.Name),
			retrieval.WithLogger(logger.Named("retrieval")))
		if err != nil {
			return nil, err
		}
	}

	if opts.Needs&NeedGenerator != 0 {
		o.Generator = opts.Generator
		if o.Generator == nil {
			o.Generator, err = generation.New(generation.ConfigFrom(cfg.Generation),
				generation.WithLogger(logger.Named("generation")))
			if err != nil {
				return nil, err
			}
		}
		o.Composer, err = answer.NewComposer(o.Generator, answer.ConfigFrom(cfg.Answer),
			answer.WithLogger(logger.Named("answer")))
		if err != nil {
			return nil, err
		}
		o.Answer, err = answer.NewService(o.Retrieval, o.Composer)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug(ctx, "components initialized",
		zap.String("collection", o.Collection.Name),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Bool("embedder", o.Embedder != nil),
		zap.Bool("generator", o.Generator != nil))
	return NewRegistry(o), nil
}
