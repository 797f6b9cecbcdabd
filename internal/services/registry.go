// Package services wires ragd's components from a single Config.
//
// Build creates every component a command needs; accessors on the returned
// Registry hand them out. Components that reach external services
// (embedding model, generation model) are only built when requested.
package services

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Registry provides access to the wired components.
type Registry interface {
	Config() *config.Config
	Logger() *logging.Logger
	Collection() vectorstore.CollectionSpec
	Index() vectorstore.Index
	Chunker() *chunker.Chunker
	Extractor() *extract.Service
	Embedder() *embeddings.Batcher
	Ingest() *ingest.Service
	Retrieval() *retrieval.Service
	Generator() generation.Generator
	Composer() *answer.Composer
	Answer() *answer.Service
	Metrics() *prometheus.Registry
	// PushMetrics sends the registry to the configured Pushgateway, if any.
	PushMetrics(ctx context.Context) error
	// Close releases the index and the embedding provider.
	Close() error
}

// Options configures the registry with component instances.
type Options struct {
	Config     *config.Config
	Logger     *logging.Logger
	Collection vectorstore.CollectionSpec
	Index      vectorstore.Index
	Chunker    *chunker.Chunker
	Extractor  *extract.Service
	Embedder   *embeddings.Batcher
	Ingest     *ingest.Service
	Retrieval  *retrieval.Service
	Generator  generation.Generator
	Composer   *answer.Composer
	Answer     *answer.Service
	Metrics    *prometheus.Registry
}

// registry is the concrete implementation of Registry.
type registry struct {
	opts Options
}

// NewRegistry creates a registry over existing instances.
func NewRegistry(opts Options) Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = prometheus.NewRegistry()
	}
	return &registry{opts: opts}
}

func (r *registry) Config() *config.Config                 { return r.opts.Config }
func (r *registry) Logger() *logging.Logger                { return r.opts.Logger }
func (r *registry) Collection() vectorstore.CollectionSpec { return r.opts.Collection }
func (r *registry) Index() vectorstore.Index               { return r.opts.Index }
func (r *registry) Chunker() *chunker.Chunker              { return r.opts.Chunker }
func (r *registry) Extractor() *extract.Service            { return r.opts.Extractor }
func (r *registry) Embedder() *embeddings.Batcher          { return r.opts.Embedder }
func (r *registry) Ingest() *ingest.Service                { return r.opts.Ingest }
func (r *registry) Retrieval() *retrieval.Service          { return r.opts.Retrieval }
func (r *registry) Generator() generation.Generator        { return r.opts.Generator }
func (r *registry) Composer() *answer.Composer             { return r.opts.Composer }
func (r *registry) Answer() *answer.Service                { return r.opts.Answer }
func (r *registry) Metrics() *prometheus.Registry          { return r.opts.Metrics }

func (r *registry) PushMetrics(ctx context.Context) error {
	if r.opts.Config == nil {
		return nil
	}
	m := r.opts.Config.Metrics
	return ingest.Push(ctx, m.PushgatewayURL, m.Job, r.opts.Metrics)
}

func (r *registry) Close() error {
	var errs []error
	if r.opts.Embedder != nil {
		errs = append(errs, r.opts.Embedder.Close())
	}
	if r.opts.Index != nil {
		errs = append(errs, r.opts.Index.Close())
	}
	return errors.Join(errs...)
}
