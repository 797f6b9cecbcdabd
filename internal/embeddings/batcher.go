package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// BatcherConfig tunes a Batcher.
type BatcherConfig struct {
	// Model labels metrics.
	Model       string
	BatchSize   int
	Concurrency int
	// RateLimit is calls per second; 0 disables limiting.
	RateLimit float64
	// Timeout bounds each provider call.
	Timeout time.Duration
	// Dimension is the required vector length. Zero falls back to the
	// provider's Dimension, then to the length of the first vector returned.
	Dimension int
}

// BatcherConfigFrom maps the application config onto a BatcherConfig. The
// required dimension is the collection's.
func BatcherConfigFrom(emb config.EmbeddingsConfig, dimension int) BatcherConfig {
	return BatcherConfig{
		Model:       emb.Model,
		BatchSize:   emb.BatchSize,
		Concurrency: emb.Concurrency,
		RateLimit:   emb.RateLimit,
		Timeout:     emb.RequestTimeout.Duration(),
		Dimension:   dimension,
	}
}

// Batcher embeds through a Provider with bounded concurrency and checks every
// vector it returns. It implements Provider itself.
type Batcher struct {
	provider Provider
	cfg      BatcherConfig
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   *logging.Logger
}

// BatcherOption configures optional Batcher collaborators.
type BatcherOption func(*Batcher)

// WithMetrics records call metrics.
func WithMetrics(m *Metrics) BatcherOption {
	return func(b *Batcher) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) BatcherOption {
	return func(b *Batcher) { b.logger = l }
}

// NewBatcher wraps provider.
func NewBatcher(provider Provider, cfg BatcherConfig, opts ...BatcherOption) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = provider.Dimension()
	}

	b := &Batcher{
		provider: provider,
		cfg:      cfg,
		logger:   logging.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedDocuments embeds texts in batches and returns vectors in input order.
func (b *Batcher) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := b.call(gctx, "documents", end-start, func(ctx context.Context) ([][]float32, error) {
				return b.provider.EmbedDocuments(ctx, texts[start:end])
			})
			if err != nil {
				return err
			}
			if len(vectors) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), end-start)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := b.cfg.Dimension
	if dim <= 0 {
		dim = len(out[0])
	}
	for i, v := range out {
		if err := ValidateVector(v, dim); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single question.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := b.call(ctx, "query", 1, func(ctx context.Context) ([][]float32, error) {
		v, err := b.provider.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}

	dim := b.cfg.Dimension
	if dim <= 0 {
		dim = len(vectors[0])
	}
	if err := ValidateVector(vectors[0], dim); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *Batcher) call(ctx context.Context, op string, n int, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingFailed, err)
		}
	}

	callCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	vectors, err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil && !isEmbeddingError(err) {
		err = fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	b.metrics.RecordGeneration(ctx, b.cfg.Model, op, time.Since(started), n, err)

	if err != nil {
		b.logger.Debug(ctx, "embedding call failed",
			zap.String("operation", op),
			zap.Int("texts", n),
			zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

func isEmbeddingError(err error) bool {
	return errors.Is(err, ragerr.ErrEmbedding) || errors.Is(err, ragerr.ErrConfiguration)
}

// Dimension returns the required vector length.
func (b *Batcher) Dimension() int { return b.cfg.Dimension }

// Close closes the wrapped provider.
func (b *Batcher) Close() error { return b.provider.Close() }

// ValidateVector rejects vectors that would corrupt the index: a wrong length,
// NaN or infinite components, or all zeros (cosine is undefined).
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, expected %d", ErrEmbeddingFailed, len(v), dim)
	}
	zero := true
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at component %d", ErrEmbeddingFailed, i)
		}
		if x != 0 {
			zero = false
		}
	}
	if zero {
		return fmt.Errorf("%w: all-zero vector", ErrEmbeddingFailed)
	}
	return nil
}
