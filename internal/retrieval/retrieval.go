// Package retrieval finds the chunks most relevant to a question.
//
// A query is embedded with the same provider used at index time, the index is
// over-fetched, candidates are hard-filtered on the normalized filter phrase
// and then re-ranked locally. Recall is bounded by the over-fetch size
// k_search = clamp(top_k*overfetch_factor, top_k, max_candidates): a chunk the
// index does not return among the first k_search hits can never be selected.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/reranker"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Defaults.
const (
	DefaultTopK            = 5
	DefaultOverfetchFactor = 5
	DefaultMaxCandidates   = 100
	DefaultTimeout         = 30 * time.Second
)

// QueryEmbedder embeds a question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config tunes retrieval.
type Config struct {
	Collection      string
	TopK            int
	OverfetchFactor int
	MaxCandidates   int
	// LexicalWeight > 0 blends query term overlap into the final score.
	LexicalWeight float64
	// Timeout bounds the embed and search calls together.
	Timeout time.Duration
}

// ConfigFrom maps application config. An empty collection uses the
// configured one.
func ConfigFrom(cfg *config.Config, collection string) Config {
	if collection == "" {
		collection = cfg.VectorStore.Collection
	}
	return Config{
		Collection:      collection,
		TopK:            cfg.Retrieval.TopK,
		OverfetchFactor: cfg.Retrieval.OverfetchFactor,
		MaxCandidates:   cfg.Retrieval.MaxCandidates,
		LexicalWeight:   cfg.Retrieval.LexicalWeight,
		Timeout:         cfg.Retrieval.Timeout.Duration(),
	}
}

// Request is a single retrieval.
type Request struct {
	Question string
	// TopK overrides the configured top_k when positive.
	TopK int
	// FilterText restricts results to chunks containing the phrase, compared
	// after accent and case folding.
	FilterText string
}

// ScoredChunk is a retrieved chunk with its scores.
type ScoredChunk struct {
	Chunk chunker.Chunk
	// Score is the re-ranked score.
	Score float64
	// BackendScore is the similarity the index reported.
	BackendScore float32
}

// Result is the query context handed to the answer composer. An empty
// Chunks slice is a valid result.
type Result struct {
	Chunks []ScoredChunk
	// KSearch is the number of candidates requested from the index.
	KSearch int
	// Candidates is how many hits the index returned.
	Candidates int
	// Filtered is how many candidates survived the phrase filter.
	Filtered int
	// Filter is the normalized filter phrase, empty when none applied.
	Filter string
}

// Service runs retrievals against one collection.
type Service struct {
	index    vectorstore.Index
	embedder QueryEmbedder
	cfg      Config
	reranker reranker.Reranker

	logger *logging.Logger
	tracer trace.Tracer
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithReranker replaces the reranker chosen from the config.
func WithReranker(r reranker.Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// NewService creates a retrieval service.
func NewService(index vectorstore.Index, embedder QueryEmbedder, cfg Config, opts ...Option) (*Service, error) {
	if index == nil || embedder == nil {
		return nil, fmt.Errorf("%w: index and embedder are required", ragerr.ErrConfiguration)
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.OverfetchFactor < 1 {
		cfg.OverfetchFactor = DefaultOverfetchFactor
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &Service{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("ragd.retrieval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reranker == nil {
		if cfg.LexicalWeight > 0 {
			s.reranker = reranker.NewLexical(cfg.LexicalWeight)
		} else {
			s.reranker = reranker.NewCosine()
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// KSearch returns clamp(topK*overfetch, topK, maxCandidates). When
// maxCandidates is below topK, topK wins.
func KSearch(topK, overfetch, maxCandidates int) int {
	k := topK * max(overfetch, 1)
	if k > maxCandidates {
		k = maxCandidates
	}
	return max(k, topK)
}

// Retrieve returns the top chunks for the question, best first.
func (s *Service) Retrieve(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(attribute.String("collection", s.cfg.Collection)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("results", len(res.Chunks)))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", ragerr.ErrConfiguration)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	filter := NormalizeFilterText(req.FilterText)
	res = &Result{
		KSearch: KSearch(topK, s.cfg.OverfetchFactor, s.cfg.MaxCandidates),
		Filter:  filter,
	}
	span.SetAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("k_search", res.KSearch),
		attribute.Bool("filtered", filter != ""))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	vector, err := s.embedder.EmbedQuery(callCtx, question)
	if err != nil {
		if ragerr.Kind(err) == nil {
			err = fmt.Errorf("%w: %w", ragerr.ErrEmbedding, err)
		}
		return nil, err
	}

	var backendFilter *vectorstore.Filter
	if filter != "" {
		backendFilter = &vectorstore.Filter{MatchText: strings.TrimSpace(req.FilterText)}
	}
	hits, err := s.index.Search(callCtx, s.cfg.Collection, vector, res.KSearch, backendFilter)
	if err != nil {
		return nil, err
	}
	res.Candidates = len(hits)

	candidates := make([]reranker.Candidate, 0, len(hits))
	for _, h := range hits {
		if filter != "" && !vectorstore.ContainsText(h.Payload.Text, filter) {
			continue
		}
		candidates = append(candidates, toCandidate(h))
	}
	res.Filtered = len(candidates)

	ranked, err := s.reranker.Rerank(ctx, reranker.Query{Text: question, Vector: vector}, candidates, topK)
	if err != nil {
		return nil, err
	}
	res.Chunks = make([]ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		res.Chunks = append(res.Chunks, toScoredChunk(r))
	}

	s.logger.Debug(ctx, "retrieval completed",
		zap.String("collection", s.cfg.Collection),
		zap.Int("k_search", res.KSearch),
		zap.Int("candidates", res.Candidates),
		zap.Int("filtered", res.Filtered),
		zap.Int("results", len(res.Chunks)))
	return res, nil
}

func toCandidate(h vectorstore.Hit) reranker.Candidate {
	return reranker.Candidate{
		ID:           h.ID,
		Text:         h.Payload.Text,
		Source:       h.Payload.Source,
		Page:         h.Payload.Page,
		ChunkIndex:   h.Payload.ChunkIndex,
		Vector:       h.Vector,
		BackendScore: h.Score,
	}
}

func toScoredChunk(r reranker.Scored) ScoredChunk {
	c := chunker.Chunk{
		ID:         r.ID,
		Source:     r.Source,
		ChunkIndex: r.ChunkIndex,
		Text:       r.Text,
		Page:       r.Page,
	}
	return ScoredChunk{Chunk: c, Score: r.Score, BackendScore: r.BackendScore}
}
