// Package ingest turns documents, texts and chunk files into indexed vectors.
//
// Every entry point ends in UpsertChunks, which ensures the collection,
// embeds the chunks in batches and writes each batch to the index. Chunk IDs
// are deterministic, so re-running an ingest replaces records instead of
// duplicating them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Defaults.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 2
)

// ErrNoDocuments is returned by IngestPaths when no document produced chunks.
var ErrNoDocuments = fmt.Errorf("%w: no document could be ingested", ragerr.ErrExtraction)

// Embedder produces document vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batching.
type Config struct {
	Collection  vectorstore.CollectionSpec
	BatchSize   int
	Concurrency int
}

// ConfigFrom maps application config. An empty collection uses the
// configured one.
func ConfigFrom(cfg *config.Config, collection string) Config {
	return Config{
		Collection:  vectorstore.SpecFrom(cfg.VectorStore, collection),
		BatchSize:   cfg.Upsert.BatchSize,
		Concurrency: cfg.Upsert.Concurrency,
	}
}

// Service is the upsert service.
//
// An upsert and a ResetCollection on the same collection must not run
// concurrently; callers serialize them.
type Service struct {
	index     vectorstore.Index
	embedder  Embedder
	chunker   *chunker.Chunker
	window    *chunker.Chunker
	extractor *extract.Service
	cfg       Config

	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
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

// WithMetrics records Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithExtractor replaces the default extractor service.
func WithExtractor(e *extract.Service) Option {
	return func(s *Service) { s.extractor = e }
}

// NewService creates the upsert service. chk chunks documents and chunk
// files; raw text always uses the window strategy with chk's sizes.
func NewService(index vectorstore.Index, embedder Embedder, chk *chunker.Chunker, cfg Config, opts ...Option) (*Service, error) {
	if index == nil || embedder == nil || chk == nil {
		return nil, fmt.Errorf("%w: index, embedder and chunker are required", ragerr.ErrConfiguration)
	}
	if err := cfg.Collection.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	windowOpts := chk.Options()
	windowOpts.Strategy = chunker.StrategyWindow
	window, err := chunker.New(windowOpts)
	if err != nil {
		return nil, err
	}

	s := &Service{
		index:    index,
		embedder: embedder,
		chunker:  chk,
		window:   window,
		cfg:      cfg,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("ragd.ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = extract.NewService(nil)
	}
	return s, nil
}

// Collection returns the target collection name.
func (s *Service) Collection() string { return s.cfg.Collection.Name }

// UpsertText chunks raw text with the window strategy and upserts it.
func (s *Service) UpsertText(ctx context.Context, source, text string) (*Report, error) {
	chunks, err := s.window.ChunkText(source, text, nil)
	if err != nil {
		return nil, err
	}
	return s.UpsertChunks(ctx, chunks)
}

// UpsertTexts upserts pre-split fragments of one source.
func (s *Service) UpsertTexts(ctx context.Context, source string, texts []string) (*Report, error) {
	chunks, err := s.window.ChunkTexts(source, texts)
	if err != nil {
		return nil, err
	}
	return s.UpsertChunks(ctx, chunks)
}

// UpsertPDF extracts, chunks and upserts a PDF held in memory.
func (s *Service) UpsertPDF(ctx context.Context, source string, data []byte) (*Report, error) {
	doc, err := s.extractor.ExtractBytes(ctx, source, ".pdf", data)
	if err != nil {
		return nil, err
	}
	return s.UpsertDocument(ctx, doc)
}

// UpsertDocument chunks and upserts an extracted document.
func (s *Service) UpsertDocument(ctx context.Context, doc *extract.Document) (*Report, error) {
	if doc == nil || doc.IsEmpty() {
		source := ""
		if doc != nil {
			source = doc.Source
		}
		return nil, &ragerr.ExtractionError{Source: source, Err: extract.ErrNoText}
	}
	chunks, err := s.chunker.ChunkDocument(doc)
	if err != nil {
		return nil, err
	}
	return s.UpsertChunks(ctx, chunks)
}

// UpsertJSONL reads chunk records, one per line, and upserts them. Stored ids
// that no longer match a record's content are replaced with a warning.
func (s *Service) UpsertJSONL(ctx context.Context, r io.Reader) (*Report, error) {
	chunks, err := chunker.DecodeJSONL(r, func(line int, stored, derived string) {
		s.logger.Warn(ctx, "stale chunk id replaced",
			zap.Int("line", line),
			zap.String("stored_id", stored),
			zap.String("id", derived))
	})
	if err != nil {
		return nil, err
	}
	return s.UpsertChunks(ctx, chunks)
}

// IngestPaths extracts, chunks and upserts files and directories. A document
// that fails extraction or chunking is recorded in the report and skipped.
// Files found in a directory are labeled with their path relative to it, so
// same-named files in different folders stay separate sources.
func (s *Service) IngestPaths(ctx context.Context, paths []string) (*BulkReport, error) {
	files, err := collectFiles(ctx, paths)
	if err != nil {
		return nil, err
	}

	bulk := &BulkReport{Documents: len(files)}
	var all []chunker.Chunk
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return bulk, err
		}
		chunks, err := s.chunkFile(ctx, f)
		s.metrics.document(err)
		if err != nil {
			s.logger.Warn(ctx, "document skipped", zap.String("path", f.Path), zap.Error(err))
			bulk.Failed = append(bulk.Failed, DocumentFailure{Path: f.Path, Err: err, Message: err.Error()})
			continue
		}
		bulk.Ingested++
		all = append(all, chunks...)
	}

	if len(all) == 0 {
		if bulk.Documents == 0 {
			return bulk, fmt.Errorf("%w: no supported files under %s", ErrNoDocuments, strings.Join(paths, ", "))
		}
		return bulk, ErrNoDocuments
	}

	bulk.Upsert, err = s.UpsertChunks(ctx, all)
	return bulk, err
}

func (s *Service) chunkFile(ctx context.Context, f inputFile) ([]chunker.Chunk, error) {
	doc, err := s.extractor.ExtractFile(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	doc.Source = f.Source
	chunks, err := s.chunker.ChunkDocument(doc)
	if err != nil {
		return nil, &ragerr.ExtractionError{Source: doc.Source, Err: err}
	}
	return chunks, nil
}

// DeleteSource removes every chunk of source and returns how many matched.
func (s *Service) DeleteSource(ctx context.Context, source string) (int, error) {
	if strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("%w: source is required", ragerr.ErrConfiguration)
	}
	return s.index.Delete(ctx, s.cfg.Collection.Name, vectorstore.Filter{Source: source})
}

type batch struct {
	n, start, end int
}

// UpsertChunks embeds and writes chunks in batches.
//
// An embedding failure aborts the request with ragerr.ErrEmbedding; batches
// already written stay written. A write failure is recorded and the other
// batches continue; the report is then returned with a *PartialFailureError.
func (s *Service) UpsertChunks(ctx context.Context, chunks []chunker.Chunk) (report *Report, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.UpsertChunks")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
	}()

	started := time.Now()
	name := s.cfg.Collection.Name
	ctx = logging.WithCollection(ctx, name)

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to upsert", ragerr.ErrConfiguration)
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if err := s.index.EnsureCollection(ctx, s.cfg.Collection); err != nil {
		return nil, err
	}

	var batches []batch
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		batches = append(batches, batch{n: len(batches), start: start, end: min(start+s.cfg.BatchSize, len(chunks))})
	}

	report = &Report{
		Collection: name,
		Sources:    chunker.Sources(chunks),
		Chunks:     len(chunks),
		Batches:    len(batches),
	}
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("chunks", len(chunks)),
		attribute.Int("batches", len(batches)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			part := chunks[b.start:b.end]
			records, err := s.embedBatch(gctx, part)
			if err != nil {
				return fmt.Errorf("batch %d: %w", b.n, err)
			}

			werr := s.index.Upsert(gctx, name, records)
			s.metrics.batch(len(part), werr)

			mu.Lock()
			defer mu.Unlock()
			if werr != nil {
				s.logger.Warn(gctx, "batch write failed",
					zap.Int("batch", b.n),
					zap.Int("start", b.start),
					zap.Int("end", b.end),
					zap.Error(werr))
				report.Failures = append(report.Failures, newBatchFailure(b, part, werr))
				return nil
			}
			report.Upserted += len(part)
			return nil
		})
	}
	gerr := g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Batch < report.Failures[j].Batch })
	report.Duration = time.Since(started)
	span.SetAttributes(attribute.Int("upserted", report.Upserted))

	if cerr := ctx.Err(); cerr != nil {
		s.logger.Warn(ctx, "upsert canceled",
			zap.Int("upserted", report.Upserted),
			zap.Int("chunks", report.Chunks),
			zap.Error(cerr))
		return report, cerr
	}
	if gerr != nil {
		if !errors.Is(gerr, ragerr.ErrEmbedding) {
			gerr = fmt.Errorf("%w: %w", ragerr.ErrEmbedding, gerr)
		}
		s.logger.Error(ctx, "upsert aborted",
			zap.Int("upserted", report.Upserted),
			zap.Int("chunks", report.Chunks),
			zap.Error(gerr))
		return report, gerr
	}
	if len(report.Failures) > 0 {
		return report, &PartialFailureError{Failures: report.Failures, Total: len(batches)}
	}

	s.logger.Info(ctx, "upsert completed",
		zap.Int("chunks", report.Chunks),
		zap.Int("batches", report.Batches),
		zap.Strings("sources", report.Sources),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *Service) embedBatch(ctx context.Context, part []chunker.Chunk) ([]vectorstore.Record, error) {
	texts := make([]string, len(part))
	for i, c := range part {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(part) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ragerr.ErrEmbedding, len(vectors), len(part))
	}

	records := make([]vectorstore.Record, len(part))
	for i, c := range part {
		records[i] = RecordFromChunk(c, vectors[i])
	}
	return records, nil
}

func newBatchFailure(b batch, part []chunker.Chunk, err error) BatchFailure {
	f := BatchFailure{Batch: b.n, Start: b.start, End: b.end, Err: err}
	for _, c := range part {
		f.ChunkIndices = append(f.ChunkIndices, c.ChunkIndex)
		f.IDs = append(f.IDs, c.ID)
	}
	return f
}

// RecordFromChunk maps a chunk and its vector to an index record.
func RecordFromChunk(c chunker.Chunk, vector []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:     c.ID,
		Vector: vector,
		Payload: vectorstore.Payload{
			Text:       c.Text,
			Source:     c.Source,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			CreatedAt:  c.CreatedAt.Unix(),
		},
	}
}
