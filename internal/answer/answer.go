// Package answer composes grounded answers from retrieved chunks.
//
// The composer always calls the generator, including when retrieval found
// nothing; the prompt then instructs the model to reply with the configured
// abstention message.
package answer

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

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// DefaultNoContextMessage is the abstention reply used when none is configured.
const DefaultNoContextMessage = "I don't have this information in the indexed documents."

// Source identifies a chunk that was given to the model.
type Source struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Page       *int    `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	// BackendScore is only populated for debug answers.
	BackendScore float32 `json:"backend_score,omitempty"`
	Text         string  `json:"text,omitempty"`
}

// Answer is the composed reply.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Debug is set when the query asked for it.
	Debug *Debug `json:"debug,omitempty"`
}

// Debug describes how the context was selected.
type Debug struct {
	KSearch    int    `json:"k_search"`
	Candidates int    `json:"candidates"`
	Filtered   int    `json:"filtered"`
	Filter     string `json:"filter,omitempty"`
	Prompt     string `json:"prompt"`
}

// Config customizes prompts.
type Config struct {
	NoContextMessage string
	Instructions     string
}

// ConfigFrom maps application config.
func ConfigFrom(cfg config.AnswerConfig) Config {
	return Config{NoContextMessage: cfg.NoContextMessage, Instructions: cfg.Instructions}
}

// Composer builds prompts and calls the generator.
type Composer struct {
	generator    generation.Generator
	noContext    string
	instructions string

	logger *logging.Logger
	tracer trace.Tracer
}

// Option configures optional Composer collaborators.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Composer) { c.tracer = t }
}

// NewComposer creates a Composer.
func NewComposer(gen generation.Generator, cfg Config, opts ...Option) (*Composer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", ragerr.ErrConfiguration)
	}
	noContext := strings.TrimSpace(cfg.NoContextMessage)
	if noContext == "" {
		noContext = DefaultNoContextMessage
	}
	c := &Composer{
		generator:    gen,
		noContext:    noContext,
		instructions: cfg.Instructions,
		logger:       logging.NewNop(),
		tracer:       otel.Tracer("ragd.answer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NoContextMessage returns the configured abstention reply.
func (c *Composer) NoContextMessage() string {
	return c.noContext
}

// Compose generates the answer for question from chunks, which must already
// be in rank order.
func (c *Composer) Compose(ctx context.Context, question string, chunks []retrieval.ScoredChunk) (ans *Answer, err error) {
	ctx, span := c.tracer.Start(ctx, "answer.Compose", trace.WithAttributes(
		attribute.Int("chunks", len(chunks))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", ragerr.ErrConfiguration)
	}

	prompt := c.BuildPrompt(question, chunks)
	started := time.Now()
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "answer composed",
		zap.Int("chunks", len(chunks)),
		zap.Bool("abstained", len(chunks) == 0),
		zap.Duration("duration", time.Since(started)))
	return &Answer{Text: text, Sources: sources(chunks)}, nil
}

func sources(chunks []retrieval.ScoredChunk) []Source {
	out := make([]Source, len(chunks))
	for i, sc := range chunks {
		out[i] = Source{
			ID:         sc.Chunk.ID,
			Source:     sc.Chunk.Source,
			Page:       sc.Chunk.Page,
			ChunkIndex: sc.Chunk.ChunkIndex,
			Score:      sc.Score,
		}
	}
	return out
}
