// Package generation wraps the text generation capability used to compose
// answers.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 120 * time.Second

// ErrEmptyPrompt is returned for a blank prompt.
var ErrEmptyPrompt = fmt.Errorf("%w: prompt cannot be empty", ragerr.ErrGeneration)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	// Provider is "ollama" or "openai".
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RateLimit is calls per second; 0 disables limiting.
	RateLimit float64
}

// ConfigFrom maps application config.
func ConfigFrom(cfg config.GenerationConfig) Config {
	return Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey.Value(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout.Duration(),
		RateLimit:   cfg.RateLimit,
	}
}

// LLM generates through a langchaingo model.
type LLM struct {
	model   llms.Model
	cfg     Config
	limiter *rate.Limiter

	logger *logging.Logger
	tracer trace.Tracer
}

// Option configures optional LLM collaborators.
type Option func(*LLM)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *LLM) { g.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *LLM) { g.tracer = t }
}

// New creates the generator configured by cfg.Provider.
func New(cfg Config, opts ...Option) (*LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generation model is required", ragerr.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// The client timeout is a backstop; Generate applies cfg.Timeout per call.
	client := &http.Client{Timeout: timeout + 5*time.Second}

	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		o := []ollama.Option{ollama.WithModel(cfg.Model), ollama.WithHTTPClient(client)}
		if cfg.BaseURL != "" {
			o = append(o, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(o...)
	case "openai":
		token := cfg.APIKey
		if token == "" {
			// Local compatible servers accept any token.
			token = "placeholder"
		}
		o := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(token),
			openai.WithHTTPClient(client),
		}
		if cfg.BaseURL != "" {
			o = append(o, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(o...)
	default:
		return nil, fmt.Errorf("%w: unsupported generation provider %q", ragerr.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s client: %v", ragerr.ErrConfiguration, cfg.Provider, err)
	}
	return NewWithModel(model, cfg, opts...), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, cfg Config, opts ...Option) *LLM {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	g := &LLM{
		model:  model,
		cfg:    cfg,
		logger: logging.NewNop(),
		tracer: otel.Tracer("ragd.generation"),
	}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the model output for prompt, unmodified.
func (g *LLM) Generate(ctx context.Context, prompt string) (text string, err error) {
	ctx, span := g.tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.String("provider", g.cfg.Provider),
		attribute.String("model", g.cfg.Model),
		attribute.Int("prompt_chars", len(prompt))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", classify(fmt.Errorf("rate limiter: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	opts := []llms.CallOption{llms.WithTemperature(g.cfg.Temperature)}
	if g.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.cfg.MaxTokens))
	}

	started := time.Now()
	text, err = llms.GenerateFromSinglePrompt(callCtx, g.model, prompt, opts...)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		err = classify(err)
		g.logger.Warn(ctx, "generation failed",
			zap.String("model", g.cfg.Model),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
		return "", err
	}
	g.logger.Debug(ctx, "generation completed",
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", time.Since(started)),
		zap.Int("chars", len(text)))
	return text, nil
}

// classify wraps err as ErrGeneration and marks transport failures retryable.
func classify(err error) error {
	wrapped := err
	if !errors.Is(err, ragerr.ErrGeneration) {
		wrapped = fmt.Errorf("%w: %w", ragerr.ErrGeneration, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ragerr.Retryable(wrapped)
	}
	return wrapped
}
