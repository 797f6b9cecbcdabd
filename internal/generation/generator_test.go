package generation

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
)

// fakeModel records the prompt and call options it receives.
type fakeModel struct {
	reply  string
	err    error
	block  bool
	prompt string
	opts   llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.opts)
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				f.prompt += t.Text
			}
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{reply: "  La catedral abre a las 10. [1]\n"}
	g := NewWithModel(model, Config{Provider: "ollama", Model: "llama3.2", Temperature: 0.2, MaxTokens: 256})

	out, err := g.Generate(context.Background(), "PREGUNTA: horario")
	require.NoError(t, err)
	assert.Equal(t, "  La catedral abre a las 10. [1]\n", out, "output is returned unmodified")
	assert.Equal(t, "PREGUNTA: horario", model.prompt)
	assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
	assert.Equal(t, 256, model.opts.MaxTokens)
}

func TestGenerate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty prompt", func(t *testing.T) {
		g := NewWithModel(&fakeModel{}, Config{Model: "m"})
		_, err := g.Generate(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.ErrorIs(t, err, ragerr.ErrGeneration)
	})

	t.Run("model error", func(t *testing.T) {
		g := NewWithModel(&fakeModel{err: errors.New("model not found")}, Config{Model: "m"})
		_, err := g.Generate(ctx, "p")
		assert.ErrorIs(t, err, ragerr.ErrGeneration)
		assert.False(t, ragerr.IsRetryable(err))
	})

	t.Run("unreachable server is retryable", func(t *testing.T) {
		opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		g := NewWithModel(&fakeModel{err: opErr}, Config{Model: "m"})
		_, err := g.Generate(ctx, "p")
		assert.ErrorIs(t, err, ragerr.ErrGeneration)
		assert.True(t, ragerr.IsRetryable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		g := NewWithModel(&fakeModel{block: true}, Config{Model: "m", Timeout: 10 * time.Millisecond})
		_, err := g.Generate(ctx, "p")
		assert.ErrorIs(t, err, ragerr.ErrGeneration)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, ragerr.IsRetryable(err))
	})
}

func TestGenerate_RateLimited(t *testing.T) {
	g := NewWithModel(&fakeModel{reply: "ok"}, Config{Model: "m", RateLimit: 0.001})

	_, err := g.Generate(context.Background(), "first")
	require.NoError(t, err, "the burst allows one immediate call")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, "second")
	assert.ErrorIs(t, err, ragerr.ErrGeneration)
}

func TestGenerate_Span(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	g := NewWithModel(&fakeModel{reply: "ok"}, Config{Provider: "openai", Model: "m"}, WithTracer(tel.Tracer("test")))

	_, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	tel.AssertSpanExists(t, "generation.Generate")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"ollama", Config{Provider: "ollama", Model: "llama3.2", BaseURL: "http://localhost:11434"}, nil},
		{"openai compatible", Config{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "http://localhost:8000/v1"}, nil},
		{"missing model", Config{Provider: "ollama"}, ragerr.ErrConfiguration},
		{"unknown provider", Config{Provider: "bard", Model: "x"}, ragerr.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, g.cfg.Timeout)
		})
	}
}
