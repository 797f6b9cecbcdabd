package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider adapts a langchaingo Embedder. It backs the ollama and
// openai providers.
type LangChainProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	prefixed  bool
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewOllamaProvider embeds through an ollama server.
func NewOllamaProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama requires a model", ErrInvalidConfig)
	}
	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(httpClient(cfg.Timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating ollama client: %v", ErrInvalidConfig, err)
	}
	return newLangChainProvider(llm, cfg)
}

// NewOpenAIProvider embeds through an OpenAI compatible /embeddings endpoint.
func NewOpenAIProvider(cfg ProviderConfig) (*LangChainProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai requires a base URL", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai requires a model", ErrInvalidConfig)
	}

	// langchaingo requires a token; local compatible servers accept any value.
	token := cfg.APIKey
	if token == "" {
		token = "placeholder"
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
		openai.WithHTTPClient(httpClient(cfg.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ErrInvalidConfig, err)
	}
	return newLangChainProvider(llm, cfg)
}

func newLangChainProvider(client embeddings.EmbedderClient, cfg ProviderConfig) (*LangChainProvider, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %v", ErrInvalidConfig, err)
	}
	return &LangChainProvider{
		embedder:  embedder,
		model:     cfg.Model,
		dimension: httpDimension(cfg),
		prefixed:  needsPrefix(cfg.Model),
	}, nil
}

func (p *LangChainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if p.prefixed {
		texts = prefixAll("passage: ", texts)
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingFailed, p.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (p *LangChainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if p.prefixed {
		text = "query: " + text
	}
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingFailed, p.model, err)
	}
	return vector, nil
}

func (p *LangChainProvider) Dimension() int { return p.dimension }

func (p *LangChainProvider) Close() error { return nil }
