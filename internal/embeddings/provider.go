// Package embeddings turns text into fixed-dimension vectors.
//
// A Provider wraps one embedding model. The same provider must be used for
// indexing and for querying a collection; vectors from different models are
// not comparable. Batcher adds bounded concurrency, rate limiting and output
// validation on top of any provider.
package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ragerr.ErrEmbedding)

	// ErrInvalidConfig indicates an unusable provider configuration.
	ErrInvalidConfig = fmt.Errorf("%w: invalid embeddings configuration", ragerr.ErrConfiguration)

	// ErrEmbeddingFailed indicates the model could not produce vectors.
	ErrEmbeddingFailed = fmt.Errorf("%w: embedding generation failed", ragerr.ErrEmbedding)
)

// Provider is an embedding model.
type Provider interface {
	// EmbedDocuments embeds passages for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a question for search.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length, or 0 when the model is not known
	// until the first call.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed", "tei", "ollama", "openai" or "hash".
	Provider string
	Model    string
	// BaseURL is the server URL of the http providers.
	BaseURL string
	APIKey  string
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// MaxLength is the model input limit in tokens (fastembed only).
	MaxLength int
	// Dimension overrides the model table for http providers.
	Dimension int
	// Timeout bounds a single http request.
	Timeout time.Duration
}

// ProviderConfigFrom maps the application config onto a ProviderConfig.
func ProviderConfigFrom(cfg config.EmbeddingsConfig) ProviderConfig {
	return ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey.Value(),
		CacheDir:  cfg.CacheDir,
		MaxLength: cfg.MaxLength,
		Dimension: cfg.Dimension,
		Timeout:   cfg.RequestTimeout.Duration(),
	}
}

// knownDimensions lists output sizes of models commonly served by the http
// providers.
var knownDimensions = map[string]int{
	"baai/bge-small-en-v1.5":                                      384,
	"baai/bge-base-en-v1.5":                                       768,
	"baai/bge-large-en-v1.5":                                      1024,
	"baai/bge-m3":                                                 1024,
	"intfloat/multilingual-e5-small":                              384,
	"intfloat/multilingual-e5-base":                               768,
	"intfloat/multilingual-e5-large":                              1024,
	"intfloat/e5-small-v2":                                        384,
	"thenlper/gte-small":                                          384,
	"thenlper/gte-base":                                           768,
	"sentence-transformers/all-minilm-l6-v2":                      384,
	"sentence-transformers/paraphrase-multilingual-minilm-l12-v2": 384,
	"all-minilm":                                                  384,
	"nomic-embed-text":                                            768,
	"mxbai-embed-large":                                           1024,
	"bge-m3":                                                      1024,
	"text-embedding-3-small":                                      1536,
	"text-embedding-3-large":                                      3072,
}

// ModelDimension returns the known output size of model, ignoring case and an
// ollama style ":tag" suffix.
func ModelDimension(model string) (int, bool) {
	name := strings.ToLower(model)
	if i := strings.LastIndex(name, ":"); i > 0 {
		name = name[:i]
	}
	dim, ok := knownDimensions[name]
	return dim, ok
}

// needsPrefix reports whether the model expects "query: " and "passage: "
// prefixes. The e5 and gte families are trained with them.
func needsPrefix(model string) bool {
	name := strings.ToLower(model)
	return strings.Contains(name, "e5") || strings.Contains(name, "gte")
}

func prefixAll(prefix string, texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = prefix + t
	}
	return out
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	case "tei":
		return NewTEIProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "hash":
		dim := cfg.Dimension
		if dim == 0 {
			dim = 384
		}
		return NewHashProvider(dim), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func httpDimension(cfg ProviderConfig) int {
	if cfg.Dimension > 0 {
		return cfg.Dimension
	}
	dim, _ := ModelDimension(cfg.Model)
	return dim
}
