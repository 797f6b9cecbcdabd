// Package config provides configuration loading for ragd.
//
// A single Config value is loaded once at startup and handed to each
// component's constructor; nothing in ragd reads configuration globally.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Config holds the complete ragd configuration.
type Config struct {
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Upsert      UpsertConfig      `koanf:"upsert"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Generation  GenerationConfig  `koanf:"generation"`
	Answer      AnswerConfig      `koanf:"answer"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// ChunkingConfig controls how text is split into chunks.
type ChunkingConfig struct {
	// Strategy is "window" (character window, default) or "sentence".
	Strategy string `koanf:"strategy"`
	// MaxChars bounds every chunk, in characters (runes).
	MaxChars int `koanf:"max_chars"`
	// Overlap is the number of characters shared by consecutive chunks.
	Overlap int `koanf:"overlap"`
	// BreakTolerance is how far before MaxChars the window strategy may
	// look for whitespace. Zero means MaxChars/10.
	BreakTolerance int `koanf:"break_tolerance"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (default), "tei", "ollama", "openai" or "hash".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is used by the http providers.
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
	// MaxLength is the model input limit in tokens. Longer inputs are
	// truncated by the model without error, so text past the limit does
	// not contribute to the vector.
	MaxLength int `koanf:"max_length"`
	// Dimension overrides the dimension reported by http providers.
	Dimension      int      `koanf:"dimension"`
	BatchSize      int      `koanf:"batch_size"`
	Concurrency    int      `koanf:"concurrency"`
	RateLimit      float64  `koanf:"rate_limit"` // requests per second, 0 = unlimited
	RequestTimeout Duration `koanf:"request_timeout"`
}

// VectorStoreConfig selects the index backend and the collection contract.
type VectorStoreConfig struct {
	// Provider is "qdrant" (default) or "chromem".
	Provider   string        `koanf:"provider"`
	Collection string        `koanf:"collection"`
	Dimension  int           `koanf:"dimension"`
	Distance   string        `koanf:"distance"`
	Chromem    ChromemConfig `koanf:"chromem"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path enables persistence; empty keeps the index in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
	DialTimeout    Duration `koanf:"dial_timeout"`
	// RetryAttempts is the number of retries for transient failures of
	// writes and collection calls. Zero disables retries.
	RetryAttempts  int      `koanf:"retry_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxMessageSize int      `koanf:"max_message_size"`
}

// UpsertConfig controls batching of index writes.
type UpsertConfig struct {
	BatchSize   int `koanf:"batch_size"`
	Concurrency int `koanf:"concurrency"`
}

// RetrievalConfig controls over-fetch and re-ranking.
//
// Re-ranking only sees the candidates the index returns, so recall is capped
// by k_search = clamp(top_k*overfetch_factor, top_k, max_candidates). Raise
// either knob when relevant chunks are missing from results on large
// collections.
type RetrievalConfig struct {
	TopK            int      `koanf:"top_k"`
	OverfetchFactor int      `koanf:"overfetch_factor"`
	MaxCandidates   int      `koanf:"max_candidates"`
	LexicalWeight   float64  `koanf:"lexical_weight"`
	Timeout         Duration `koanf:"timeout"`
}

// GenerationConfig selects the text generation capability.
type GenerationConfig struct {
	// Provider is "ollama" (default) or "openai" (any OpenAI compatible API).
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"`
}

// AnswerConfig customizes the grounded prompt.
type AnswerConfig struct {
	// NoContextMessage is the reply required when the context lacks the answer.
	NoContextMessage string `koanf:"no_context_message"`
	// Instructions is prepended to every prompt, e.g. a persona.
	Instructions string `koanf:"instructions"`
}

// LoggingConfig is the user facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the user facing subset of telemetry.Config.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SamplingRate   float64 `koanf:"sampling_rate"`
}

// MetricsConfig configures the Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			Strategy: "window",
			MaxChars: 1000,
			Overlap:  150,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "fastembed",
			Model:          "BAAI/bge-small-en-v1.5",
			BaseURL:        "http://localhost:8080",
			MaxLength:      512,
			BatchSize:      32,
			Concurrency:    2,
			RequestTimeout: Duration(60 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:   "qdrant",
			Collection: "ragd_chunks",
			Dimension:  384,
			Distance:   "cosine",
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			RequestTimeout: Duration(30 * time.Second),
			DialTimeout:    Duration(5 * time.Second),
			RetryAttempts:  3,
			InitialBackoff: Duration(time.Second),
			MaxMessageSize: 50 * 1024 * 1024,
		},
		Upsert: UpsertConfig{
			BatchSize:   64,
			Concurrency: 2,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			OverfetchFactor: 5,
			MaxCandidates:   100,
			Timeout:         Duration(30 * time.Second),
		},
		Generation: GenerationConfig{
			Provider:    "ollama",
			Model:       "llama3.2",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     Duration(120 * time.Second),
		},
		Answer: AnswerConfig{
			NoContextMessage: "I don't have this information in the indexed documents.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "ragd",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
		},
		Metrics: MetricsConfig{
			Job: "ragd",
		},
	}
}

// ApplyDefaults fills zero values that have no meaningful zero setting.
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = d.Chunking.Strategy
	}
	if c.Chunking.MaxChars == 0 {
		c.Chunking.MaxChars = d.Chunking.MaxChars
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = d.Embeddings.Provider
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = d.Embeddings.Model
	}
	if c.Embeddings.BatchSize == 0 {
		c.Embeddings.BatchSize = d.Embeddings.BatchSize
	}
	if c.Embeddings.Concurrency == 0 {
		c.Embeddings.Concurrency = d.Embeddings.Concurrency
	}
	if c.Embeddings.RequestTimeout == 0 {
		c.Embeddings.RequestTimeout = d.Embeddings.RequestTimeout
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = d.VectorStore.Provider
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = d.VectorStore.Collection
	}
	if c.VectorStore.Dimension == 0 {
		c.VectorStore.Dimension = d.VectorStore.Dimension
	}
	if c.VectorStore.Distance == "" {
		c.VectorStore.Distance = d.VectorStore.Distance
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = d.Qdrant.Host
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = d.Qdrant.Port
	}
	if c.Qdrant.RequestTimeout == 0 {
		c.Qdrant.RequestTimeout = d.Qdrant.RequestTimeout
	}
	if c.Qdrant.DialTimeout == 0 {
		c.Qdrant.DialTimeout = d.Qdrant.DialTimeout
	}
	if c.Qdrant.InitialBackoff == 0 {
		c.Qdrant.InitialBackoff = d.Qdrant.InitialBackoff
	}
	if c.Qdrant.MaxMessageSize == 0 {
		c.Qdrant.MaxMessageSize = d.Qdrant.MaxMessageSize
	}
	if c.Upsert.BatchSize == 0 {
		c.Upsert.BatchSize = d.Upsert.BatchSize
	}
	if c.Upsert.Concurrency == 0 {
		c.Upsert.Concurrency = d.Upsert.Concurrency
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = d.Retrieval.TopK
	}
	if c.Retrieval.OverfetchFactor == 0 {
		c.Retrieval.OverfetchFactor = d.Retrieval.OverfetchFactor
	}
	if c.Retrieval.MaxCandidates == 0 {
		c.Retrieval.MaxCandidates = d.Retrieval.MaxCandidates
	}
	if c.Retrieval.Timeout == 0 {
		c.Retrieval.Timeout = d.Retrieval.Timeout
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = d.Generation.Provider
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = d.Generation.Timeout
	}
	if c.Answer.NoContextMessage == "" {
		c.Answer.NoContextMessage = d.Answer.NoContextMessage
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = d.Telemetry.ServiceVersion
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = d.Metrics.Job
	}
}

// Validate checks the configuration. All failures wrap ragerr.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Chunking.Strategy {
	case "window", "sentence":
	default:
		errs = append(errs, fmt.Errorf("chunking.strategy must be 'window' or 'sentence', got %q", c.Chunking.Strategy))
	}
	if c.Chunking.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_chars must be > 0, got %d", c.Chunking.MaxChars))
	}
	if c.Chunking.Overlap < 0 {
		errs = append(errs, fmt.Errorf("chunking.overlap must be >= 0, got %d", c.Chunking.Overlap))
	}
	if c.Chunking.MaxChars <= c.Chunking.Overlap {
		errs = append(errs, fmt.Errorf("chunking.max_chars (%d) must be greater than chunking.overlap (%d)",
			c.Chunking.MaxChars, c.Chunking.Overlap))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "ollama", "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider %q is not supported", c.Embeddings.Provider))
	}
	if c.Embeddings.BatchSize <= 0 || c.Embeddings.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.batch_size and embeddings.concurrency must be > 0"))
	}
	if c.Embeddings.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embeddings.rate_limit must be >= 0"))
	}

	switch c.VectorStore.Provider {
	case "qdrant", "chromem":
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider %q is not supported", c.VectorStore.Provider))
	}
	if c.VectorStore.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vectorstore.dimension must be > 0, got %d", c.VectorStore.Dimension))
	}
	if !strings.EqualFold(c.VectorStore.Distance, "cosine") {
		errs = append(errs, fmt.Errorf("vectorstore.distance must be 'cosine', got %q", c.VectorStore.Distance))
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("qdrant.port must be 1-65535, got %d", c.Qdrant.Port))
	}
	if c.Qdrant.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("qdrant.retry_attempts must be >= 0, got %d", c.Qdrant.RetryAttempts))
	}

	if c.Upsert.BatchSize <= 0 || c.Upsert.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("upsert.batch_size and upsert.concurrency must be > 0"))
	}

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be > 0, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.OverfetchFactor < 1 {
		errs = append(errs, fmt.Errorf("retrieval.overfetch_factor must be >= 1, got %d", c.Retrieval.OverfetchFactor))
	}
	if c.Retrieval.MaxCandidates < c.Retrieval.TopK {
		errs = append(errs, fmt.Errorf("retrieval.max_candidates (%d) must be >= retrieval.top_k (%d)",
			c.Retrieval.MaxCandidates, c.Retrieval.TopK))
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.LexicalWeight > 1 {
		errs = append(errs, fmt.Errorf("retrieval.lexical_weight must be between 0 and 1, got %g", c.Retrieval.LexicalWeight))
	}

	switch c.Generation.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
