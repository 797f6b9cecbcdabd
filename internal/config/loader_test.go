package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

func writeConfig(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "ragd.yaml", `
chunking:
  max_chars: 800
  overlap: 0
vectorstore:
  provider: chromem
  collection: docs
  chromem:
    path: /tmp/ragd-index
retrieval:
  top_k: 8
  timeout: 10s
generation:
  api_key: sk-test
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunking.MaxChars)
	assert.Equal(t, 0, cfg.Chunking.Overlap, "explicit zero overlap must survive defaults")
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "docs", cfg.VectorStore.Collection)
	assert.Equal(t, "/tmp/ragd-index", cfg.VectorStore.Chromem.Path)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 10*time.Second, cfg.Retrieval.Timeout.Duration())
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())

	// Untouched sections keep defaults.
	assert.Equal(t, 384, cfg.VectorStore.Dimension)
	assert.Equal(t, 64, cfg.Upsert.BatchSize)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "ragd.toml", `
[chunking]
strategy = "sentence"
max_chars = 600
overlap = 100

[qdrant]
host = "qdrant.internal"
port = 6335
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sentence", cfg.Chunking.Strategy)
	assert.Equal(t, 600, cfg.Chunking.MaxChars)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 6335, cfg.Qdrant.Port)
	assert.Equal(t, 3, cfg.Qdrant.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Qdrant.InitialBackoff.Duration())
}

func TestLoad_QdrantRetriesDisabled(t *testing.T) {
	path := writeConfig(t, "ragd.yaml", `
qdrant:
  retry_attempts: 0
  initial_backoff: 200ms
  dial_timeout: 2s
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Qdrant.RetryAttempts, "explicit zero retries must survive defaults")
	assert.Equal(t, 200*time.Millisecond, cfg.Qdrant.InitialBackoff.Duration())
	assert.Equal(t, 2*time.Second, cfg.Qdrant.DialTimeout.Duration())

	bad := writeConfig(t, "bad.yaml", "qdrant:\n  retry_attempts: -1\n", 0o600)
	_, err = Load(bad)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ragd.yaml", "chunking:\n  max_chars: 800\n", 0o600)

	t.Setenv("RAGD_CHUNKING_MAX_CHARS", "1200")
	t.Setenv("RAGD_QDRANT_HOST", "10.0.0.5")
	t.Setenv("RAGD_VECTORSTORE_CHROMEM_PATH", "/data/index")
	t.Setenv("RAGD_RETRIEVAL_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Chunking.MaxChars)
	assert.Equal(t, "10.0.0.5", cfg.Qdrant.Host)
	assert.Equal(t, "/data/index", cfg.VectorStore.Chromem.Path)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.Timeout.Duration())
}

func TestLoad_InvalidValuesAreConfigurationErrors(t *testing.T) {
	path := writeConfig(t, "ragd.yaml", "chunking:\n  max_chars: 100\n  overlap: 100\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestLoad_RejectsWorldWritableFile(t *testing.T) {
	path := writeConfig(t, "ragd.yaml", "chunking:\n  max_chars: 800\n", 0o666)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"RAGD_CHUNKING_MAX_CHARS":           "chunking.max_chars",
		"RAGD_QDRANT_HOST":                  "qdrant.host",
		"RAGD_VECTORSTORE_CHROMEM_COMPRESS": "vectorstore.chromem.compress",
		"RAGD_VECTORSTORE_COLLECTION":       "vectorstore.collection",
		"RAGD_ANSWER_NO_CONTEXT_MESSAGE":    "answer.no_context_message",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
