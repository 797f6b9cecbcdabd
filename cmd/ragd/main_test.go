package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

type stubGenerator struct {
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if strings.Contains(prompt, "No context was found") {
		return answer.DefaultNoContextMessage, nil
	}
	return "La catedral abre a las 10 [1].", nil
}

// resetFlags restores every flag to its default between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ragd.yaml")
	cfg := fmt.Sprintf(`vectorstore:
  provider: chromem
  collection: cli_test
  dimension: 64
  chromem:
    path: %s
embeddings:
  provider: hash
  dimension: 64
chunking:
  max_chars: 200
  overlap: 20
logging:
  level: error
`, filepath.Join(dir, "index"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// execute runs the root command with args against cfgPath.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := run(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), exitOther},
		{fmt.Errorf("%w: bad", ragerr.ErrConfiguration), exitConfiguration},
		{&ragerr.ExtractionError{Source: "a.pdf", Err: errors.New("broken")}, exitExtraction},
		{fmt.Errorf("wrapped: %w", ragerr.ErrEmbedding), exitEmbedding},
		{&ingest.PartialFailureError{Total: 2}, exitIndex},
		{ragerr.ErrGeneration, exitGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestCommands_Registered(t *testing.T) {
	want := []string{
		"extract", "chunk", "enrich", "ingest", "upsert", "delete-source",
		"search", "ask", "console", "collection", "health", "version",
	}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "/does/not/exist.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ragd dev")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "missing.yaml"), "collection", "info")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestUpsertSearchAsk(t *testing.T) {
	cfg := writeConfig(t)
	gen := &stubGenerator{}
	overrides.generator = gen
	t.Cleanup(func() { overrides.generator = nil })

	out, err := execute(t, cfg, "ask", "¿Cuándo abre la catedral?")
	require.NoError(t, err)
	assert.Contains(t, out, answer.DefaultNoContextMessage)

	out, err = execute(t, cfg, "upsert", "--text",
		"La catedral abre a las 10. El museo cierra los lunes.", "--source", "guia.txt", "--json")
	require.NoError(t, err)
	var report ingest.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "cli_test", report.Collection)
	assert.Equal(t, report.Chunks, report.Upserted)
	assert.Positive(t, report.Upserted)

	out, err = execute(t, cfg, "search", "catedral", "--json", "-k", "3")
	require.NoError(t, err)
	var hits []answer.Source
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "guia.txt", hits[0].Source)
	assert.NotEmpty(t, hits[0].Text)

	out, err = execute(t, cfg, "search", "catedral", "--filter", "no aparece")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching chunks.")

	out, err = execute(t, cfg, "ask", "¿Cuándo abre la catedral?")
	require.NoError(t, err)
	assert.Contains(t, out, "La catedral abre a las 10 [1].")
	assert.Contains(t, out, "[1] guia.txt")
	assert.Contains(t, gen.prompts[len(gen.prompts)-1], "La catedral abre a las 10.")

	out, err = execute(t, cfg, "collection", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "guia.txt")

	out, err = execute(t, cfg, "delete-source", "guia.txt")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Deleted %d chunks of guia.txt", report.Upserted))

	out, err = execute(t, cfg, "collection", "info", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"points": 0`)
}

func TestUpsert_RequiresSource(t *testing.T) {
	_, err := execute(t, writeConfig(t), "upsert", "--text", "hola")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestChunkAndEnrich(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()
	doc := filepath.Join(dir, "notas.txt")
	require.NoError(t, os.WriteFile(doc, []byte(strings.Repeat("La torre ofrece vistas de la ciudad. ", 20)), 0o600))

	chunksPath := filepath.Join(dir, "chunks.jsonl")
	_, err := execute(t, cfg, "chunk", doc, "-o", chunksPath, "--max-chars", "120", "--overlap", "10")
	require.NoError(t, err)

	f, err := os.Open(chunksPath)
	require.NoError(t, err)
	chunks, err := chunker.ReadJSONL(f)
	_ = f.Close()
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, "notas.txt", c.Source)
		assert.LessOrEqual(t, len([]rune(c.Text)), 120)
	}

	pagesPath := filepath.Join(dir, "pages.json")
	_, err = execute(t, cfg, "extract", doc, "-o", pagesPath)
	require.NoError(t, err)

	out, err := execute(t, cfg, "enrich", chunksPath, "--pages", pagesPath)
	require.NoError(t, err)
	enriched, err := chunker.ReadJSONL(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, enriched, len(chunks))
	for _, c := range enriched {
		require.NotNil(t, c.Page)
		assert.Equal(t, 1, *c.Page)
	}

	out, err = execute(t, cfg, "upsert", chunksPath)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%d upserted of %d", len(chunks), len(chunks)))
}

func TestChunk_SourceNeedsSingleFile(t *testing.T) {
	_, err := execute(t, writeConfig(t), "chunk", "a.txt", "b.txt", "--source", "x")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestRun_TeardownAfterFailure(t *testing.T) {
	_, err := execute(t, writeConfig(t), "upsert", "--text", "hola")
	require.Error(t, err)
	assert.Nil(t, rt.tel, "telemetry not shut down")
	assert.Nil(t, rt.logger, "logger not synced")

	_, err = execute(t, writeConfig(t), "collection", "info")
	require.NoError(t, err)
	assert.Nil(t, rt.tel)
}

func TestCollectionReset_RequiresConfirm(t *testing.T) {
	_, err := execute(t, writeConfig(t), "collection", "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestHealth(t *testing.T) {
	out, err := execute(t, writeConfig(t), "health", "--embedder")
	require.NoError(t, err)
	assert.Contains(t, out, "index:      ok (chromem)")
	assert.Contains(t, out, "dimension 64")
	assert.NotContains(t, out, "onnx:")
}
