package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

type echoGenerator struct {
	prompts []string
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if strings.Contains(prompt, "No context was found") {
		return answer.DefaultNoContextMessage, nil
	}
	return "Abre a las 10 [1].", nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.VectorStore.Provider = "chromem"
	cfg.VectorStore.Dimension = 64
	cfg.Embeddings.Provider = "hash"
	cfg.Chunking.MaxChars = 200
	cfg.Chunking.Overlap = 20
	return cfg
}

func TestBuild_Minimal(t *testing.T) {
	reg, err := Build(context.Background(), testConfig(), BuildOptions{})
	require.NoError(t, err)
	defer reg.Close()

	assert.NotNil(t, reg.Index())
	assert.NotNil(t, reg.Chunker())
	assert.NotNil(t, reg.Extractor())
	assert.NotNil(t, reg.Metrics())
	assert.Nil(t, reg.Embedder())
	assert.Nil(t, reg.Ingest())
	assert.Nil(t, reg.Answer())
	assert.Equal(t, "ragd_chunks", reg.Collection().Name)
	assert.Equal(t, 64, reg.Collection().Dimension)
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, nil, BuildOptions{})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	_, err = Build(ctx, testConfig(), BuildOptions{Collection: "no spaces allowed"})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	cfg := testConfig()
	cfg.VectorStore.Provider = "pinecone"
	_, err = Build(ctx, cfg, BuildOptions{})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestBuild_EndToEnd(t *testing.T) {
	ctx := context.Background()
	gen := &echoGenerator{}
	reg, err := Build(ctx, testConfig(), BuildOptions{
		Collection: "e2e",
		Needs:      NeedGenerator,
		Provider:   embeddings.NewHashProvider(64),
		Generator:  gen,
	})
	require.NoError(t, err)
	defer reg.Close()
	require.NotNil(t, reg.Embedder(), "generator implies embedder")

	empty, err := reg.Answer().Ask(ctx, answer.Query{Question: "¿Cuándo abre la catedral?"})
	require.NoError(t, err)
	assert.Equal(t, answer.DefaultNoContextMessage, empty.Text)

	report, err := reg.Ingest().UpsertText(ctx, "guia.txt",
		"La catedral abre a las 10. El museo cierra los lunes. La torre ofrece vistas de la ciudad.")
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, report.Upserted)

	n, err := reg.Index().Count(ctx, "e2e", nil)
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, n)

	ans, err := reg.Answer().Ask(ctx, answer.Query{Question: "¿Cuándo abre la catedral?"})
	require.NoError(t, err)
	assert.Equal(t, "Abre a las 10 [1].", ans.Text)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "guia.txt", ans.Sources[0].Source)
	assert.Contains(t, gen.prompts[len(gen.prompts)-1], "[1] guia.txt")

	assert.NoError(t, reg.PushMetrics(ctx), "no pushgateway configured")
}
