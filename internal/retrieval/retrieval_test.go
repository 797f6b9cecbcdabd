package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/reranker"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

const collection = "retrieval_test"

type fakeEmbedder struct {
	vector []float32
	err    error
	block  bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func record(id, source string, index int, text string, vector ...float32) vectorstore.Record {
	return vectorstore.Record{
		ID:     id,
		Vector: vector,
		Payload: vectorstore.Payload{
			Text:       text,
			Source:     source,
			ChunkIndex: index,
			CreatedAt:  1700000000,
		},
	}
}

func seededIndex(t *testing.T) vectorstore.Index {
	t.Helper()
	ctx := context.Background()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(ctx, vectorstore.CollectionSpec{
		Name: collection, Dimension: 3, Distance: vectorstore.DistanceCosine,
	}))
	require.NoError(t, idx.Upsert(ctx, collection, []vectorstore.Record{
		record("r1", "guia.pdf", 0, "Guía de animación Madrid centro.", 1, 0, 0),
		record("r2", "guia.pdf", 1, "Animacion madrid para familias.", 0.9, 0.1, 0),
		record("r3", "otro.pdf", 0, "ANIMACIÓN  MADRID nocturna.", 0.8, 0.2, 0),
		record("r4", "otro.pdf", 1, "La animación madrileña crece.", 0.95, 0.05, 0),
		record("r5", "otro.pdf", 2, "Animación en Madrid.", 0.99, 0, 0.01),
		record("r6", "sevilla.pdf", 0, "Sevilla en primavera.", 0, 0, 1),
		record("r7", "tercero.pdf", 0, "animación madrid histórica", 0.7, 0.3, 0),
	}))
	return idx
}

func newService(t *testing.T, idx vectorstore.Index, emb QueryEmbedder, cfg Config, opts ...Option) *Service {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = collection
	}
	svc, err := NewService(idx, emb, cfg, opts...)
	require.NoError(t, err)
	return svc
}

func chunkIDs(res *Result) []string {
	out := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestKSearch(t *testing.T) {
	tests := []struct {
		name                      string
		topK, overfetch, maxCands int
		want                      int
	}{
		{"defaults", 5, 5, 100, 25},
		{"capped by max candidates", 5, 5, 10, 10},
		{"no overfetch", 5, 1, 100, 5},
		{"large top k", 30, 5, 100, 100},
		{"max below top k", 5, 5, 3, 5},
		{"zero overfetch treated as one", 4, 0, 100, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KSearch(tt.topK, tt.overfetch, tt.maxCands))
		})
	}
}

func TestNormalizeFilterText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Animación  Madrid", "animacion madrid"},
		{"  CÓRDOBA\t", "cordoba"},
		{"null", ""},
		{"None", ""},
		{"undefined", ""},
		{"string", ""},
		{"TRUE", ""},
		{"false", ""},
		{"nullable", "nullable"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFilterText(tt.in))
		})
	}
}

func TestRetrieve_RanksByCosine(t *testing.T) {
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{TopK: 3})

	res, err := svc.Retrieve(context.Background(), Request{Question: "¿Qué animación hay?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r5", "r4"}, chunkIDs(res))
	assert.Equal(t, 15, res.KSearch)
	assert.Equal(t, 7, res.Candidates)
	assert.Empty(t, res.Filter)

	for i := 1; i < len(res.Chunks); i++ {
		assert.GreaterOrEqual(t, res.Chunks[i-1].Score, res.Chunks[i].Score)
	}
	assert.InDelta(t, 1.0, res.Chunks[0].Score, 1e-6)
	assert.Equal(t, "guia.pdf", res.Chunks[0].Chunk.Source)
}

func TestRetrieve_PhraseFilter(t *testing.T) {
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{TopK: 3})

	res, err := svc.Retrieve(context.Background(), Request{
		Question:   "animación",
		FilterText: "  Animación   Madrid ",
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.Chunks), 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, chunkIDs(res))
	assert.Equal(t, "animacion madrid", res.Filter)
	for _, c := range res.Chunks {
		assert.True(t, vectorstore.ContainsText(c.Chunk.Text, res.Filter), c.Chunk.Text)
	}
}

func TestRetrieve_PlaceholderFilterIgnored(t *testing.T) {
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{TopK: 2})

	res, err := svc.Retrieve(context.Background(), Request{Question: "q", FilterText: "null"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r5"}, chunkIDs(res))
	assert.Empty(t, res.Filter)
}

func TestRetrieve_RequestTopKOverride(t *testing.T) {
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{0, 0, 1}}, Config{TopK: 5})

	res, err := svc.Retrieve(context.Background(), Request{Question: "Sevilla", TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"r6"}, chunkIDs(res))
	assert.Equal(t, 5, res.KSearch)
}

func TestRetrieve_EmptyCollection(t *testing.T) {
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	svc := newService(t, idx, &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{})

	res, err := svc.Retrieve(context.Background(), Request{Question: "anything"})
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.Candidates)
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty question", func(t *testing.T) {
		svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{})
		_, err := svc.Retrieve(ctx, Request{Question: "  "})
		assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	})

	t.Run("embedding failure", func(t *testing.T) {
		svc := newService(t, seededIndex(t), &fakeEmbedder{err: errors.New("model unavailable")}, Config{})
		_, err := svc.Retrieve(ctx, Request{Question: "q"})
		assert.ErrorIs(t, err, ragerr.ErrEmbedding)
		assert.False(t, ragerr.IsRetryable(err))
	})

	t.Run("timeout is retryable", func(t *testing.T) {
		svc := newService(t, seededIndex(t), &fakeEmbedder{block: true}, Config{Timeout: 10 * time.Millisecond})
		_, err := svc.Retrieve(ctx, Request{Question: "q"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, ragerr.ErrEmbedding)
		assert.True(t, ragerr.IsRetryable(err))
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0}}, Config{})
		_, err := svc.Retrieve(ctx, Request{Question: "q"})
		assert.Error(t, err)
	})
}

func TestNewService_Validation(t *testing.T) {
	idx := seededIndex(t)
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}

	_, err := NewService(nil, emb, Config{Collection: collection})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	_, err = NewService(idx, emb, Config{Collection: "bad name!"})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	svc, err := NewService(idx, emb, Config{Collection: collection})
	require.NoError(t, err)
	cfg := svc.Config()
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Equal(t, DefaultOverfetchFactor, cfg.OverfetchFactor)
	assert.Equal(t, DefaultMaxCandidates, cfg.MaxCandidates)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.IsType(t, &reranker.Cosine{}, svc.reranker)

	svc, err = NewService(idx, emb, Config{Collection: collection, LexicalWeight: 0.3})
	require.NoError(t, err)
	assert.IsType(t, &reranker.Lexical{}, svc.reranker)
}

func TestRetrieve_LexicalBlend(t *testing.T) {
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{TopK: 1, LexicalWeight: 0.5})

	res, err := svc.Retrieve(context.Background(), Request{Question: "familias"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, chunkIDs(res))
}

func TestRetrieve_Span(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	svc := newService(t, seededIndex(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, Config{},
		WithTracer(tel.Tracer("test")))

	_, err := svc.Retrieve(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	tel.AssertSpanExists(t, "retrieval.Retrieve")
}
