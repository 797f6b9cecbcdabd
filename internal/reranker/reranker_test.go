package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

func ids(s []Scored) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.ID
	}
	return out
}

func TestCosine_Rerank(t *testing.T) {
	query := Query{Text: "catedral de Sevilla", Vector: []float32{1, 0}}

	tests := []struct {
		name       string
		candidates []Candidate
		topK       int
		want       []string
	}{
		{
			name:       "empty candidates",
			candidates: nil,
			topK:       3,
			want:       []string{},
		},
		{
			name: "orders by local cosine not backend order",
			candidates: []Candidate{
				{ID: "far", Vector: []float32{0, 1}, BackendScore: 0.99},
				{ID: "near", Vector: []float32{1, 0}, BackendScore: 0.10},
				{ID: "mid", Vector: []float32{1, 1}},
			},
			topK: 0,
			want: []string{"near", "mid", "far"},
		},
		{
			name: "ties broken by chunk index then source then id",
			candidates: []Candidate{
				{ID: "c", Source: "b.pdf", ChunkIndex: 1, Vector: []float32{2, 0}},
				{ID: "b", Source: "b.pdf", ChunkIndex: 0, Vector: []float32{1, 0}},
				{ID: "a", Source: "a.pdf", ChunkIndex: 1, Vector: []float32{3, 0}},
				{ID: "z", Source: "a.pdf", ChunkIndex: 0, Vector: []float32{1, 0}},
			},
			topK: 0,
			want: []string{"z", "b", "a", "c"},
		},
		{
			name: "truncates to topK",
			candidates: []Candidate{
				{ID: "1", Vector: []float32{1, 0}},
				{ID: "2", Vector: []float32{1, 0.5}},
				{ID: "3", Vector: []float32{0, 1}},
			},
			topK: 2,
			want: []string{"1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCosine().Rerank(context.Background(), query, tt.candidates, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCosine_ScoresAndRanks(t *testing.T) {
	got, err := NewCosine().Rerank(context.Background(), Query{Vector: []float32{1, 0}}, []Candidate{
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "a", Vector: []float32{3, 0}},
	}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 1.0, got[0].Cosine, 1e-9)
	assert.Equal(t, 1, got[0].OriginalRank)
	assert.InDelta(t, 0.0, got[1].Score, 1e-9)
	assert.Zero(t, got[0].Overlap)
}

func TestCosine_InvalidVectors(t *testing.T) {
	ctx := context.Background()

	_, err := NewCosine().Rerank(ctx, Query{Vector: []float32{1, 0}}, []Candidate{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "short", Vector: []float32{1}},
	}, 0)
	require.ErrorIs(t, err, ErrInvalidCandidate)
	assert.ErrorIs(t, err, ragerr.ErrIndex)

	_, err = NewCosine().Rerank(ctx, Query{}, []Candidate{{ID: "x", Vector: []float32{1}}}, 0)
	assert.ErrorIs(t, err, ErrInvalidCandidate)

	_, err = NewCosine().Rerank(ctx, Query{Vector: []float32{1, 0}}, []Candidate{{ID: "no-vector"}}, 0)
	require.ErrorIs(t, err, ErrInvalidCandidate)
	assert.Contains(t, err.Error(), "no-vector has 0 dimensions")
}

func TestCosine_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := NewCosine().Rerank(nil, Query{}, nil, 1)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 2}, []float32{1, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestLexical_Rerank(t *testing.T) {
	ctx := context.Background()
	query := Query{Text: "horario de la Catedral", Vector: []float32{1, 0}}
	candidates := []Candidate{
		{ID: "close", Text: "Museo de Bellas Artes.", Vector: []float32{1, 0.1}},
		{ID: "lexical", Text: "El HORARIO de la catedral cambia en verano.", Vector: []float32{1, 0.3}},
	}

	t.Run("weight zero matches cosine", func(t *testing.T) {
		got, err := NewLexical(0).Rerank(ctx, query, candidates, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"close", "lexical"}, ids(got))
		assert.InDelta(t, got[0].Cosine, got[0].Score, 1e-12)
	})

	t.Run("overlap lifts matching text", func(t *testing.T) {
		got, err := NewLexical(0.5).Rerank(ctx, query, candidates, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"lexical", "close"}, ids(got))
		assert.InDelta(t, 1.0, got[0].Overlap, 1e-9)
		assert.Zero(t, got[1].Overlap)
	})

	t.Run("weight is clamped", func(t *testing.T) {
		assert.Equal(t, 1.0, NewLexical(3).Weight)
		assert.Equal(t, 0.0, NewLexical(-1).Weight)
	})
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"accents folded", "Córdoba, ANIMACIÓN!", []string{"cordoba", "animacion"}},
		{"stopwords and short tokens dropped", "the horario de las tres", []string{"horario", "tres"}},
		{"digits kept", "año 2024", []string{"ano", "2024"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestTermOverlap(t *testing.T) {
	assert.InDelta(t, 0.5, termOverlap([]string{"a1x", "b2y", "a1x"}, []string{"a1x"}), 1e-9)
	assert.Zero(t, termOverlap(nil, []string{"x"}))
}
