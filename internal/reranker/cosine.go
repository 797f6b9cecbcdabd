package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Cosine recomputes cosine similarity between the query vector and every
// candidate vector. Equal scores are ordered by chunk_index, then source,
// then ID, so the output is deterministic for any input order.
type Cosine struct{}

// NewCosine creates a Cosine reranker.
func NewCosine() *Cosine {
	return &Cosine{}
}

// Rerank implements Reranker.
func (c *Cosine) Rerank(ctx context.Context, query Query, candidates []Candidate, topK int) ([]Scored, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	scored, err := scoreCosine(query.Vector, candidates)
	if err != nil {
		return nil, err
	}
	for i := range scored {
		scored[i].Score = scored[i].Cosine
	}
	sortScored(scored)
	return truncate(scored, topK), nil
}

func scoreCosine(query []float32, candidates []Candidate) ([]Scored, error) {
	if len(candidates) == 0 {
		return []Scored{}, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidCandidate)
	}
	scored := make([]Scored, len(candidates))
	for i, cand := range candidates {
		if len(cand.Vector) != len(query) {
			return nil, fmt.Errorf("%w: %s has %d dimensions, query has %d",
				ErrInvalidCandidate, cand.ID, len(cand.Vector), len(query))
		}
		scored[i] = Scored{
			Candidate:    cand,
			Cosine:       CosineSimilarity(query, cand.Vector),
			OriginalRank: i,
		}
	}
	return scored, nil
}

// CosineSimilarity returns the cosine of a and b, or 0 when either is a zero
// vector. The vectors must have the same length.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ID < b.ID
	})
}

func truncate(s []Scored, topK int) []Scored {
	if topK > 0 && len(s) > topK {
		return s[:topK]
	}
	return s
}
