// Package reranker re-orders retrieval candidates by local scores.
package reranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// ErrInvalidCandidate is returned for a candidate without a usable vector.
var ErrInvalidCandidate = fmt.Errorf("%w: candidate vector missing or wrong dimension", ragerr.ErrIndex)

// Candidate is a search hit to be re-ranked.
type Candidate struct {
	ID         string
	Text       string
	Source     string
	Page       *int
	ChunkIndex int
	Vector     []float32
	// BackendScore is the similarity reported by the index.
	BackendScore float32
}

// Scored is a re-ranked candidate.
type Scored struct {
	Candidate
	// Score is the final score; for Cosine it is the local cosine.
	Score  float64
	Cosine float64
	// Overlap is the query term overlap, 0 unless Lexical ran.
	Overlap float64
	// OriginalRank is the position in the backend order, 0-indexed.
	OriginalRank int
}

// Query is what candidates are ranked against.
type Query struct {
	Text   string
	Vector []float32
}

// Reranker re-orders candidates.
type Reranker interface {
	// Rerank returns at most topK candidates sorted by Score descending.
	// topK <= 0 keeps every candidate.
	//
	// The caller is responsible for ensuring ctx is not nil.
	Rerank(ctx context.Context, query Query, candidates []Candidate, topK int) ([]Scored, error)
}
