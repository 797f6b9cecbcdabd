package answer

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// Retriever finds the context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Query is a question to answer.
type Query struct {
	Question   string
	TopK       int
	FilterText string
	// Debug attaches selection details and chunk texts to the answer.
	Debug bool
}

// Service answers questions: retrieve, then compose.
type Service struct {
	retriever Retriever
	composer  *Composer
}

// NewService creates the query service.
func NewService(r Retriever, c *Composer) (*Service, error) {
	if r == nil || c == nil {
		return nil, fmt.Errorf("%w: retriever and composer are required", ragerr.ErrConfiguration)
	}
	return &Service{retriever: r, composer: c}, nil
}

// Ask retrieves context for q and composes the answer.
func (s *Service) Ask(ctx context.Context, q Query) (*Answer, error) {
	res, err := s.retriever.Retrieve(ctx, retrieval.Request{
		Question:   q.Question,
		TopK:       q.TopK,
		FilterText: q.FilterText,
	})
	if err != nil {
		return nil, err
	}

	ans, err := s.composer.Compose(ctx, q.Question, res.Chunks)
	if err != nil {
		return nil, err
	}
	if q.Debug {
		for i := range ans.Sources {
			ans.Sources[i].BackendScore = res.Chunks[i].BackendScore
			ans.Sources[i].Text = res.Chunks[i].Chunk.Text
		}
		ans.Debug = &Debug{
			KSearch:    res.KSearch,
			Candidates: res.Candidates,
			Filtered:   res.Filtered,
			Filter:     res.Filter,
			Prompt:     s.composer.BuildPrompt(q.Question, res.Chunks),
		}
	}
	return ans, nil
}
