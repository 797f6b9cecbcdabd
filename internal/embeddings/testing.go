package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashProvider is a deterministic feature-hashing embedder. Each lower-cased
// word is hashed into one of Dimension buckets with a hashed sign, and the
// result is L2 normalized. Texts sharing words get a positive cosine; nothing
// else about meaning is captured. Use it for tests and offline smoke runs.
type HashProvider struct {
	dimension int
}

// NewHashProvider returns a HashProvider producing vectors of length dim.
func NewHashProvider(dim int) *HashProvider {
	return &HashProvider{dimension: dim}
}

func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) Close() error { return nil }

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float64, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimension))
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dimension)
	if norm == 0 {
		// Opposite signs cancelled out; fall back to a fixed unit vector.
		out[0] = 1
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// MockProvider wraps a provider and fails any batch containing FailOn. It
// counts calls for assertions.
type MockProvider struct {
	Provider
	FailOn string
	// Override replaces every vector when set.
	Override []float32

	calls atomic.Int64
}

// NewMockProvider wraps a HashProvider of dimension dim.
func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{Provider: NewHashProvider(dim)}
}

func (m *MockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	for _, t := range texts {
		if m.FailOn != "" && strings.Contains(t, m.FailOn) {
			return nil, fmt.Errorf("%w: mock failure for %q", ErrEmbeddingFailed, m.FailOn)
		}
	}
	if m.Override != nil {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = m.Override
		}
		return out, nil
	}
	return m.Provider.EmbedDocuments(ctx, texts)
}

func (m *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.FailOn != "" && strings.Contains(text, m.FailOn) {
		return nil, fmt.Errorf("%w: mock failure for %q", ErrEmbeddingFailed, m.FailOn)
	}
	if m.Override != nil {
		return m.Override, nil
	}
	return m.Provider.EmbedQuery(ctx, text)
}

// Calls returns the number of embedding calls made so far.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }
