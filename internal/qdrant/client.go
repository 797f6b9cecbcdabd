// Package qdrant is the gRPC transport to a Qdrant server.
//
// It converts between ragd points and the go-client protobuf types, applies
// per-request timeouts and retries transient gRPC failures with exponential
// backoff. Collection semantics live in internal/vectorstore.
package qdrant

import (
	"context"
)

// Client is the subset of the Qdrant API ragd uses.
type Client interface {
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CreateFieldIndex(ctx context.Context, collection, field string, kind IndexKind) error

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)
	Count(ctx context.Context, collection string, filter *Filter) (uint64, error)
	Scroll(ctx context.Context, collection string, req ScrollRequest) ([]*Point, string, error)
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	Health(ctx context.Context) error
	Close() error
}

// CollectionInfo describes an existing collection. Exists is false when the
// collection is absent; the other fields are then zero.
type CollectionInfo struct {
	Exists     bool
	VectorSize uint64
	Points     uint64
	// Indexed lists payload fields with an index.
	Indexed []string
}

// IndexKind selects a payload index type.
type IndexKind int

const (
	// IndexKeyword is an exact-match index.
	IndexKeyword IndexKind = iota
	// IndexText is a full-text index with a word tokenizer and lower-casing.
	IndexText
)

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint represents a search result with score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter is a conjunction of conditions.
type Filter struct {
	Must []Condition
}

// Condition matches one payload field. Exactly one of Keyword or Text is set.
type Condition struct {
	Field   string
	Keyword string
	// Text is a full-text match against a text-indexed field.
	Text string
}

// ScrollRequest pages through points.
type ScrollRequest struct {
	Filter *Filter
	// Fields limits the returned payload. Empty returns no payload.
	Fields []string
	Limit  uint32
	// Offset is the point ID returned by the previous page.
	Offset string
}
