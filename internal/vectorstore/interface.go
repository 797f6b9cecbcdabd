// Package vectorstore manages the collection that holds chunk vectors and
// adapts the supported vector databases to one Index interface.
//
// Implementations:
//   - QdrantIndex: external Qdrant server over gRPC (default)
//   - ChromemIndex: embedded chromem-go, in memory or persisted to disk
//
// Every backend keeps a full-text index on the "text" payload field and a
// keyword index on "source", so retrieval can pre-filter candidates and
// deletes by source are cheap.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

var (
	// ErrDimensionMismatch is returned when an existing collection was created
	// with a different vector size than configured.
	ErrDimensionMismatch = fmt.Errorf("%w: collection dimension mismatch", ragerr.ErrConfiguration)

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = fmt.Errorf("%w: invalid collection name", ragerr.ErrConfiguration)

	// ErrUnsupportedDistance is returned for any distance other than cosine.
	ErrUnsupportedDistance = fmt.Errorf("%w: unsupported distance", ragerr.ErrConfiguration)

	// ErrCollectionNotFound is returned by operations that need an existing
	// collection.
	ErrCollectionNotFound = fmt.Errorf("%w: collection not found", ragerr.ErrIndex)
)

// Payload field names. They are part of the stored data format.
const (
	FieldText       = "text"
	FieldSource     = "source"
	FieldPage       = "page"
	FieldChunkIndex = "chunk_index"
	FieldCreatedAt  = "created_at"
)

// DistanceCosine is the only supported distance.
const DistanceCosine = "cosine"

// CollectionSpec is the contract a collection is created with.
type CollectionSpec struct {
	Name      string
	Dimension int
	Distance  string
}

// Validate checks the name, dimension and distance.
func (s CollectionSpec) Validate() error {
	if err := ValidateCollectionName(s.Name); err != nil {
		return err
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be > 0, got %d", ragerr.ErrConfiguration, s.Dimension)
	}
	if !strings.EqualFold(s.Distance, DistanceCosine) {
		return fmt.Errorf("%w: %q (only cosine)", ErrUnsupportedDistance, s.Distance)
	}
	return nil
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Exists    bool   `json:"exists"`
	Dimension int    `json:"dimension"`
	Points    int    `json:"points"`
	// Indexed lists payload fields with an index.
	Indexed []string `json:"indexed,omitempty"`
}

// Payload is the stored form of a chunk.
type Payload struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       *int   `json:"page,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	// CreatedAt is unix seconds.
	CreatedAt int64 `json:"created_at"`
}

// Record is one vector with its payload. Upserting a record with an existing
// ID replaces it.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a search result. Vector is the stored vector, used for local
// re-ranking.
type Hit struct {
	ID      string
	Score   float32
	Vector  []float32
	Payload Payload
}

// Filter restricts search, count and delete. Empty fields are ignored.
type Filter struct {
	// Source matches the source label exactly.
	Source string
	// MatchText requires the text to contain the phrase. Backends apply it as
	// a pre-filter with their own tokenization; callers that need exact
	// containment must post-filter.
	MatchText string
}

// IsEmpty reports whether f restricts nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Source == "" && f.MatchText == "")
}

// Index is the vector store capability consumed by ragd.
type Index interface {
	// EnsureCollection creates the collection if absent and its payload
	// indexes. An existing collection with another dimension returns
	// ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// ResetCollection drops and recreates the collection empty. Callers must
	// not run it concurrently with an upsert on the same collection.
	ResetCollection(ctx context.Context, spec CollectionSpec) error

	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	Upsert(ctx context.Context, collection string, records []Record) error

	// Search returns up to k hits ordered by backend similarity, each
	// carrying its vector. A missing or empty collection yields no hits.
	Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) ([]Hit, error)

	// Delete removes the records matching filter and returns the number
	// matched just before deletion.
	Delete(ctx context.Context, collection string, filter Filter) (int, error)

	Count(ctx context.Context, collection string, filter *Filter) (int, error)
	CountBySource(ctx context.Context, collection string) (map[string]int, error)

	Health(ctx context.Context) error
	Close() error
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateCollectionName checks the name is 1-64 letters, digits, '_' or '-'.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
