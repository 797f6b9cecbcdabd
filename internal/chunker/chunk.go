// Package chunker splits text into overlapping, size-bounded chunks with
// deterministic identifiers.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Chunk is the atomic retrieval unit.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	Page       *int      `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewChunk builds a validated chunk with its deterministic ID.
func NewChunk(source string, index int, text string, page *int) (Chunk, error) {
	c := Chunk{
		ID:         ChunkID(source, index, text),
		Text:       text,
		Source:     source,
		Page:       page,
		ChunkIndex: index,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	return c, c.Validate()
}

// Validate checks the required fields.
func (c Chunk) Validate() error {
	switch {
	case strings.TrimSpace(c.Source) == "":
		return fmt.Errorf("%w: chunk source is required", ragerr.ErrConfiguration)
	case strings.TrimSpace(c.Text) == "":
		return fmt.Errorf("%w: chunk %d of %s has no text", ragerr.ErrConfiguration, c.ChunkIndex, c.Source)
	case c.ChunkIndex < 0:
		return fmt.Errorf("%w: chunk_index must be >= 0, got %d", ragerr.ErrConfiguration, c.ChunkIndex)
	case c.Page != nil && *c.Page < 1:
		return fmt.Errorf("%w: page must be >= 1, got %d", ragerr.ErrConfiguration, *c.Page)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("%w: chunk id %q is not a UUID", ragerr.ErrConfiguration, c.ID)
	}
	return nil
}

// PageNumber returns the page or 0 when unknown.
func (c Chunk) PageNumber() int {
	if c.Page == nil {
		return 0
	}
	return *c.Page
}

// IntPtr returns a pointer to v, or nil for v <= 0.
func IntPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
