package chunker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// WriteJSONL writes one chunk per line in order.
func WriteJSONL(w io.Writer, chunks []Chunk) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encoding chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// jsonlRecord accepts older chunk files: numeric ids, and records without
// chunk_index or created_at.
type jsonlRecord struct {
	ID         json.RawMessage `json:"id"`
	Text       string          `json:"text"`
	Source     string          `json:"source"`
	Page       *int            `json:"page"`
	ChunkIndex *int            `json:"chunk_index"`
	CreatedAt  *time.Time      `json:"created_at"`
}

// StaleIDFunc is called for a record whose stored id differs from the id
// derived from its source, chunk_index and text.
type StaleIDFunc func(line int, stored, derived string)

// ReadJSONL reads and validates chunks. See DecodeJSONL.
func ReadJSONL(r io.Reader) ([]Chunk, error) {
	return DecodeJSONL(r, nil)
}

// DecodeJSONL reads and validates chunks. A record without chunk_index gets
// the next index for its source. Every id is re-derived from the record's
// content; a stored UUID that differs is replaced and reported to onStale.
// Errors name the offending line.
func DecodeJSONL(r io.Reader, onStale StaleIDFunc) ([]Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		chunks []Chunk
		next   = make(map[string]int)
		line   int
	)
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ragerr.ErrConfiguration, line, err)
		}

		index := next[rec.Source]
		if rec.ChunkIndex != nil {
			index = *rec.ChunkIndex
		}
		next[rec.Source] = index + 1

		c := Chunk{
			ID:         ChunkID(rec.Source, index, rec.Text),
			Text:       rec.Text,
			Source:     rec.Source,
			Page:       rec.Page,
			ChunkIndex: index,
		}
		if stored := recordID(rec.ID); stored != "" && stored != c.ID && onStale != nil {
			onStale(line, stored, c.ID)
		}
		if rec.CreatedAt != nil {
			c.CreatedAt = rec.CreatedAt.UTC()
		} else {
			c.CreatedAt = time.Now().UTC().Truncate(time.Second)
		}

		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %w", ragerr.ErrConfiguration, line+1, err)
	}
	return chunks, nil
}

// recordID returns the id if it is a UUID string, else "".
func recordID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	if _, err := uuid.Parse(s); err != nil {
		return ""
	}
	return s
}

// Sources returns the distinct sources in first-seen order.
func Sources(chunks []Chunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}
