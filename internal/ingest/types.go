package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Report summarizes one upsert request.
type Report struct {
	// Collection is where the chunks were written.
	Collection string `json:"collection"`

	// Sources lists the distinct sources in first-seen order.
	Sources []string `json:"sources"`

	// Chunks is the number of chunks submitted.
	Chunks int `json:"chunks"`

	// Upserted is the number of chunks confirmed written.
	Upserted int `json:"upserted"`

	// Batches is the number of batches the chunks were split into.
	Batches int `json:"batches"`

	// Failures lists the batches whose write failed, ordered by batch.
	Failures []BatchFailure `json:"failures,omitempty"`

	Duration time.Duration `json:"duration"`
}

// BatchFailure identifies the chunks of a batch that were not written.
type BatchFailure struct {
	Batch int `json:"batch"`
	// Start and End delimit the batch in the submitted chunk slice, End
	// exclusive.
	Start        int      `json:"start"`
	End          int      `json:"end"`
	ChunkIndices []int    `json:"chunk_indices"`
	IDs          []string `json:"ids"`
	Err          error    `json:"-"`
}

// PartialFailureError is returned with a Report when some batches failed to
// write and the others were committed.
type PartialFailureError struct {
	Failures []BatchFailure
	// Total is the number of batches attempted.
	Total int
}

func (e *PartialFailureError) Error() string {
	var chunks int
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		chunks += f.End - f.Start
		msgs = append(msgs, fmt.Sprintf("batch %d: %v", f.Batch, f.Err))
	}
	return fmt.Sprintf("%d of %d batches failed (%d chunks not written): %s",
		len(e.Failures), e.Total, chunks, strings.Join(msgs, "; "))
}

// Unwrap exposes the index kind and every batch cause.
func (e *PartialFailureError) Unwrap() []error {
	errs := []error{ragerr.ErrIndex}
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// DocumentFailure records a document that could not be ingested.
type DocumentFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
	// Message is Err as text, for JSON output.
	Message string `json:"error"`
}

// BulkReport summarizes IngestPaths.
type BulkReport struct {
	// Documents is the number of files found.
	Documents int `json:"documents"`
	// Ingested is the number of files that produced chunks.
	Ingested int `json:"ingested"`

	Failed []DocumentFailure `json:"failed,omitempty"`

	// Upsert is nil when no document produced chunks.
	Upsert *Report `json:"upsert,omitempty"`
}
