// Package ragerr defines the failure taxonomy shared by every ragd component.
//
// Components wrap one of the sentinel kinds with fmt.Errorf("%w: ...") so the
// boundary layer can classify a failure with errors.Is without knowing which
// package produced it.
package ragerr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers invalid chunking parameters, unknown providers
	// and dimension mismatches on existing collections. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrExtraction covers unreadable or empty source documents.
	ErrExtraction = errors.New("extraction error")

	// ErrEmbedding covers unavailable models and invalid embedding output.
	ErrEmbedding = errors.New("embedding error")

	// ErrIndex covers vector store connectivity and rejected writes.
	ErrIndex = errors.New("index error")

	// ErrGeneration covers failures of the text generation capability.
	ErrGeneration = errors.New("generation error")
)

// ExtractionError reports a document that could not be turned into text.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Source, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

// retryable marks an error as safe for the caller to retry.
type retryable struct {
	err error
}

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

// Retryable marks err as transient. The error chain is preserved.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryable{err: err}
}

// IsRetryable reports whether err is a transient failure: a deadline that
// expired on an external call, or an error explicitly marked with Retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r *retryable
	return errors.As(err, &r)
}

// Kind returns the sentinel kind of err, or nil if err is not classified.
func Kind(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrExtraction, ErrEmbedding, ErrIndex, ErrGeneration} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
