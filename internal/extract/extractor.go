package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// ErrUnsupportedFormat is returned for file extensions ragd cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts raw document bytes into pages.
type Extractor interface {
	Extract(ctx context.Context, source string, data []byte) (*Document, error)
}

// SupportedExtensions lists the file types ExtractFile accepts.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// Supported reports whether path has a supported extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Service picks an extractor by file extension.
type Service struct {
	pdf  Extractor
	text Extractor
}

// NewService creates a Service. A nil pdf extractor uses the default chain
// (native parser, then pdftotext).
func NewService(pdf Extractor) *Service {
	if pdf == nil {
		pdf = NewChain(NewPDFExtractor(), NewPdftotextExtractor(nil))
	}
	return &Service{pdf: pdf, text: TextExtractor{}}
}

// ExtractFile reads and extracts path. The source label is the base name.
// Failures are *ragerr.ExtractionError.
func (s *Service) ExtractFile(ctx context.Context, path string) (*Document, error) {
	source := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ragerr.ExtractionError{Source: source, Err: err}
	}
	return s.ExtractBytes(ctx, source, filepath.Ext(path), data)
}

// ExtractBytes extracts data according to ext (".pdf", ".txt", ".md").
func (s *Service) ExtractBytes(ctx context.Context, source, ext string, data []byte) (*Document, error) {
	var ex Extractor
	switch strings.ToLower(ext) {
	case ".pdf":
		ex = s.pdf
	case ".txt", ".md":
		ex = s.text
	default:
		return nil, &ragerr.ExtractionError{Source: source, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)}
	}

	doc, err := ex.Extract(ctx, source, data)
	if err != nil {
		var extErr *ragerr.ExtractionError
		if errors.As(err, &extErr) {
			return nil, err
		}
		return nil, &ragerr.ExtractionError{Source: source, Err: err}
	}
	return doc, nil
}

// TextExtractor treats plain text and markdown as a single page.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(_ context.Context, source string, data []byte) (*Document, error) {
	doc := &Document{Source: source, Pages: []Page{{Number: 1, Text: string(data)}}}
	if doc.IsEmpty() {
		return nil, &ragerr.ExtractionError{Source: source, Err: ErrNoText}
	}
	return doc, nil
}

// Chain tries extractors in order and returns the first non-empty result.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a Chain.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// Extract implements Extractor. If every extractor fails, the errors are joined.
func (c *Chain) Extract(ctx context.Context, source string, data []byte) (*Document, error) {
	var errs []error
	for _, ex := range c.extractors {
		doc, err := ex.Extract(ctx, source, data)
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil {
			return nil, &ragerr.ExtractionError{Source: source, Err: ctx.Err()}
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, ErrNoText)
	}
	return nil, &ragerr.ExtractionError{Source: source, Err: errors.Join(errs...)}
}
