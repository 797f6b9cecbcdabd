package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a document yields no extractable text, e.g. a
// scanned PDF without a text layer.
var ErrNoText = errors.New("document contains no extractable text")

// infoKeys are the PDF info dictionary entries copied into Document.Meta.
var infoKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"}

// PDFExtractor parses PDFs in process with ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract implements Extractor. One Page is produced per PDF page, including
// empty ones, so page numbers match the file.
func (e *PDFExtractor) Extract(ctx context.Context, source string, data []byte) (doc *Document, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	n := reader.NumPage()
	doc = &Document{Source: source, Pages: make([]Page, 0, n), Meta: readInfo(reader)}
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}

	if doc.IsEmpty() {
		return nil, ErrNoText
	}
	return doc, nil
}

func readInfo(r *pdf.Reader) map[string]string {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}
	meta := make(map[string]string)
	for _, k := range infoKeys {
		if v := strings.TrimSpace(info.Key(k).Text()); v != "" {
			meta[strings.ToLower(k)] = v
		}
	}
	return meta
}
