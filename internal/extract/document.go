// Package extract turns source documents into per-page text.
package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Page is one page of extracted text. Number is 1-based.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Document is an extracted source document.
type Document struct {
	Source string            `json:"source"`
	Pages  []Page            `json:"pages"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// PageOffset records where a page starts in the flattened text, in runes.
type PageOffset struct {
	Page  int
	Start int
}

// pageSeparator joins pages in the flattened text.
const pageSeparator = "\n\n"

// Flatten joins the trimmed page texts with a blank line and returns the
// starting rune offset of every page. Empty pages are skipped.
func (d *Document) Flatten() (string, []PageOffset) {
	var (
		b       strings.Builder
		offsets []PageOffset
		runes   int
	)
	for _, p := range d.Pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageSeparator)
			runes += utf8.RuneCountInString(pageSeparator)
		}
		offsets = append(offsets, PageOffset{Page: p.Number, Start: runes})
		b.WriteString(text)
		runes += utf8.RuneCountInString(text)
	}
	return b.String(), offsets
}

// PageAt returns the page containing rune offset pos, or 0 if offsets is empty.
func PageAt(offsets []PageOffset, pos int) int {
	page := 0
	for _, o := range offsets {
		if o.Start > pos {
			break
		}
		page = o.Page
	}
	return page
}

// IsEmpty reports whether no page carries any non-whitespace text.
func (d *Document) IsEmpty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// pagesFile is the on-disk form written by `ragd extract`.
type pagesFile struct {
	Source   string            `json:"source"`
	NumPages int               `json:"num_pages"`
	Pages    []Page            `json:"pages"`
	Meta     map[string]string `json:"meta"`
}

// WriteJSON writes the document with its page count.
func WriteJSON(w io.Writer, d *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	meta := d.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return enc.Encode(pagesFile{Source: d.Source, NumPages: len(d.Pages), Pages: d.Pages, Meta: meta})
}

// ReadJSON reads a document written by WriteJSON.
func ReadJSON(r io.Reader) (*Document, error) {
	var f pagesFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding pages file: %w", err)
	}
	return &Document{Source: f.Source, Pages: f.Pages, Meta: f.Meta}, nil
}
