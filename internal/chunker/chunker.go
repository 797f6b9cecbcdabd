package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Strategies.
const (
	StrategyWindow   = "window"
	StrategySentence = "sentence"
)

// Defaults.
const (
	DefaultMaxChars = 1000
	DefaultOverlap  = 150
)

// Options configures a Chunker.
type Options struct {
	Strategy       string
	MaxChars       int
	Overlap        int
	BreakTolerance int
}

// DefaultOptions returns the window strategy at 1000/150.
func DefaultOptions() Options {
	return Options{Strategy: StrategyWindow, MaxChars: DefaultMaxChars, Overlap: DefaultOverlap}
}

// OptionsFrom maps the chunking config section.
func OptionsFrom(cfg config.ChunkingConfig) Options {
	return Options{
		Strategy:       cfg.Strategy,
		MaxChars:       cfg.MaxChars,
		Overlap:        cfg.Overlap,
		BreakTolerance: cfg.BreakTolerance,
	}
}

// Chunker turns text and documents into Chunks.
type Chunker struct {
	opts Options
}

// New validates opts and creates a Chunker.
func New(opts Options) (*Chunker, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyWindow
	}
	if opts.Strategy != StrategyWindow && opts.Strategy != StrategySentence {
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", ragerr.ErrConfiguration, opts.Strategy)
	}
	if err := validateParams("x", opts.MaxChars, opts.Overlap); err != nil {
		return nil, err
	}
	if opts.BreakTolerance < 0 || opts.BreakTolerance >= opts.MaxChars {
		return nil, fmt.Errorf("%w: break_tolerance must be in [0, max_chars)", ragerr.ErrConfiguration)
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// split runs the configured strategy.
func (c *Chunker) split(text string) ([]string, error) {
	if c.opts.Strategy == StrategySentence {
		return SplitSentences(text, c.opts.MaxChars, c.opts.Overlap)
	}
	spans, err := SplitWithTolerance(text, c.opts.MaxChars, c.opts.Overlap, c.opts.BreakTolerance)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out, nil
}

// ChunkText chunks a plain string. Every chunk gets page, which may be nil.
func (c *Chunker) ChunkText(source, text string, page *int) ([]Chunk, error) {
	pieces, err := c.split(text)
	if err != nil {
		return nil, err
	}
	pages := make([]*int, len(pieces))
	for i := range pages {
		pages[i] = page
	}
	return build(source, pieces, pages)
}

// ChunkTexts takes pre-split fragments. Fragments are trimmed and empty ones
// dropped; a fragment longer than max_chars is re-split with the window
// strategy. Chunk indices run continuously across fragments.
func (c *Chunker) ChunkTexts(source string, texts []string) ([]Chunk, error) {
	var pieces []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) <= c.opts.MaxChars {
			pieces = append(pieces, t)
			continue
		}
		spans, err := SplitWithTolerance(t, c.opts.MaxChars, c.opts.Overlap, c.opts.BreakTolerance)
		if err != nil {
			return nil, err
		}
		for _, s := range spans {
			pieces = append(pieces, s.Text)
		}
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: no non-empty texts for %s", ragerr.ErrConfiguration, source)
	}
	return build(source, pieces, nil)
}

// ChunkDocument chunks an extracted document. The window strategy resolves
// pages from rune offsets; the sentence strategy guesses them from content.
func (c *Chunker) ChunkDocument(doc *extract.Document) ([]Chunk, error) {
	text, offsets := doc.Flatten()

	if c.opts.Strategy == StrategySentence {
		pieces, err := SplitSentences(text, c.opts.MaxChars, c.opts.Overlap)
		if err != nil {
			return nil, err
		}
		chunks, err := build(doc.Source, pieces, nil)
		if err != nil {
			return nil, err
		}
		EnrichPages(chunks, doc.Pages)
		return chunks, nil
	}

	spans, err := SplitWithTolerance(text, c.opts.MaxChars, c.opts.Overlap, c.opts.BreakTolerance)
	if err != nil {
		return nil, err
	}
	pieces := make([]string, len(spans))
	pages := make([]*int, len(spans))
	for i, s := range spans {
		pieces[i] = s.Text
		pages[i] = IntPtr(extract.PageAt(offsets, s.Start))
	}
	return build(doc.Source, pieces, pages)
}

// build numbers the pieces in order. Whitespace-only pieces, possible only
// inside very long whitespace runs, are skipped without leaving index gaps.
// pages may be nil.
func build(source string, pieces []string, pages []*int) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(pieces))
	for i, text := range pieces {
		if strings.TrimSpace(text) == "" {
			continue
		}
		var page *int
		if pages != nil {
			page = pages[i]
		}
		ch, err := NewChunk(source, len(chunks), text, page)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, nil
}
