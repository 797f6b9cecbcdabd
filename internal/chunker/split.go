package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Span is a chunk of text with its rune offsets [Start, End) in the input.
type Span struct {
	Text  string
	Start int
	End   int
}

// validateParams rejects parameter sets that cannot make progress.
func validateParams(text string, maxChars, overlap int) error {
	switch {
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: text is empty", ragerr.ErrConfiguration)
	case maxChars <= 0:
		return fmt.Errorf("%w: max_chars must be > 0, got %d", ragerr.ErrConfiguration, maxChars)
	case overlap < 0:
		return fmt.Errorf("%w: overlap must be >= 0, got %d", ragerr.ErrConfiguration, overlap)
	case maxChars <= overlap:
		return fmt.Errorf("%w: max_chars (%d) must be greater than overlap (%d)", ragerr.ErrConfiguration, maxChars, overlap)
	}
	return nil
}

// Split cuts text into windows of at most maxChars runes. Consecutive spans
// share exactly overlap runes. The break tolerance is maxChars/10.
func Split(text string, maxChars, overlap int) ([]Span, error) {
	return SplitWithTolerance(text, maxChars, overlap, 0)
}

// SplitWithTolerance is Split with an explicit break tolerance. A tolerance
// <= 0 means maxChars/10.
//
// Within the last tolerance runes of a window the cut prefers, in order, a
// whitespace after '.', '!' or '?', then any whitespace, then a hard cut at
// maxChars. A cut is only taken past start+overlap so every window advances.
func SplitWithTolerance(text string, maxChars, overlap, tolerance int) ([]Span, error) {
	if err := validateParams(text, maxChars, overlap); err != nil {
		return nil, err
	}
	if tolerance <= 0 {
		tolerance = maxChars / 10
	}

	r := []rune(text)
	n := len(r)
	spans := make([]Span, 0, n/(maxChars-overlap)+1)

	start := 0
	for {
		if n-start <= maxChars {
			spans = append(spans, Span{Text: string(r[start:]), Start: start, End: n})
			return spans, nil
		}
		end := findBreak(r, start, start+maxChars, tolerance, overlap)
		spans = append(spans, Span{Text: string(r[start:end]), Start: start, End: end})
		start = end - overlap
	}
}

// findBreak returns the exclusive end of the window starting at start.
// r[limit] exists because the caller only asks when text remains past limit.
func findBreak(r []rune, start, limit, tolerance, overlap int) int {
	lo := max(limit-tolerance, start+overlap+1)

	for c := limit; c >= lo; c-- {
		if unicode.IsSpace(r[c]) && isSentenceEnd(r[c-1]) {
			return c
		}
	}
	for c := limit; c >= lo; c-- {
		if unicode.IsSpace(r[c]) {
			return c
		}
	}
	return limit
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
