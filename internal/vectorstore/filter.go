package vectorstore

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds text for containment checks: accents stripped (NFD,
// combining marks removed), lower-cased, whitespace runs collapsed to one
// space and trimmed.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ContainsText reports whether text contains phrase after both are
// normalized. An empty phrase matches everything.
func ContainsText(text, phrase string) bool {
	p := NormalizeText(phrase)
	if p == "" {
		return true
	}
	return strings.Contains(NormalizeText(text), p)
}

// matches applies f to a payload with exact source equality and normalized
// phrase containment.
func (f *Filter) matches(p Payload) bool {
	if f.IsEmpty() {
		return true
	}
	if f.Source != "" && p.Source != f.Source {
		return false
	}
	if f.MatchText != "" && !ContainsText(p.Text, f.MatchText) {
		return false
	}
	return true
}
