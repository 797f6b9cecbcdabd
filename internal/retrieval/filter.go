package retrieval

import "github.com/fyrsmithlabs/ragd/internal/vectorstore"

// placeholders are values UIs and tool-calling models send for "no filter".
var placeholders = map[string]bool{
	"string":    true,
	"none":      true,
	"null":      true,
	"undefined": true,
	"true":      true,
	"false":     true,
}

// NormalizeFilterText folds accents and case and collapses whitespace. A
// placeholder value normalizes to "", meaning no filter.
func NormalizeFilterText(s string) string {
	n := vectorstore.NormalizeText(s)
	if placeholders[n] {
		return ""
	}
	return n
}
