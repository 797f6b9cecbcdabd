package reranker

import (
	"context"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Lexical blends cosine similarity with query term overlap:
//
//	score = (1-Weight)*cosine + Weight*overlap
//
// Overlap is the share of distinct query terms found in the candidate text,
// after accent and case folding. Weight 0 ranks exactly like Cosine.
type Lexical struct {
	Weight float64
}

// NewLexical creates a Lexical reranker. weight is clamped to [0, 1].
func NewLexical(weight float64) *Lexical {
	return &Lexical{Weight: min(max(weight, 0), 1)}
}

// Rerank implements Reranker.
func (l *Lexical) Rerank(ctx context.Context, query Query, candidates []Candidate, topK int) ([]Scored, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	scored, err := scoreCosine(query.Vector, candidates)
	if err != nil {
		return nil, err
	}

	terms := tokenize(query.Text)
	for i := range scored {
		if len(terms) > 0 {
			scored[i].Overlap = termOverlap(terms, tokenize(scored[i].Text))
		}
		scored[i].Score = (1-l.Weight)*scored[i].Cosine + l.Weight*scored[i].Overlap
	}
	sortScored(scored)
	return truncate(scored, topK), nil
}

// tokenize folds text and splits it into terms, dropping stopwords and
// tokens shorter than three runes.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(vectorstore.NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !stopwords[token] && len([]rune(token)) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// stopwords are common English and Spanish function words, accent folded.
var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "she": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"los": true, "las": true, "del": true, "por": true, "para": true, "con": true,
	"una": true, "uno": true, "que": true, "como": true, "mas": true, "pero": true,
	"sus": true, "este": true, "esta": true, "esto": true, "estos": true, "estas": true,
	"ese": true, "esa": true, "son": true, "fue": true, "sin": true, "sobre": true,
	"entre": true, "cual": true, "donde": true, "cuando": true, "quien": true,
}

// termOverlap returns the share of distinct query terms present in doc.
func termOverlap(query, doc []string) float64 {
	if len(query) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(doc))
	for _, t := range doc {
		docSet[t] = true
	}
	distinct := make(map[string]bool, len(query))
	matched := 0
	for _, t := range query {
		if distinct[t] {
			continue
		}
		distinct[t] = true
		if docSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(distinct))
}
