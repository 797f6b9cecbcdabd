package chunker

import (
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/extract"
)

// Snippet lengths tried by GuessPage, longest first.
var snippetLengths = []int{200, 160, 120, 80}

// minSnippetRunes stops the search before snippets become ambiguous.
const minSnippetRunes = 40

func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// GuessPage finds the page a chunk came from by looking for a prefix of its
// normalized text in the normalized pages. It returns nil when no page matches.
func GuessPage(chunkText string, pages []extract.Page) *int {
	normalized := make([]string, len(pages))
	for i, p := range pages {
		normalized[i] = normalizeForMatch(p.Text)
	}
	return guessPage(normalizeForMatch(chunkText), pages, normalized)
}

func guessPage(chunk string, pages []extract.Page, normalized []string) *int {
	r := []rune(chunk)
	for _, n := range snippetLengths {
		snippet := r
		if len(snippet) > n {
			snippet = snippet[:n]
		}
		if len(snippet) < minSnippetRunes {
			return nil
		}
		s := string(snippet)
		for i, text := range normalized {
			if strings.Contains(text, s) {
				return IntPtr(pages[i].Number)
			}
		}
	}
	return nil
}

// EnrichPages fills Page for chunks that have none. It returns how many
// chunks were assigned a page.
func EnrichPages(chunks []Chunk, pages []extract.Page) int {
	normalized := make([]string, len(pages))
	for i, p := range pages {
		normalized[i] = normalizeForMatch(p.Text)
	}

	assigned := 0
	for i := range chunks {
		if chunks[i].Page != nil {
			continue
		}
		if page := guessPage(normalizeForMatch(chunks[i].Text), pages, normalized); page != nil {
			chunks[i].Page = page
			assigned++
		}
	}
	return assigned
}
