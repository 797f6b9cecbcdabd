package answer

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

const fragmentSeparator = "\n\n---\n\n"

const groundingRules = `Answer the QUESTION using only the information in the CONTEXT below.
Do not use prior knowledge and do not invent facts, dates, prices or names.
If the CONTEXT does not contain the answer, say so explicitly by replying: %q
Cite the fragments you used by their number, for example [1].`

const noContextRules = `No context was found in the indexed documents for this question.
Do not answer from prior knowledge. Reply exactly: %q`

// BuildPrompt renders the grounded prompt for question and chunks.
func (c *Composer) BuildPrompt(question string, chunks []retrieval.ScoredChunk) string {
	var b strings.Builder
	if c.instructions != "" {
		b.WriteString(strings.TrimSpace(c.instructions))
		b.WriteString("\n\n")
	}

	if len(chunks) == 0 {
		fmt.Fprintf(&b, noContextRules, c.noContext)
		b.WriteString("\n\nQUESTION:\n")
		b.WriteString(strings.TrimSpace(question))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, groundingRules, c.noContext)
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nCONTEXT:\n")
	for i, sc := range chunks {
		if i > 0 {
			b.WriteString(fragmentSeparator)
		}
		b.WriteString(fragmentHeader(i+1, sc))
		b.WriteString("\n")
		b.WriteString(sc.Chunk.Text)
	}
	b.WriteString("\n\nANSWER:\n")
	return b.String()
}

// fragmentHeader formats "[n] source p.page"; the page is omitted when unknown.
func fragmentHeader(n int, sc retrieval.ScoredChunk) string {
	if sc.Chunk.Page == nil {
		return fmt.Sprintf("[%d] %s", n, sc.Chunk.Source)
	}
	return fmt.Sprintf("[%d] %s p.%d", n, sc.Chunk.Source, *sc.Chunk.Page)
}
