package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/answer"
)

// FormatScore formats a similarity as "0.873".
func FormatScore(score float64) string {
	return fmt.Sprintf("%.3f", score)
}

// FormatLatency formats d as "X.Xms" or "X.Xs".
func FormatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatSource formats a source reference as "[n] source p.page (score)".
func FormatSource(n int, s answer.Source) string {
	ref := fmt.Sprintf("[%d] %s", n, s.Source)
	if s.Page != nil {
		ref += fmt.Sprintf(" p.%d", *s.Page)
	}
	return fmt.Sprintf("%s (%s)", ref, FormatScore(s.Score))
}

// FormatAnswer renders an answer and its sources as plain text. Debug
// answers add backend scores, chunk indices and selection details.
func FormatAnswer(a *answer.Answer) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.Text))
	b.WriteString("\n")
	if len(a.Sources) > 0 {
		b.WriteString("\nSources:\n")
	}
	for i, s := range a.Sources {
		b.WriteString("  ")
		b.WriteString(FormatSource(i+1, s))
		if a.Debug != nil {
			fmt.Fprintf(&b, " chunk=%d backend=%s", s.ChunkIndex, FormatScore(float64(s.BackendScore)))
		}
		b.WriteString("\n")
	}
	if d := a.Debug; d != nil {
		fmt.Fprintf(&b, "\nk_search=%d candidates=%d filtered=%d", d.KSearch, d.Candidates, d.Filtered)
		if d.Filter != "" {
			fmt.Fprintf(&b, " filter=%q", d.Filter)
		}
		b.WriteString("\n")
	}
	return b.String()
}
