package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var textPieces = []string{
	"Córdoba", "mezquita", "niño", "señal", "über", "Él", "ÑANDÚ", "río", "¿Dónde", "está?",
	"¡Olé!", "café.", "x", "ab", "2.1", "•", "-", "Plaza Mayor.", "año", "🙂",
	" ", "  ", "   ", "\t", "\n", "\n\n", " \n \n ", ". ", "! ", "? ",
}

// randomText builds UTF-8 text with accented words, punctuation and runs of
// mixed whitespace. It always contains a non-space rune.
func randomText(rng *rand.Rand) string {
	var b strings.Builder
	b.WriteString("Inicio")
	for i, n := 0, rng.IntN(400); i < n; i++ {
		b.WriteString(textPieces[rng.IntN(len(textPieces))])
		if rng.IntN(3) > 0 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// randomParams returns max_chars in [2, 300] and an overlap below it, biased
// towards max_chars-1 and zero.
func randomParams(rng *rand.Rand) (maxChars, overlap int) {
	maxChars = 2 + rng.IntN(299)
	switch rng.IntN(4) {
	case 0:
		overlap = maxChars - 1
	case 1:
		overlap = 0
	default:
		overlap = rng.IntN(maxChars)
	}
	return maxChars, overlap
}

func lastNonSpace(s string) rune {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func TestSplit_RandomInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		text := randomText(rng)
		maxChars, overlap := randomParams(rng)
		tolerance := rng.IntN(maxChars)
		runes := []rune(text)

		spans, err := SplitWithTolerance(text, maxChars, overlap, tolerance)
		require.NoError(t, err, "case %d", i)
		require.NotEmpty(t, spans)

		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, len(runes), spans[len(spans)-1].End)
		for j, s := range spans {
			require.LessOrEqual(t, s.End-s.Start, maxChars, "case %d span %d", i, j)
			require.Equal(t, string(runes[s.Start:s.End]), s.Text, "case %d span %d", i, j)
			require.Equal(t, s.End-s.Start, utf8.RuneCountInString(s.Text))
			if j == 0 {
				continue
			}
			prev := spans[j-1]
			require.Equal(t, prev.End-overlap, s.Start, "case %d span %d: overlap", i, j)
			require.Greater(t, s.Start, prev.Start, "case %d span %d: no progress", i, j)
		}
	}
}

func TestSplitSentences_RandomInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 500; i++ {
		text := randomText(rng)
		maxChars, overlap := randomParams(rng)

		chunks, err := SplitSentences(text, maxChars, overlap)
		require.NoError(t, err, "case %d", i)
		require.NotEmpty(t, chunks)

		for j, c := range chunks {
			require.NotEmpty(t, strings.TrimSpace(c), "case %d chunk %d", i, j)
			require.True(t, utf8.ValidString(c))
			require.LessOrEqual(t, utf8.RuneCountInString(c), maxChars, "case %d chunk %d", i, j)
		}
		assert.Equal(t, lastNonSpace(text), lastNonSpace(chunks[len(chunks)-1]), "case %d", i)
	}
}

func TestChunker_ChunkText_RandomInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 17))
	for i := 0; i < 200; i++ {
		text := randomText(rng)
		maxChars, overlap := randomParams(rng)
		strategy := StrategyWindow
		if i%2 == 1 {
			strategy = StrategySentence
		}

		c, err := New(Options{Strategy: strategy, MaxChars: maxChars, Overlap: overlap})
		require.NoError(t, err)
		chunks, err := c.ChunkText("guia.txt", text, nil)
		require.NoError(t, err, "case %d", i)
		require.NotEmpty(t, chunks)

		for j, ch := range chunks {
			require.NoError(t, ch.Validate())
			assert.Equal(t, j, ch.ChunkIndex)
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), maxChars, "case %d chunk %d", i, j)
			assert.Equal(t, ChunkID("guia.txt", j, ch.Text), ch.ID)
		}

		again, err := c.ChunkText("guia.txt", text, nil)
		require.NoError(t, err)
		require.Len(t, again, len(chunks))
		for j := range chunks {
			assert.Equal(t, chunks[j].ID, again[j].ID, "case %d chunk %d", i, j)
			assert.Equal(t, chunks[j].Text, again[j].Text)
		}
	}
}

func TestSplit_MultibyteOverlapTable(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		overlap  int
	}{
		{"accents hard cut", strings.Repeat("ñáéíóú", 50), 40, 39},
		{"emoji", strings.Repeat("🙂a", 100), 17, 5},
		{"newline runs", strings.Repeat("uno\n\n\n   dos\t\t", 30), 25, 24},
		{"spaces only between words", "Él " + strings.Repeat("     ", 80) + " fin.", 10, 3},
		{"overlap zero", strings.Repeat("Sevilla. ", 40), 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := Split(tt.text, tt.maxChars, tt.overlap)
			require.NoError(t, err)
			for j := range spans {
				assert.LessOrEqual(t, utf8.RuneCountInString(spans[j].Text), tt.maxChars)
				if j > 0 {
					prev := []rune(spans[j-1].Text)
					shared := string(prev[len(prev)-tt.overlap:])
					assert.True(t, strings.HasPrefix(spans[j].Text, shared), "span %d", j)
				}
			}
		})
	}
}
