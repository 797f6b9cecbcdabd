package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOnBoundaries(t *testing.T) {
	got := splitOnBoundaries("Primera frase. Segunda frase! tercera. 4 salas abiertas.")
	assert.Equal(t, []string{"Primera frase.", "Segunda frase! tercera.", "4 salas abiertas."}, got)

	got = splitOnBoundaries("Visita Écija? Sí.")
	assert.Equal(t, []string{"Visita Écija?", "Sí."}, got)
}

func TestIsHeader(t *testing.T) {
	assert.True(t, isHeader("2.1 Mercado audiovisual"))
	assert.True(t, isHeader("MADRID Y ANDALUCÍA"))
	assert.False(t, isHeader("la producción creció"))
	assert.False(t, isHeader("El sector creció un 5% en 2024."))
	assert.False(t, isHeader("ABC"))
}

func TestSentences_KeepsHeaderWhole(t *testing.T) {
	assert.Equal(t, []string{"3. RESULTADOS. DATOS 2024"}, sentences("3. RESULTADOS. DATOS 2024"))
}

func TestSplitSentences_SizeAndOverlap(t *testing.T) {
	const maxChars, overlap = 100, 20
	chunks, err := SplitSentences(prose(30), maxChars, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), maxChars, "chunk %d", i)
		if i > 0 {
			seed := strings.TrimSpace(tail(chunks[i-1], overlap))
			assert.True(t, strings.HasPrefix(chunks[i], seed), "chunk %d should start with %q", i, seed)
		}
	}
}

func TestSplitSentences_HardSplitsLongSentence(t *testing.T) {
	chunks, err := SplitSentences(strings.Repeat("a", 250), 100, 20)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 90)
}

func TestSplitSentences_Paragraphs(t *testing.T) {
	text := "Primer párrafo con   espacios.\n\n\nSegundo párrafo."
	chunks, err := SplitSentences(text, 200, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Primer párrafo con espacios. Segundo párrafo."}, chunks)
}
