package chunker

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

func prose(sentences int) string {
	words := []string{"Córdoba", "mezquita", "patio", "río", "puente", "judería", "alcázar", "flores"}
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("El ")
		for j := 0; j < 6; j++ {
			b.WriteString(words[(i+j)%len(words)])
			b.WriteString(" ")
		}
		b.WriteString("visitado hoy. ")
	}
	return b.String()
}

func TestSplit_HardCutExample(t *testing.T) {
	spans, err := Split(strings.Repeat("a", 2300), 1000, 150)
	require.NoError(t, err)

	require.Len(t, spans, 3)
	assert.Equal(t, [2]int{0, 1000}, [2]int{spans[0].Start, spans[0].End})
	assert.Equal(t, [2]int{850, 1850}, [2]int{spans[1].Start, spans[1].End})
	assert.Equal(t, [2]int{1700, 2300}, [2]int{spans[2].Start, spans[2].End})
}

func TestSplit_Invariants(t *testing.T) {
	text := prose(200)
	const maxChars, overlap = 300, 50

	spans, err := Split(text, maxChars, overlap)
	require.NoError(t, err)
	require.Greater(t, len(spans), 5)

	r := []rune(text)
	for i, s := range spans {
		assert.LessOrEqual(t, utf8.RuneCountInString(s.Text), maxChars, "span %d", i)
		assert.Equal(t, string(r[s.Start:s.End]), s.Text)
		if i == 0 {
			continue
		}
		prev := []rune(spans[i-1].Text)
		cur := []rune(s.Text)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]), "overlap between %d and %d", i-1, i)
	}
	assert.Equal(t, len(r), spans[len(spans)-1].End)
}

func TestSplit_PrefersSentenceEnd(t *testing.T) {
	text := strings.Repeat("x", 95) + ". " + strings.Repeat("y", 50)
	spans, err := Split(text, 100, 10)
	require.NoError(t, err)

	require.Len(t, spans, 2)
	assert.Equal(t, strings.Repeat("x", 95)+".", spans[0].Text)
	assert.Equal(t, 86, spans[1].Start)
}

func TestSplit_FallsBackToWhitespace(t *testing.T) {
	text := strings.Repeat("x", 93) + " " + strings.Repeat("y", 50)
	spans, err := Split(text, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 93), spans[0].Text)
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name              string
		text              string
		maxChars, overlap int
	}{
		{"empty text", "", 100, 10},
		{"whitespace text", " \n\t ", 100, 10},
		{"zero max", "abc", 0, 0},
		{"negative overlap", "abc", 100, -1},
		{"overlap equals max", "abc", 100, 100},
		{"overlap above max", "abc", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.text, tt.maxChars, tt.overlap)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)

			_, err = SplitSentences(tt.text, tt.maxChars, tt.overlap)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	spans, err := Split("corto", 100, 10)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "corto", spans[0].Text)
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "0907d5a7-e72d-5045-831d-ea5ae8021d82", idNamespace.String())
	assert.Equal(t, "76a03218-a023-543e-9e20-6d27951bd85f",
		ChunkID("guia.pdf", 3, "La Mezquita-Catedral de Córdoba."))

	assert.NotEqual(t, ChunkID("a", 0, "x"), ChunkID("a", 1, "x"))
	assert.NotEqual(t, ChunkID("a", 0, "x"), ChunkID("b", 0, "x"))
	assert.NotEqual(t, ChunkID("a", 0, "x"), ChunkID("a", 0, "y"))
}

func TestChunker_Deterministic(t *testing.T) {
	c, err := New(DefaultOptions())
	require.NoError(t, err)

	text := prose(120)
	first, err := c.ChunkText("guia.txt", text, nil)
	require.NoError(t, err)
	second, err := c.ChunkText("guia.txt", text, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, i, first[i].ChunkIndex)
		assert.Nil(t, first[i].Page)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Strategy: "semantic", MaxChars: 100, Overlap: 10})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	_, err = New(Options{MaxChars: 100, Overlap: 100})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	c, err := New(Options{MaxChars: 100, Overlap: 0})
	require.NoError(t, err)
	assert.Equal(t, StrategyWindow, c.Options().Strategy)
}

func TestChunker_ChunkDocument_WindowPages(t *testing.T) {
	doc := &extract.Document{Source: "informe.pdf", Pages: []extract.Page{
		{Number: 1, Text: strings.Repeat("a", 700)},
		{Number: 2, Text: strings.Repeat("b", 700)},
	}}
	c, err := New(DefaultOptions())
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageNumber())
	assert.Equal(t, 2, chunks[1].PageNumber())
	assert.Equal(t, "informe.pdf", chunks[1].Source)
}

func TestChunker_ChunkDocument_SentencePages(t *testing.T) {
	page1 := "La Mezquita fue construida en el siglo octavo y ampliada varias veces durante el califato."
	page2 := "El Puente Romano cruza el Guadalquivir y conecta el centro histórico con la torre de la Calahorra."
	doc := &extract.Document{Source: "guia.pdf", Pages: []extract.Page{
		{Number: 1, Text: page1},
		{Number: 2, Text: page2},
	}}
	c, err := New(Options{Strategy: StrategySentence, MaxChars: 120, Overlap: 0})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageNumber())
	assert.Equal(t, 2, chunks[1].PageNumber())
}

func TestChunker_ChunkTexts(t *testing.T) {
	c, err := New(Options{MaxChars: 50, Overlap: 5})
	require.NoError(t, err)

	chunks, err := c.ChunkTexts("faq", []string{"  primera respuesta  ", "", strings.Repeat("z", 120)})
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	assert.Equal(t, "primera respuesta", chunks[0].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 50)
	}

	_, err = c.ChunkTexts("faq", []string{" ", ""})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestNewChunk_Validation(t *testing.T) {
	_, err := NewChunk("", 0, "texto", nil)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	_, err = NewChunk("a.pdf", 0, "  ", nil)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	zero := 0
	_, err = NewChunk("a.pdf", 0, "texto", &zero)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)

	ch, err := NewChunk("a.pdf", 2, "texto", IntPtr(4))
	require.NoError(t, err)
	assert.Equal(t, 4, ch.PageNumber())
	assert.Equal(t, ChunkID("a.pdf", 2, "texto"), ch.ID)
}

func TestJSONL_RoundTrip(t *testing.T) {
	c, err := New(Options{MaxChars: 80, Overlap: 10})
	require.NoError(t, err)
	chunks, err := c.ChunkText("guia.pdf", prose(10), IntPtr(2))
	require.NoError(t, err)
	chunks[0].Page = nil

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, chunks))
	assert.Equal(t, len(chunks), strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"page":null`)

	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(chunks))
	for i := range chunks {
		assert.Equal(t, chunks[i].ID, got[i].ID)
		assert.Equal(t, chunks[i].Page, got[i].Page)
		assert.True(t, chunks[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestReadJSONL_LegacyRecords(t *testing.T) {
	in := `{"id": 0, "text": "Primer fragmento.", "source": "cordoba_docs"}

{"id": 1, "text": "Segundo fragmento.", "source": "cordoba_docs"}
`
	got, err := ReadJSONL(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].ChunkIndex)
	assert.Equal(t, ChunkID("cordoba_docs", 1, "Segundo fragmento."), got[1].ID)
}

func TestDecodeJSONL_StaleID(t *testing.T) {
	c, err := New(Options{MaxChars: 80, Overlap: 10})
	require.NoError(t, err)
	chunks, err := c.ChunkText("guia.pdf", prose(4), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	stale := chunks[1].ID
	chunks[1].Text = "Texto corregido a mano después de exportar."

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, chunks))

	type report struct {
		line            int
		stored, derived string
	}
	var reports []report
	got, err := DecodeJSONL(&buf, func(line int, stored, derived string) {
		reports = append(reports, report{line, stored, derived})
	})
	require.NoError(t, err)
	require.Len(t, got, len(chunks))

	want := ChunkID("guia.pdf", 1, "Texto corregido a mano después de exportar.")
	assert.Equal(t, want, got[1].ID)
	assert.Equal(t, chunks[0].ID, got[0].ID)
	assert.Equal(t, []report{{2, stale, want}}, reports)
}

func TestReadJSONL_Errors(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"text\":\"a\",\"source\":\"s\"}\n{broken\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadJSONL(strings.NewReader(`{"text":"sin fuente"}`))
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestSources(t *testing.T) {
	chunks := []Chunk{{Source: "b"}, {Source: "a"}, {Source: "b"}}
	assert.Equal(t, []string{"b", "a"}, Sources(chunks))
}
