package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ragd/internal/extract"
)

var enrichPages = []extract.Page{
	{Number: 1, Text: "Introducción al informe del sector audiovisual en España, con datos de producción y empleo."},
	{Number: 2, Text: "La animación en Madrid concentra estudios de referencia y una parte relevante de la facturación nacional."},
}

func TestGuessPage(t *testing.T) {
	page := GuessPage("  La ANIMACIÓN en Madrid\nconcentra estudios de referencia y una parte relevante", enrichPages)
	if assert.NotNil(t, page) {
		assert.Equal(t, 2, *page)
	}

	assert.Nil(t, GuessPage("texto demasiado corto", enrichPages))
	assert.Nil(t, GuessPage("Este fragmento no aparece en ninguna de las páginas del documento original.", enrichPages))
}

func TestEnrichPages(t *testing.T) {
	chunks := []Chunk{
		{Text: "Introducción al informe del sector audiovisual en España, con datos"},
		{Text: "La animación en Madrid concentra estudios de referencia", Page: IntPtr(9)},
		{Text: "corto"},
	}

	assigned := EnrichPages(chunks, enrichPages)
	assert.Equal(t, 1, assigned)
	assert.Equal(t, 1, chunks[0].PageNumber())
	assert.Equal(t, 9, chunks[1].PageNumber(), "existing pages are kept")
	assert.Nil(t, chunks[2].Page)
}
