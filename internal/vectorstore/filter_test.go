package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Animación  Madrid", want: "animacion madrid"},
		{in: "  CÓRDOBA\n\tespaña ", want: "cordoba espana"},
		{in: "Über Straße", want: "uber straße"},
		{in: "", want: ""},
		{in: " \n ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestContainsText(t *testing.T) {
	assert.True(t, ContainsText("La ANIMACIÓN en  Madrid", "animacion en madrid"))
	assert.True(t, ContainsText("anything", "  "))
	assert.False(t, ContainsText("animación Barcelona", "animación Madrid"))
}

func TestFilter_Matches(t *testing.T) {
	p := Payload{Text: "Mezquita de Córdoba", Source: "guia.pdf"}

	var nilFilter *Filter
	assert.True(t, nilFilter.matches(p))
	assert.True(t, (&Filter{Source: "guia.pdf", MatchText: "cordoba"}).matches(p))
	assert.False(t, (&Filter{Source: "otro.pdf"}).matches(p))
	assert.False(t, (&Filter{MatchText: "sevilla"}).matches(p))
}
