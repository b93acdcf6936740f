package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"accents stripped", "Conciliação Bancária", "CONCILIACAO BANCARIA"},
		{"punctuation collapsed", "PIX  - RECEBIDO... DE: JOÃO", "PIX RECEBIDO DE JOAO"},
		{"digits kept", "CNPJ 12.345.678/0001-90", "CNPJ 12 345 678 0001 90"},
		{"already clean", "EMPRESA EXEMPLO LTDA", "EMPRESA EXEMPLO LTDA"},
		{"empty", "", ""},
		{"only separators", " -- // ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	in := "Pgto Honorários — Açúcar & Cia."
	assert.Equal(t, Normalize(in), Normalize(in))
}

func TestTokens(t *testing.T) {
	got := Tokens("Pagamento de honorários da Empresa X")
	// "de", "da" and "X" are below the minimum token length.
	assert.Equal(t, []string{"PAGAMENTO", "HONORARIOS", "EMPRESA"}, got)
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "12345678000190", DigitsOnly("12.345.678/0001-90"))
	assert.Equal(t, "", DigitsOnly("sem digitos"))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("EMPRESA EXEMPLO", "exemplo empresa"))
	assert.Equal(t, 0.0, Jaccard("EMPRESA EXEMPLO", "OUTRA COISA"))
	assert.Equal(t, 0.0, Jaccard("", "EMPRESA"))

	// one shared token out of three distinct
	got := Jaccard("COMERCIO SILVA", "PADARIA SILVA")
	assert.InDelta(t, 1.0/3.0, got, 1e-9)
}
