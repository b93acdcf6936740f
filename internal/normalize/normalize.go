// Package normalize prepares free-text bank descriptions and
// registered names for comparison. All functions are pure and
// deterministic.
package normalize

import (
	"strings"
	"unicode"
)

// MinTokenLen is the shortest token considered meaningful for
// similarity purposes. Shorter tokens (DE, DA, E...) are connective
// noise in Portuguese names.
const MinTokenLen = 3

var accents = map[rune]rune{
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ã': 'A', 'Ä': 'A',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Õ': 'O', 'Ö': 'O',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'Ç': 'C', 'Ñ': 'N',
}

// Normalize uppercases, strips accents and collapses every run of
// punctuation or whitespace into a single space. Digits are kept so
// tax ids and document numbers survive for substring search.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true // swallow leading separators
	for _, r := range s {
		r = unicode.ToUpper(r)
		if repl, ok := accents[r]; ok {
			r = repl
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the normalized tokens of s that are at least
// MinTokenLen runes long.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= MinTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenSet returns Tokens as a set for overlap computations.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// DigitsOnly strips everything but decimal digits, the canonical form
// for tax id comparison.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Jaccard computes token-set overlap between two strings, ignoring
// tokens shorter than MinTokenLen. Returns a value in [0,1].
func Jaccard(a, b string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
