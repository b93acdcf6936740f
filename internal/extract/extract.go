// Package extract pulls structured hints out of bank transaction
// descriptions. Every rule runs independently; an unmatched pattern
// yields an absent hint, never an error.
package extract

import (
	"regexp"
	"strings"

	"concilia/internal/normalize"
)

// Tax id lengths used by the national registries.
const (
	TaxIDIndividualLen   = 11 // CPF
	TaxIDOrganizationLen = 14 // CNPJ
)

// Hints carries whatever could be recognized in a description. The
// scorer decides which hints to trust.
type Hints struct {
	TaxID       string // digits only, 11 or 14 long
	TaxIDKind   string // "individual" or "organization"
	BatchCode   string // grouped-collection code (COBxxxx)
	GroupedHit  bool   // generic grouped-collection marker present
	PayerName   string // normalized free-text payer guess
	PaymentRail string // PIX, TED, DOC, TRANSFERENCIA, BOLETO or OUTROS
}

var (
	reTaxIDFormatted = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}|\d{3}\.\d{3}\.\d{3}-\d{2}`)
	reTaxIDBare      = regexp.MustCompile(`(?:^|[^0-9])(\d{11}|\d{14})(?:[^0-9]|$)`)

	reBatchCode = regexp.MustCompile(`\bCOB\d+\b`)
	reGrouped   = regexp.MustCompile(`COBRANCA|LIQ\.?\s*COB|LIQUIDACAO\s*COBRANCA`)

	rePixCred     = regexp.MustCompile(`PIX[_\s]?CRED\s+\d+\s+(.+)$`)
	reReceivedOf  = regexp.MustCompile(`RECEBIDO\s+DE\s+(.+)$`)
	rePayerMarker = regexp.MustCompile(`PAGADOR\s+(.+)$`)
)

// Extract runs all hint rules against a raw description.
func Extract(description string) Hints {
	norm := normalize.Normalize(description)

	h := Hints{
		PaymentRail: paymentRail(norm),
	}
	h.TaxID, h.TaxIDKind = extractTaxID(description, norm)
	h.BatchCode = reBatchCode.FindString(norm)
	h.GroupedHit = h.BatchCode != "" || reGrouped.MatchString(norm)
	h.PayerName = extractPayerName(norm)
	return h
}

// HasTaxID reports whether a tax id hint was found.
func (h Hints) HasTaxID() bool { return h.TaxID != "" }

// IsGrouped reports whether the description looks like a grouped
// collection credit (one bank movement covering many invoices).
func (h Hints) IsGrouped() bool { return h.GroupedHit }

func extractTaxID(raw, norm string) (string, string) {
	// Formatted ids first: the punctuation disambiguates them from
	// arbitrary digit runs (boleto lines, agency numbers).
	if m := reTaxIDFormatted.FindString(raw); m != "" {
		return classifyTaxID(normalize.DigitsOnly(m))
	}
	if m := reTaxIDBare.FindStringSubmatch(norm); m != nil {
		return classifyTaxID(m[1])
	}
	return "", ""
}

func classifyTaxID(digits string) (string, string) {
	switch len(digits) {
	case TaxIDIndividualLen:
		return digits, "individual"
	case TaxIDOrganizationLen:
		return digits, "organization"
	}
	return "", ""
}

func extractPayerName(norm string) string {
	for _, re := range []*regexp.Regexp{rePixCred, reReceivedOf, rePayerMarker} {
		if m := re.FindStringSubmatch(norm); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	// Fall back to the trailing segment: many banks append the payer
	// name after the movement code, e.g. "TED 123456 EMPRESA X LTDA".
	if name := trailingNameSegment(norm); name != "" {
		return name
	}
	return ""
}

// trailingNameSegment returns the longest run of alphabetic tokens at
// the end of the description, when it is plausibly a name.
func trailingNameSegment(norm string) string {
	fields := strings.Fields(norm)
	var name []string
	for i := len(fields) - 1; i >= 0; i-- {
		if normalize.DigitsOnly(fields[i]) != "" {
			break
		}
		name = append([]string{fields[i]}, name...)
	}
	if len(name) < 2 || len(name) == len(fields) {
		return ""
	}
	return strings.Join(name, " ")
}

func paymentRail(norm string) string {
	switch {
	case strings.Contains(norm, "PIX"):
		return "PIX"
	case strings.Contains(norm, "TED"):
		return "TED"
	case strings.Contains(norm, "DOC"):
		return "DOC"
	case strings.Contains(norm, "TRANSFERENCIA"):
		return "TRANSFERENCIA"
	case strings.Contains(norm, "BOLETO"):
		return "BOLETO"
	}
	return "OUTROS"
}
