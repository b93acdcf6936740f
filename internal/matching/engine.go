// Package matching scores open candidates against bank transactions
// and searches for grouped-payment combinations. Everything here is
// pure computation over already-loaded domain objects; persistence and
// side effects belong to the decision policy.
package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"concilia/internal/extract"
	"concilia/internal/models"
	"concilia/internal/normalize"
)

// Engine evaluates one transaction against a candidate universe.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with cfg (zero fields take defaults).
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.Normalize()}
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate scores every candidate, ranks the results and, when no
// single candidate covers the transaction amount, falls back to the
// combination search. The returned slice is ordered best-first and may
// be empty.
func (e *Engine) Evaluate(tx *models.Transaction, hints extract.Hints, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	amountCovered := false

	for _, cand := range candidates {
		m := ScoreCandidate(tx, cand, hints, e.cfg)
		if m.Confidence <= 0 {
			continue
		}
		if hasCriterion(m, "exact_amount") {
			amountCovered = true
		}
		matches = append(matches, m)
	}

	if !amountCovered {
		if combos := e.searchCombinations(tx, hints, candidates); len(combos) > 0 {
			matches = append(matches, combos...)
		}
	}

	Rank(matches)
	return matches
}

// searchCombinations restricts the pool to the counterparty identified
// by the extraction hints when there is one; a grouped credit pays a
// single client's open invoices, not a mix of clients.
func (e *Engine) searchCombinations(tx *models.Transaction, hints extract.Hints, candidates []Candidate) []Match {
	pool := make([]*models.Candidate, 0, len(candidates))
	restricted := e.hintedCounterparty(hints, candidates)
	for _, cand := range candidates {
		if restricted != 0 && cand.Candidate.CounterpartyID != restricted {
			continue
		}
		pool = append(pool, cand.Candidate)
	}

	combos := FindCombinations(tx.Amount, pool, e.cfg)
	matches := make([]Match, 0, len(combos))
	for _, combo := range combos {
		if len(combo.Candidates) < 2 {
			continue // single candidates are the scorer's job
		}
		m := Match{
			Method:     models.MethodCombination,
			Confidence: combo.Confidence,
			Criteria:   []string{"combination_sum"},
			Candidates: combo.Candidates,
		}
		for _, c := range combo.Candidates {
			m.CandidateIDs = append(m.CandidateIDs, c.ID)
		}
		m.closestDue = closestDueDistance(tx, combo.Candidates)
		matches = append(matches, m)
	}
	return matches
}

// hintedCounterparty resolves the extraction hints to a counterparty
// id, or 0 when nothing identifies one.
func (e *Engine) hintedCounterparty(hints extract.Hints, candidates []Candidate) int64 {
	if !hints.HasTaxID() {
		return 0
	}
	for _, cand := range candidates {
		cp := cand.Counterparty
		if cp == nil {
			continue
		}
		if digitsMatch(cp.TaxID, hints.TaxID) {
			return cp.ID
		}
		for _, alias := range cp.Aliases {
			if alias.Active && digitsMatch(alias.TaxID, hints.TaxID) {
				return cp.ID
			}
		}
	}
	return 0
}

// SumWithinTolerance reports whether the match's candidate amounts sum
// to the transaction amount within the configured tolerance. Always
// true for matches produced by this engine; callers use it as the
// defensive imbalance check before settling.
func (e *Engine) SumWithinTolerance(tx *models.Transaction, m Match) bool {
	sum := decimal.Zero
	for _, c := range m.Candidates {
		sum = sum.Add(c.Amount.Abs())
	}
	if m.Method != models.MethodCombination && !hasCriterion(m, "exact_amount") {
		// Single-candidate fuzzy matches may settle with an
		// approximate amount; the one-cent rule binds combinations
		// and exact matches only.
		rel := tx.Amount.Abs().Sub(sum).Abs()
		if sum.IsPositive() {
			return rel.Div(sum).LessThanOrEqual(e.cfg.ApproxTolerance)
		}
		return false
	}
	return tx.Amount.Abs().Sub(sum).Abs().LessThanOrEqual(e.cfg.AmountTolerance)
}

func digitsMatch(registered, extracted string) bool {
	d := normalize.DigitsOnly(registered)
	return d != "" && d == extracted
}

func hasCriterion(m Match, name string) bool {
	for _, c := range m.Criteria {
		if c == name {
			return true
		}
	}
	return false
}

func closestDueDistance(tx *models.Transaction, candidates []*models.Candidate) (best time.Duration) {
	for i, c := range candidates {
		d := absDuration(tx.TransactionDate.Sub(c.DueDate))
		if i == 0 || d < best {
			best = d
		}
	}
	return best
}
