package matching

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"concilia/internal/extract"
	"concilia/internal/models"
	"concilia/internal/normalize"
)

// Match is one scored pairing of a transaction with one or more
// candidates.
type Match struct {
	CandidateIDs []int64
	Candidates   []*models.Candidate
	Method       string
	Confidence   float64
	Criteria     []string
	closestDue   time.Duration
}

// Candidate bundles an open obligation with its resolved counterparty
// (nil when the registry has no record for it).
type Candidate struct {
	Candidate    *models.Candidate
	Counterparty *models.Counterparty
}

// ScoreCandidate computes the weighted confidence for a single
// transaction/candidate pair. Pure: no I/O, no shared state.
func ScoreCandidate(tx *models.Transaction, cand Candidate, hints extract.Hints, cfg Config) Match {
	cfg = cfg.Normalize()

	m := Match{
		CandidateIDs: []int64{cand.Candidate.ID},
		Candidates:   []*models.Candidate{cand.Candidate},
		Method:       models.MethodExact,
	}

	txAmount := tx.Amount.Abs()
	candAmount := cand.Candidate.Amount.Abs()
	normDesc := normalize.Normalize(tx.Description)

	// Amount evidence. Exact dominates; approximate earns a reduced
	// weight within the relative tolerance.
	diff := txAmount.Sub(candAmount).Abs()
	if diff.LessThan(cfg.AmountTolerance) {
		m.Confidence += WeightExactAmount
		m.Criteria = append(m.Criteria, "exact_amount")
	} else if candAmount.IsPositive() {
		rel := diff.Div(candAmount)
		if rel.LessThanOrEqual(cfg.ApproxTolerance) {
			m.Confidence += WeightApproxAmount
			m.Criteria = append(m.Criteria, "approximate_amount")
		}
	}

	if cand.Counterparty != nil {
		if taxScore, criterion, method := scoreTaxID(hints, cand.Counterparty); taxScore > 0 {
			m.Confidence += taxScore
			m.Criteria = append(m.Criteria, criterion)
			m.Method = method
		}

		if nameScore, criterion := scoreName(normDesc, hints, cand.Counterparty, cfg); nameScore > 0 {
			m.Confidence += nameScore
			m.Criteria = append(m.Criteria, criterion)
			if m.Method == models.MethodExact {
				m.Method = models.MethodFuzzyName
			}
		}
	}

	// Date proximity, tiered: same week beats same month.
	days := math.Abs(tx.TransactionDate.Sub(cand.Candidate.DueDate).Hours() / 24)
	switch {
	case days <= SameWeekDays:
		m.Confidence += WeightSameWeek
		m.Criteria = append(m.Criteria, "same_week")
	case days <= SameMonthDays:
		m.Confidence += WeightSameMonth
		m.Criteria = append(m.Criteria, "same_month")
	}

	if m.Confidence > MaxConfidence {
		m.Confidence = MaxConfidence
	}
	m.closestDue = absDuration(tx.TransactionDate.Sub(cand.Candidate.DueDate))
	return m
}

// scoreTaxID compares the extracted tax id with the counterparty's own
// registration and with its registered alternate payers. The alias
// weight sits just below the counterparty's own.
func scoreTaxID(hints extract.Hints, cp *models.Counterparty) (float64, string, string) {
	if !hints.HasTaxID() {
		return 0, "", ""
	}
	if normalize.DigitsOnly(cp.TaxID) == hints.TaxID {
		return WeightTaxID, "tax_id", models.MethodTaxID
	}
	for _, alias := range cp.Aliases {
		if alias.Active && normalize.DigitsOnly(alias.TaxID) == hints.TaxID {
			return WeightAliasTaxID, "alias_tax_id", models.MethodAlias
		}
	}
	return 0, "", ""
}

// scoreName looks for the counterparty's name in the description:
// full containment first, then token overlap, then edit-distance
// similarity against the extracted payer name. The strongest single
// signal wins; they are not additive.
func scoreName(normDesc string, hints extract.Hints, cp *models.Counterparty, cfg Config) (float64, string) {
	best := 0.0
	criterion := ""

	for _, name := range []string{cp.Name, cp.LegalName} {
		normName := normalize.Normalize(name)
		if normName == "" {
			continue
		}
		if strings.Contains(normDesc, normName) {
			return WeightFullName, "name_in_description"
		}
		if j := normalize.Jaccard(normDesc, normName); j > 0 && j*WeightPartialName > best {
			best = j * WeightPartialName
			criterion = "partial_name"
		}
		if hints.PayerName != "" {
			if r := similarityRatio(hints.PayerName, normName); r >= cfg.NameSimilarityFloor && r*WeightFullName > best {
				best = r * WeightFullName
				criterion = "payer_name_similarity"
			}
		}
	}
	return best, criterion
}

// similarityRatio converts levenshtein distance to a [0,1] ratio.
func similarityRatio(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// Rank orders matches by descending confidence, breaking ties by the
// closest due date and then by method specificity.
func Rank(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].closestDue != matches[j].closestDue {
			return matches[i].closestDue < matches[j].closestDue
		}
		return methodRank(matches[i].Method) < methodRank(matches[j].Method)
	})
}

// methodRank orders methods most specific first.
func methodRank(method string) int {
	switch method {
	case models.MethodManual:
		return 0
	case models.MethodTaxID:
		return 1
	case models.MethodAlias:
		return 2
	case models.MethodFuzzyName:
		return 3
	case models.MethodPattern:
		return 4
	case models.MethodExact:
		return 5
	case models.MethodCombination:
		return 6
	}
	return 7
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
