package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"concilia/internal/models"
)

// Combination is a subset of candidates whose amounts sum to a target
// within tolerance.
type Combination struct {
	Candidates []*models.Candidate
	Total      decimal.Decimal
	Confidence float64
}

// FindCombinations searches for subsets of open candidates summing to
// target within the configured tolerance. The search is a bounded
// depth-first walk over candidates sorted by descending amount:
// branches whose partial sum already exceeds target+tolerance are
// pruned, no candidate is reused within a branch, and both the subset
// size and the number of accepted solutions are capped. A node budget
// (MaxSearchNodes) bounds the walk even when a large pool admits no
// solution; once spent, the search returns whatever it found.
func FindCombinations(target decimal.Decimal, candidates []*models.Candidate, cfg Config) []Combination {
	cfg = cfg.Normalize()
	target = target.Abs()
	limit := target.Add(cfg.AmountTolerance)

	sorted := make([]*models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		// A candidate larger than the target can never be part of a sum.
		if c.Status == models.CandidatePending || c.Status == models.CandidateOverdue {
			if c.Amount.Abs().LessThanOrEqual(limit) {
				sorted = append(sorted, c)
			}
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Amount.Abs().GreaterThan(sorted[j].Amount.Abs())
	})

	var results []Combination
	var current []*models.Candidate
	nodes := 0

	var search func(index int, sum decimal.Decimal)
	search = func(index int, sum decimal.Decimal) {
		nodes++
		if nodes > cfg.MaxSearchNodes || len(results) >= cfg.MaxCombinations {
			return
		}
		if len(current) > 0 && target.Sub(sum).Abs().LessThanOrEqual(cfg.AmountTolerance) {
			combo := Combination{
				Candidates: append([]*models.Candidate(nil), current...),
				Total:      sum,
				Confidence: combinationConfidence(len(current), cfg),
			}
			results = append(results, combo)
			return
		}
		if len(current) >= cfg.MaxCombinationSize {
			return
		}
		for i := index; i < len(sorted); i++ {
			next := sum.Add(sorted[i].Amount.Abs())
			if next.GreaterThan(limit) {
				continue // prune; later candidates are smaller, but equal amounts may still fit
			}
			current = append(current, sorted[i])
			search(i+1, next)
			current = current[:len(current)-1]
			if nodes > cfg.MaxSearchNodes || len(results) >= cfg.MaxCombinations {
				return
			}
		}
	}
	search(0, decimal.Zero)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// Balanced re-checks the invariant the search already guarantees: the
// summed amount deviates from target by at most the tolerance.
func (c Combination) Balanced(target decimal.Decimal, cfg Config) bool {
	cfg = cfg.Normalize()
	sum := decimal.Zero
	for _, cand := range c.Candidates {
		sum = sum.Add(cand.Amount.Abs())
	}
	return target.Abs().Sub(sum).Abs().LessThanOrEqual(cfg.AmountTolerance)
}

// combinationConfidence decreases with the number of candidates:
// single matches are always preferred over grouped ones.
func combinationConfidence(size int, cfg Config) float64 {
	conf := cfg.CombinationBase - float64(size-1)*cfg.CombinationPenalty
	if conf < cfg.CombinationFloor {
		conf = cfg.CombinationFloor
	}
	return conf
}
