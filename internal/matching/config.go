package matching

import "github.com/shopspring/decimal"

// Evidence weights on the 0-100 confidence scale. Signals accumulate
// independently and the total is capped at MaxConfidence.
const (
	WeightExactAmount  = 45.0
	WeightApproxAmount = 30.0
	WeightTaxID        = 45.0
	WeightAliasTaxID   = 40.0
	WeightFullName     = 30.0
	WeightPartialName  = 20.0 // scaled by token overlap
	WeightSameWeek     = 10.0
	WeightSameMonth    = 5.0

	MaxConfidence = 100.0
)

// Date proximity tiers, in days.
const (
	SameWeekDays  = 7
	SameMonthDays = 31
)

// Config bounds the matcher. Zero values are replaced by defaults in
// Normalize, so an empty Config is usable.
type Config struct {
	// AmountTolerance is the absolute difference under which two
	// amounts are considered equal. Default one cent.
	AmountTolerance decimal.Decimal

	// ApproxTolerance is the relative difference under which an amount
	// still earns the approximate-amount weight. Default 5%.
	ApproxTolerance decimal.Decimal

	// NameSimilarityFloor is the minimum fuzzy-name ratio accepted as
	// a signal at all. Default 0.65.
	NameSimilarityFloor float64

	// MaxCombinationSize bounds the number of candidates in one
	// combination. Default 5.
	MaxCombinationSize int

	// MaxCombinations caps accepted solutions per search. Default 5.
	MaxCombinations int

	// MaxSearchNodes caps the nodes visited by one combination search.
	// The size and solution caps alone do not bound the walk when a
	// large pool admits no solution, so the search bails out with
	// whatever it found once the budget is spent. Default 50000.
	MaxSearchNodes int

	// CombinationBase is the confidence of a two-candidate combination
	// before the per-candidate penalty. Default 90.
	CombinationBase float64

	// CombinationPenalty is subtracted per candidate beyond the first.
	// Default 10.
	CombinationPenalty float64

	// CombinationFloor is the minimum combination confidence. Default 50.
	CombinationFloor float64
}

// Normalize fills zero-valued fields with defaults and returns the
// receiver for chaining.
func (c Config) Normalize() Config {
	if c.AmountTolerance.IsZero() {
		c.AmountTolerance = decimal.New(1, -2) // 0.01
	}
	if c.ApproxTolerance.IsZero() {
		c.ApproxTolerance = decimal.New(5, -2) // 0.05
	}
	if c.NameSimilarityFloor == 0 {
		c.NameSimilarityFloor = 0.65
	}
	if c.MaxCombinationSize == 0 {
		c.MaxCombinationSize = 5
	}
	if c.MaxCombinations == 0 {
		c.MaxCombinations = 5
	}
	if c.MaxSearchNodes == 0 {
		c.MaxSearchNodes = 50000
	}
	if c.CombinationBase == 0 {
		c.CombinationBase = 90
	}
	if c.CombinationPenalty == 0 {
		c.CombinationPenalty = 10
	}
	if c.CombinationFloor == 0 {
		c.CombinationFloor = 50
	}
	return c
}
