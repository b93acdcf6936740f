package matching

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/models"
)

func pool(amounts ...string) []*models.Candidate {
	cands := make([]*models.Candidate, len(amounts))
	for i, a := range amounts {
		cands[i] = &models.Candidate{
			ID:     int64(i + 1),
			Amount: decimal.RequireFromString(a),
			Status: models.CandidatePending,
		}
	}
	return cands
}

func TestFindCombinationsPair(t *testing.T) {
	target := decimal.RequireFromString("1500.00")
	combos := FindCombinations(target, pool("750.00", "750.00", "100.00"), Config{})

	require.NotEmpty(t, combos)
	best := combos[0]
	assert.Len(t, best.Candidates, 2)
	assert.True(t, best.Total.Equal(target))
	// two candidates, default penalty 10 off a 90 base
	assert.Equal(t, 80.0, best.Confidence)
}

func TestFindCombinationsWithinToleranceOnly(t *testing.T) {
	target := decimal.RequireFromString("100.00")
	combos := FindCombinations(target, pool("60.00", "39.995", "30.00"), Config{})

	for _, combo := range combos {
		assert.True(t, combo.Balanced(target, Config{}),
			"combination sum %s deviates beyond tolerance", combo.Total)
	}
}

func TestFindCombinationsNoSolution(t *testing.T) {
	combos := FindCombinations(decimal.RequireFromString("77.77"), pool("10.00", "20.00", "30.00"), Config{})
	assert.Empty(t, combos)
}

func TestFindCombinationsSizeBound(t *testing.T) {
	// Six 10.00 candidates sum to the target, but the subset size is
	// capped at five, so no combination may use all six.
	combos := FindCombinations(decimal.RequireFromString("60.00"),
		pool("10.00", "10.00", "10.00", "10.00", "10.00", "10.00"), Config{})
	for _, combo := range combos {
		assert.LessOrEqual(t, len(combo.Candidates), 5)
	}
}

func TestFindCombinationsSolutionCap(t *testing.T) {
	// Many equivalent pairs; the search must stop at the cap.
	amounts := make([]string, 0, 40)
	for i := 0; i < 20; i++ {
		amounts = append(amounts, "25.00", "75.00")
	}
	combos := FindCombinations(decimal.RequireFromString("100.00"), pool(amounts...), Config{})
	assert.LessOrEqual(t, len(combos), 5)
	assert.NotEmpty(t, combos)
}

func TestFindCombinationsLargePoolTerminates(t *testing.T) {
	amounts := make([]string, 500)
	for i := range amounts {
		amounts[i] = fmt.Sprintf("%d.00", (i%97)+3)
	}
	combos := FindCombinations(decimal.RequireFromString("123.00"), pool(amounts...), Config{})
	assert.LessOrEqual(t, len(combos), 5)
}

func TestFindCombinationsLargePoolNoSolutionTerminates(t *testing.T) {
	// 500 identical amounts that cannot reach the target exactly: the
	// overshoot prune never fires here, so only the node budget keeps
	// the walk from enumerating every subset of size up to five.
	amounts := make([]string, 500)
	for i := range amounts {
		amounts[i] = "10.00"
	}
	combos := FindCombinations(decimal.RequireFromString("123.00"), pool(amounts...), Config{})
	assert.Empty(t, combos)
}

func TestFindCombinationsNodeBudgetReturnsPartialResults(t *testing.T) {
	// A budget too small to finish the walk still returns any solution
	// accepted before it ran out.
	cfg := Config{MaxSearchNodes: 10}
	combos := FindCombinations(decimal.RequireFromString("1500.00"), pool("750.00", "750.00"), cfg)
	require.NotEmpty(t, combos)
	assert.Len(t, combos[0].Candidates, 2)
}

func TestFindCombinationsSkipsSettledCandidates(t *testing.T) {
	cands := pool("750.00", "750.00")
	cands[1].Status = models.CandidatePaid

	combos := FindCombinations(decimal.RequireFromString("1500.00"), cands, Config{})
	assert.Empty(t, combos)
}

func TestFindCombinationsConfidenceDecreasesWithSize(t *testing.T) {
	cfg := Config{}.Normalize()
	assert.Equal(t, 80.0, combinationConfidence(2, cfg))
	assert.Equal(t, 70.0, combinationConfidence(3, cfg))
	assert.Equal(t, 50.0, combinationConfidence(6, cfg)) // floored
}

func TestFindCombinationsOrderedBestFirst(t *testing.T) {
	// 100 = 60+40 (pair) and 100 = 50+30+20 (triple); pair first.
	combos := FindCombinations(decimal.RequireFromString("100.00"),
		pool("60.00", "40.00", "50.00", "30.00", "20.00"), Config{})
	require.GreaterOrEqual(t, len(combos), 2)
	for i := 1; i < len(combos); i++ {
		assert.GreaterOrEqual(t, combos[i-1].Confidence, combos[i].Confidence)
	}
	assert.Len(t, combos[0].Candidates, 2)
}
