package mediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchulzeAggregate_Majority(t *testing.T) {
	// Candidates A=0, B=1, C=2. A strict majority (2 of 3) ranks A first.
	ranks := [][]int{
		{0, 1, 2},
		{0, 2, 1},
		{1, 0, 2},
	}
	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TiedRanks[0])
}

func TestSchulzeAggregate_Condorcet(t *testing.T) {
	// A beats B and C pairwise in every row.
	ranks := [][]int{
		{0, 1, 2},
		{0, 2, 1},
		{0, 1, 2},
	}
	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TiedRanks[0])
}

func TestSchulzeAggregate_Anonymity(t *testing.T) {
	ranks := [][]int{
		{0, 1, 2},
		{2, 0, 1},
		{1, 2, 0},
	}
	shuffled := [][]int{ranks[2], ranks[0], ranks[1]}

	agg := NewSchulzeAggregator()
	a, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 5})
	require.NoError(t, err)
	b, err := agg.Aggregate(shuffled, SchulzeOptions{Mode: TiesAllowed, Seed: 5})
	require.NoError(t, err)

	assert.Equal(t, a.TiedRanks, b.TiedRanks)
}

func TestSchulzeAggregate_Reproducibility(t *testing.T) {
	ranks := [][]int{
		{0, 0, 1},
		{1, 0, 0},
		{0, 1, 1},
	}
	agg := NewSchulzeAggregator()
	a, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TBRC, Seed: 42})
	require.NoError(t, err)
	b, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TBRC, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, a.UntiedRanks, b.UntiedRanks)
}

func TestSchulzeAggregate_UntieUnderTBRC(t *testing.T) {
	// Two candidates tie under the dominance count, but the ballots differ
	// enough for TBRC to untie them.
	ranks := [][]int{
		{0, 0, 1},
		{0, 1, 0},
	}
	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TBRC, Seed: 7})
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, r := range result.UntiedRanks {
		assert.False(t, seen[r], "untied ranks must be a strict permutation")
		seen[r] = true
	}
}

func TestSchulzeAggregate_FullyMockInput(t *testing.T) {
	ranks := [][]int{
		{MockRank, MockRank, MockRank},
		{MockRank, MockRank, MockRank},
	}
	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TBRC, Seed: 9})
	require.NoError(t, err)

	for _, r := range result.TiedRanks {
		assert.Equal(t, MockRank, r)
	}
	seen := make(map[int]bool)
	for _, r := range result.UntiedRanks {
		assert.False(t, seen[r])
		seen[r] = true
	}
}

func TestSchulzeAggregate_PartialMockRowInvalid(t *testing.T) {
	ranks := [][]int{
		{0, MockRank, 1},
		{0, 1, 2},
	}
	agg := NewSchulzeAggregator()
	_, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 1})
	assert.Error(t, err)
}

func TestSchulzeAggregate_TiesAllowedReturnsTiedRanks(t *testing.T) {
	ranks := [][]int{
		{0, 0, 1},
		{0, 0, 1},
	}
	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, result.TiedRanks, result.UntiedRanks)
}

// TestSchulzeAggregate_CanonicalFortyFiveBallotExample reproduces the classic
// five-candidate, 45-ballot Schulze method example (candidates A..E, eight
// distinct ballot groups), which has a known strict social ordering
// E > A > C > B > D with no ties to break.
func TestSchulzeAggregate_CanonicalFortyFiveBallotExample(t *testing.T) {
	const (
		A = iota
		B
		C
		D
		E
	)

	type ballotGroup struct {
		count int
		order [5]int // most-preferred first
	}
	groups := []ballotGroup{
		{5, [5]int{A, C, B, E, D}},
		{5, [5]int{A, D, E, C, B}},
		{8, [5]int{B, E, D, A, C}},
		{3, [5]int{C, A, B, E, D}},
		{7, [5]int{C, A, E, B, D}},
		{2, [5]int{C, B, A, D, E}},
		{7, [5]int{D, C, E, B, A}},
		{8, [5]int{E, B, A, D, C}},
	}

	var ranks [][]int
	for _, g := range groups {
		row := make([]int, 5)
		for pos, candidate := range g.order {
			row[candidate] = pos
		}
		for i := 0; i < g.count; i++ {
			ranks = append(ranks, append([]int(nil), row...))
		}
	}
	require.Len(t, ranks, 45)

	agg := NewSchulzeAggregator()
	result, err := agg.Aggregate(ranks, SchulzeOptions{Mode: TiesAllowed, Seed: 11})
	require.NoError(t, err)

	// E > A > C > B > D, rank 0 is best.
	want := make([]int, 5)
	want[E] = 0
	want[A] = 1
	want[C] = 2
	want[B] = 3
	want[D] = 4
	assert.Equal(t, want, result.TiedRanks)
	assert.Equal(t, want, result.UntiedRanks)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 2}, normalize([]int{0, 2, 5, 5}))
}

func TestValidateRankRow(t *testing.T) {
	assert.NoError(t, validateRankRow([]int{0, 1, 1, 2}))
	assert.Error(t, validateRankRow([]int{1, 2, 3}))
	assert.Error(t, validateRankRow([]int{0, 2}))
}
