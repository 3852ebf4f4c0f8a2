package mediation

import (
	"fmt"
	"math/rand"
	"sort"
)

// SchulzeAggregator implements Aggregator via the Schulze method (spec.md §4.1):
// a pairwise-preference matrix, a Floyd-Warshall widest-path closure, and
// weak-domination ranking, followed by seeded tie-breaking.
type SchulzeAggregator struct{}

// NewSchulzeAggregator constructs a SchulzeAggregator. It carries no state;
// every call is parameterized entirely by its arguments and seed.
func NewSchulzeAggregator() *SchulzeAggregator {
	return &SchulzeAggregator{}
}

// Aggregate runs the Schulze method over ranks, a C-participant by K-candidate
// matrix where lower is better and MockRank marks an abstaining row.
func (SchulzeAggregator) Aggregate(ranks [][]int, opts SchulzeOptions) (*SocialRanking, error) {
	rng := rand.New(rand.NewSource(opts.Seed))

	if len(ranks) == 0 {
		return nil, fmt.Errorf("aggregate: empty rank matrix")
	}
	k := len(ranks[0])
	if k == 0 {
		return nil, fmt.Errorf("aggregate: zero candidates")
	}

	rows, err := filterAndValidate(ranks, k)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		tied := make([]int, k)
		for i := range tied {
			tied[i] = MockRank
		}
		return &SocialRanking{TiedRanks: tied, UntiedRanks: randomPermutation(rng, k)}, nil
	}

	d := pairwisePreference(rows, k)
	p := widestPaths(d, k)
	tied := weakDominationRanks(p, k)

	untied, err := breakTies(tied, rows, k, opts.Mode, rng)
	if err != nil {
		return nil, err
	}

	return &SocialRanking{TiedRanks: tied, UntiedRanks: untied}, nil
}

// filterAndValidate drops fully-MOCK rows and validates the rest: integer
// values, minimum 0, sorted diffs of 0 or 1 (ties allowed, no gaps).
func filterAndValidate(ranks [][]int, k int) ([][]int, error) {
	var rows [][]int
	for _, row := range ranks {
		if len(row) != k {
			return nil, fmt.Errorf("aggregate: row length %d != %d candidates", len(row), k)
		}
		if isFullyMock(row) {
			continue
		}
		if hasPartialMock(row) {
			return nil, fmt.Errorf("aggregate: partial-MOCK row is invalid")
		}
		if err := validateRankRow(row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isFullyMock(row []int) bool {
	for _, v := range row {
		if v != MockRank {
			return false
		}
	}
	return true
}

func hasPartialMock(row []int) bool {
	mock, real := false, false
	for _, v := range row {
		if v == MockRank {
			mock = true
		} else {
			real = true
		}
	}
	return mock && real
}

// validateRankRow checks the row's minimum is 0 and its sorted values step
// by 0 or 1 between consecutive distinct entries.
func validateRankRow(row []int) error {
	sorted := append([]int(nil), row...)
	sort.Ints(sorted)
	if sorted[0] != 0 {
		return fmt.Errorf("aggregate: rank row minimum is %d, want 0", sorted[0])
	}
	for i := 1; i < len(sorted); i++ {
		diff := sorted[i] - sorted[i-1]
		if diff != 0 && diff != 1 {
			return fmt.Errorf("aggregate: rank row has a gap of %d", diff)
		}
	}
	return nil
}

// pairwisePreference builds D[x][y] = count of rows preferring x over y.
func pairwisePreference(rows [][]int, k int) [][]int {
	d := make([][]int, k)
	for i := range d {
		d[i] = make([]int, k)
	}
	for _, row := range rows {
		for x := 0; x < k; x++ {
			for y := 0; y < k; y++ {
				if x == y {
					continue
				}
				if row[x] < row[y] {
					d[x][y]++
				}
			}
		}
	}
	return d
}

// widestPaths computes the Schulze path-strength matrix P by Floyd-Warshall
// widest-path closure over the initial direct-preference strengths.
func widestPaths(d [][]int, k int) [][]int {
	p := make([][]int, k)
	for x := 0; x < k; x++ {
		p[x] = make([]int, k)
		for y := 0; y < k; y++ {
			if x != y && d[x][y] > d[y][x] {
				p[x][y] = d[x][y]
			}
		}
	}
	for i := 0; i < k; i++ {
		for y := 0; y < k; y++ {
			if y == i {
				continue
			}
			for z := 0; z < k; z++ {
				if z == y || z == i {
					continue
				}
				if m := min(p[y][i], p[i][z]); m > p[y][z] {
					p[y][z] = m
				}
			}
		}
	}
	return p
}

// weakDominationRanks counts, for each candidate, how many others it weakly
// dominates (P[x][y] >= P[y][x]), then converts descending counts to
// consecutive 0-based ranks (ties share a rank).
func weakDominationRanks(p [][]int, k int) []int {
	dominates := make([]int, k)
	for x := 0; x < k; x++ {
		for y := 0; y < k; y++ {
			if x == y {
				continue
			}
			if p[x][y] >= p[y][x] {
				dominates[x]++
			}
		}
	}
	return normalizeDescending(dominates)
}

// normalizeDescending converts a "bigger is better" score vector into
// consecutive 0-based ranks, 0 = best, ties sharing a rank.
func normalizeDescending(scores []int) []int {
	inverted := make([]int, len(scores))
	for i, s := range scores {
		inverted[i] = -s
	}
	return normalize(inverted)
}

// normalize maps any integer vector to consecutive 0-based ranks preserving
// order and ties, e.g. [0,2,5,5] -> [0,1,2,2].
func normalize(values []int) []int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	rankOf := make(map[int]int)
	rank := 0
	for i, v := range sorted {
		if i == 0 {
			rankOf[v] = 0
			continue
		}
		if v != sorted[i-1] {
			rank++
		}
		rankOf[v] = rank
	}

	out := make([]int, len(values))
	for i, v := range values {
		out[i] = rankOf[v]
	}
	return out
}

// breakTies produces untied_ranks per the configured mode.
func breakTies(tied []int, rows [][]int, k int, mode TieBreakMode, rng *rand.Rand) ([]int, error) {
	if mode == TiesAllowed {
		return append([]int(nil), tied...), nil
	}
	if !hasTies(tied, k) {
		return append([]int(nil), tied...), nil
	}

	if mode == TBRC {
		order := rng.Perm(len(rows))
		current := append([]int(nil), tied...)
		for _, idx := range order {
			current = refine(current, rows[idx], k)
			if !hasTies(current, k) {
				return current, nil
			}
		}
		// TBRC exhausted rows without untying: fall through to random refine.
		current = refine(current, randomPermutation(rng, k), k)
		return current, nil
	}

	// RANDOM
	current := refine(append([]int(nil), tied...), randomPermutation(rng, k), k)
	return current, nil
}

func hasTies(ranked []int, k int) bool {
	seen := make(map[int]bool, k)
	for _, r := range ranked {
		if seen[r] {
			return true
		}
		seen[r] = true
	}
	return false
}

// refine combines the current tied ranking with one ballot row: each
// candidate's new position is tied_rank*K + normalize(ballot_rank), then
// the combined vector is renormalized to consecutive integers.
func refine(tied []int, ballot []int, k int) []int {
	normalizedBallot := normalize(ballot)
	combined := make([]int, len(tied))
	for i := range combined {
		combined[i] = tied[i]*k + normalizedBallot[i]
	}
	return normalize(combined)
}

func randomPermutation(rng *rand.Rand, k int) []int {
	return rng.Perm(k)
}
