// Package mediation implements one deliberation round: the Statement
// Generator, Ranking Predictor, and Schulze Social-Choice Aggregator,
// composed by Engine.
package mediation

import "context"

// MockRank marks an abstaining row handed to the aggregator, or an
// abstaining rank returned by a mock Ranking Predictor.
const MockRank = -1

// TieBreakMode selects how Aggregate resolves ties in tied_ranks.
type TieBreakMode string

const (
	TiesAllowed TieBreakMode = "TIES_ALLOWED"
	Random      TieBreakMode = "RANDOM"
	TBRC        TieBreakMode = "TBRC"
)

// SampleRequest is one call to the external text-generation model.
type SampleRequest struct {
	Prompt      string
	MaxTokens   int
	Terminators []string
	Temperature float64
	Timeout     int // seconds
	Seed        *int64
}

// TextSampler is the external text-model contract (spec.md §6): empty string
// on failure or safety block; an error only when the request itself cannot
// be built.
type TextSampler interface {
	SampleText(ctx context.Context, req SampleRequest) (string, error)
}

// RankingRequest is the input to one Ranking Predictor call.
type RankingRequest struct {
	Question          string
	Opinion            string
	Candidates         []string // already shuffled by the caller
	PreviousWinner     string   // empty if round 0
	PreviousCritique   string   // this participant's critique, empty if round 0
	Seed               int64
}

// RankingPrediction is the Ranking Predictor's output. Rank is nil on parse
// failure after exhausting retries — fatal to the round per spec.md §4.4.
type RankingPrediction struct {
	Rank        []int // len == len(Candidates), 0 = best, MockRank = abstain
	Explanation string
	FailReason  string
}

// RankingPredictor produces one participant's ordering over a round's
// candidates (spec.md §4.2).
type RankingPredictor interface {
	PredictRanking(ctx context.Context, req RankingRequest) (*RankingPrediction, error)
}

// StatementRequest is the input to one Statement Generator call.
type StatementRequest struct {
	Question         string
	Opinions         []string // already shuffled by the caller
	PreviousWinner   string   // empty if round 0
	Critiques        []string // aligned to Opinions by the same shuffle, empty if round 0
	Seed             int64
}

// StatementResult is the Statement Generator's output.
type StatementResult struct {
	Text        string
	Explanation string
}

// StatementGenerator produces one candidate consensus statement (spec.md §4.3).
type StatementGenerator interface {
	GenerateStatement(ctx context.Context, req StatementRequest) (*StatementResult, error)
}

// SchulzeOptions configures one Aggregate call.
type SchulzeOptions struct {
	Mode TieBreakMode
	Seed int64
}

// SocialRanking is the Schulze method's output (spec.md §4.1): both arrays
// give a rank per candidate, 0 = best.
type SocialRanking struct {
	TiedRanks   []int
	UntiedRanks []int
}

// Aggregator turns a participant-by-candidate rank matrix into a total order.
type Aggregator interface {
	Aggregate(ranks [][]int, opts SchulzeOptions) (*SocialRanking, error)
}
