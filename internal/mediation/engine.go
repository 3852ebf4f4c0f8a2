package mediation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
)

// RoundInput is everything Engine needs to run one deliberation round
// (spec.md §4.4). Opinions and Critiques (if present) are aligned by
// participant index; Critiques is empty for round 0.
type RoundInput struct {
	Question       string
	Opinions       []string
	Critiques      []string
	PreviousWinner string
	NumCandidates  int
	Seed           int64
}

// StatementOutcome is one round candidate after ranking, with its final
// 1-indexed social rank (spec.md §4.4 step 5).
type StatementOutcome struct {
	Text        string
	Explanation string
	SocialRank  int
}

// RoundResult is the full output of one Engine round, kept for persistence
// and for the introspection state spec.md §4.4 asks the caller to retain.
type RoundResult struct {
	Statements  []StatementOutcome
	TiedRanks   []int
	UntiedRanks []int
	Rankings    [][]int
	// RankingsArrow is Rankings re-rendered into arrow notation, one entry
	// per participant, for human-readable audit logging alongside the raw
	// vectors.
	RankingsArrow []string
	Winner        string
}

// Engine composes a StatementGenerator, RankingPredictor, and Aggregator to
// run one deliberation round end to end (spec.md §4.4).
type Engine struct {
	Generator  StatementGenerator
	Predictor  RankingPredictor
	Aggregator Aggregator
	TieBreak   TieBreakMode
}

// NewEngine builds an Engine from its three component interfaces.
func NewEngine(gen StatementGenerator, pred RankingPredictor, agg Aggregator, tieBreak TieBreakMode) *Engine {
	return &Engine{Generator: gen, Predictor: pred, Aggregator: agg, TieBreak: tieBreak}
}

// RunRound executes one full round per spec.md §4.4: shuffled statement
// generation fan-out, shuffled ranking-prediction fan-out, Schulze
// aggregation, then sorting candidates by untied rank.
//
// The engine holds a single RNG for the round and draws every permutation
// and sub-call seed from it sequentially on the calling goroutine, before
// each fan-out starts, so the round is reproducible regardless of goroutine
// scheduling order.
func (e *Engine) RunRound(ctx context.Context, in RoundInput) (*RoundResult, error) {
	if in.NumCandidates < 1 {
		return nil, fmt.Errorf("run round: num_candidates must be >= 1")
	}
	c := len(in.Opinions)
	if c < 1 {
		return nil, fmt.Errorf("run round: need at least one opinion")
	}
	withCritiques := len(in.Critiques) > 0

	rng := rand.New(rand.NewSource(in.Seed))

	type statementCall struct {
		perm []int
		seed int64
	}
	calls := make([]statementCall, in.NumCandidates)
	for i := 0; i < in.NumCandidates; i++ {
		calls[i] = statementCall{perm: rng.Perm(c), seed: int64(rng.Int31())}
	}

	statements := make([]StatementResult, in.NumCandidates)
	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		i := i
		call := calls[i]
		g.Go(func() error {
			opinions := applyPermutation(in.Opinions, call.perm)
			var critiques []string
			if withCritiques {
				critiques = applyPermutation(in.Critiques, call.perm)
			}
			res, err := e.Generator.GenerateStatement(gctx, StatementRequest{
				Question:       in.Question,
				Opinions:       opinions,
				PreviousWinner: in.PreviousWinner,
				Critiques:      critiques,
				Seed:           call.seed,
			})
			if err != nil {
				return fmt.Errorf("generate statement %d: %w", i, err)
			}
			statements[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidateTexts := make([]string, in.NumCandidates)
	for i, s := range statements {
		candidateTexts[i] = s.Text
	}

	type rankingCall struct {
		seed  int64
		perm2 []int
	}
	rankingCalls := make([]rankingCall, c)
	for p := 0; p < c; p++ {
		rankingCalls[p] = rankingCall{perm2: rng.Perm(in.NumCandidates), seed: int64(rng.Int31())}
	}

	ranks := make([][]int, c)
	g2, gctx2 := errgroup.WithContext(ctx)
	for p := range rankingCalls {
		p := p
		call := rankingCalls[p]
		g2.Go(func() error {
			shuffled := applyPermutation(candidateTexts, call.perm2)
			var critique string
			if withCritiques {
				critique = in.Critiques[p]
			}
			prediction, err := e.Predictor.PredictRanking(gctx2, RankingRequest{
				Question:         in.Question,
				Opinion:          in.Opinions[p],
				Candidates:       shuffled,
				PreviousWinner:   in.PreviousWinner,
				PreviousCritique: critique,
				Seed:             call.seed,
			})
			if err != nil {
				return fmt.Errorf("predict ranking for participant %d: %w", p, err)
			}
			if prediction.Rank == nil {
				return fmt.Errorf("predict ranking for participant %d: %s", p, prediction.FailReason)
			}
			ranks[p] = unapplyPermutation(prediction.Rank, call.perm2)
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return nil, err
	}

	social, err := e.Aggregator.Aggregate(ranks, SchulzeOptions{Mode: e.TieBreak, Seed: int64(rng.Int31())})
	if err != nil {
		return nil, fmt.Errorf("aggregate round: %w", err)
	}

	order := make([]int, in.NumCandidates)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return social.UntiedRanks[order[a]] < social.UntiedRanks[order[b]]
	})

	outcomes := make([]StatementOutcome, in.NumCandidates)
	for pos, idx := range order {
		outcomes[pos] = StatementOutcome{
			Text:        statements[idx].Text,
			Explanation: statements[idx].Explanation,
			SocialRank:  pos + 1,
		}
	}

	arrows := make([]string, len(ranks))
	for i, r := range ranks {
		arrows[i] = renderArrowRanking(r, in.NumCandidates)
	}

	return &RoundResult{
		Statements:    outcomes,
		TiedRanks:     social.TiedRanks,
		UntiedRanks:   social.UntiedRanks,
		Rankings:      ranks,
		RankingsArrow: arrows,
		Winner:        outcomes[0].Text,
	}, nil
}

// applyPermutation returns a new slice with items[perm[i]] at position i.
func applyPermutation(items []string, perm []int) []string {
	out := make([]string, len(perm))
	for i, src := range perm {
		out[i] = items[src]
	}
	return out
}

// unapplyPermutation reverses applyPermutation on a rank vector: shuffled[i]
// corresponds to canonical index perm[i], so canonical[perm[i]] = shuffled[i].
func unapplyPermutation(shuffled []int, perm []int) []int {
	out := make([]int, len(shuffled))
	for i, src := range perm {
		out[src] = shuffled[i]
	}
	return out
}
