package mediation

import (
	"context"
	"fmt"
	"strings"
)

// ChainOfThoughtPredictor asks a text model for reasoning followed by arrow
// notation and parses the result (spec.md §4.2). It retries with an
// incremented seed on any parse failure, up to MaxRetries times.
type ChainOfThoughtPredictor struct {
	Sampler    TextSampler
	MaxRetries int
	MaxTokens  int
}

// NewChainOfThoughtPredictor builds a predictor backed by sampler, retrying
// malformed output up to maxRetries times.
func NewChainOfThoughtPredictor(sampler TextSampler, maxRetries, maxTokens int) *ChainOfThoughtPredictor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &ChainOfThoughtPredictor{Sampler: sampler, MaxRetries: maxRetries, MaxTokens: maxTokens}
}

func (p *ChainOfThoughtPredictor) PredictRanking(ctx context.Context, req RankingRequest) (*RankingPrediction, error) {
	k := len(req.Candidates)
	prompt := buildRankingPrompt(req)
	seed := req.Seed
	var lastReason string

	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		s := seed
		raw, err := p.Sampler.SampleText(ctx, SampleRequest{
			Prompt:      prompt,
			MaxTokens:   p.MaxTokens,
			Terminators: []string{"</answer>"},
			Temperature: 0.7,
			Timeout:     30,
			Seed:        &s,
		})
		if err != nil {
			lastReason = fmt.Sprintf("sample_text error: %v", err)
			seed++
			continue
		}
		if raw == "" {
			lastReason = "sample_text returned empty"
			seed++
			continue
		}

		payload, ok := extractPayload(raw)
		if !ok {
			lastReason = "missing <sep>...</answer> block"
			seed++
			continue
		}
		rank, err := parseArrowRanking(payload, k)
		if err != nil {
			lastReason = err.Error()
			seed++
			continue
		}

		return &RankingPrediction{Rank: rank, Explanation: explanationBefore(raw)}, nil
	}

	return &RankingPrediction{Rank: nil, FailReason: lastReason}, nil
}

func buildRankingPrompt(req RankingRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", req.Question)
	fmt.Fprintf(&b, "Your opinion: %s\n\n", req.Opinion)
	if req.PreviousWinner != "" {
		fmt.Fprintf(&b, "Previous round winner: %s\n\n", req.PreviousWinner)
	}
	if req.PreviousCritique != "" {
		fmt.Fprintf(&b, "Your critique of it: %s\n\n", req.PreviousCritique)
	}
	b.WriteString("Candidate statements:\n")
	labels := candidateLabels(len(req.Candidates))
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%s: %s\n", labels[i], c)
	}
	b.WriteString("\nRank the candidates best to worst. Respond with <answer> your reasoning <sep> RANKING </answer> ")
	b.WriteString("where RANKING is arrow notation over the candidate letters, e.g. C>A=D>B.\n")
	return b.String()
}

// explanationBefore returns the text preceding <sep>, trimmed, as the
// free-form explanation accompanying a prediction or statement.
func explanationBefore(raw string) string {
	m := answerPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// LengthBasedPredictor is the diagnostic predictor: longer statements rank
// better, rank[i] = maxLen - len(statement_i), then normalized (spec.md §4.2).
type LengthBasedPredictor struct{}

func NewLengthBasedPredictor() *LengthBasedPredictor { return &LengthBasedPredictor{} }

func (LengthBasedPredictor) PredictRanking(_ context.Context, req RankingRequest) (*RankingPrediction, error) {
	maxLen := 0
	for _, c := range req.Candidates {
		if len(c) > maxLen {
			maxLen = len(c)
		}
	}
	raw := make([]int, len(req.Candidates))
	for i, c := range req.Candidates {
		raw[i] = maxLen - len(c)
	}
	return &RankingPrediction{Rank: normalize(raw), Explanation: "ranked by statement length"}, nil
}

// MockPredictor always abstains, returning an all-MOCK vector.
type MockPredictor struct{}

func NewMockPredictor() *MockPredictor { return &MockPredictor{} }

func (MockPredictor) PredictRanking(_ context.Context, req RankingRequest) (*RankingPrediction, error) {
	rank := make([]int, len(req.Candidates))
	for i := range rank {
		rank[i] = MockRank
	}
	return &RankingPrediction{Rank: rank, Explanation: "mock predictor abstains"}, nil
}
