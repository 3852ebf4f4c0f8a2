package mediation

import (
	"context"
	"fmt"
	"strings"
)

// minStatementLength is the "empty" threshold for a malformed statement
// (spec.md §4.3): 5 characters or fewer triggers a retry.
const minStatementLength = 5

// TextModelStatementGenerator prompts a text model with shuffled opinions
// (and, from round 1 on, the previous winner and aligned critiques) and
// parses its <answer>...<sep>...</answer> response (spec.md §4.3).
type TextModelStatementGenerator struct {
	Sampler    TextSampler
	MaxRetries int
	MaxTokens  int
}

func NewTextModelStatementGenerator(sampler TextSampler, maxRetries, maxTokens int) *TextModelStatementGenerator {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if maxTokens <= 0 {
		maxTokens = 768
	}
	return &TextModelStatementGenerator{Sampler: sampler, MaxRetries: maxRetries, MaxTokens: maxTokens}
}

func (g *TextModelStatementGenerator) GenerateStatement(ctx context.Context, req StatementRequest) (*StatementResult, error) {
	prompt := buildStatementPrompt(req)
	seed := req.Seed

	var best StatementResult
	for attempt := 0; attempt < g.MaxRetries; attempt++ {
		s := seed
		raw, err := g.Sampler.SampleText(ctx, SampleRequest{
			Prompt:      prompt,
			MaxTokens:   g.MaxTokens,
			Terminators: []string{"</answer>"},
			Temperature: 0.9,
			Timeout:     30,
			Seed:        &s,
		})
		seed++
		if err != nil || raw == "" {
			continue
		}

		payload, ok := extractPayload(raw)
		if !ok {
			continue
		}
		statement := strings.TrimSpace(payload)
		best = StatementResult{Text: statement, Explanation: explanationBefore(raw)}
		if len(statement) > minStatementLength {
			return &best, nil
		}
	}

	// Exhausted retries: return the best-effort value, even if empty — the
	// Mediation Engine tolerates an empty statement (spec.md §4.4).
	return &best, nil
}

func buildStatementPrompt(req StatementRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", req.Question)
	for i, o := range req.Opinions {
		fmt.Fprintf(&b, "Opinion Person %d: %s\n", i+1, o)
	}
	if req.PreviousWinner != "" {
		fmt.Fprintf(&b, "\nPrevious round winning statement: %s\n\n", req.PreviousWinner)
		for i, c := range req.Critiques {
			fmt.Fprintf(&b, "Critique Person %d: %s\n", i+1, c)
		}
	}
	b.WriteString("\nWrite one statement that best represents a consensus across these opinions. ")
	b.WriteString("Respond with <answer> your reasoning <sep> STATEMENT </answer>.\n")
	return b.String()
}
