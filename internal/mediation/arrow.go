package mediation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// answerPattern extracts the reasoning/payload split from a model response
// shaped <answer> reasoning <sep> payload </answer>, with a lenient fallback
// for a missing opening tag.
var answerPattern = regexp.MustCompile(`(?s)(?:<answer>)?(.*?)<sep>(.*?)</answer>`)

// arrowPattern matches whitespace-stripped arrow notation: a letter,
// optionally followed by repeated (>|=)letter groups.
var arrowPattern = regexp.MustCompile(`^[A-Z]((>|=)[A-Z])*$`)

// extractPayload pulls the RANKING/STATEMENT segment out of a raw model
// response. Returns false if no <sep>...</answer> block is present at all.
func extractPayload(raw string) (payload string, ok bool) {
	m := answerPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[2]), true
}

// parseArrowRanking validates and converts arrow notation (e.g. "C>A=D>B")
// into a 0-indexed rank vector over labels A..<label for index numCandidates-1>,
// per spec.md §4.2: no candidate twice, no ">>", no leading/trailing "=", no "=>".
func parseArrowRanking(arrow string, numCandidates int) ([]int, error) {
	stripped := strings.Join(strings.Fields(arrow), "")
	if stripped == "" {
		return nil, fmt.Errorf("empty ranking")
	}
	if !arrowPattern.MatchString(stripped) {
		return nil, fmt.Errorf("malformed arrow notation: %q", stripped)
	}

	labels := make([]byte, 0, numCandidates)
	ops := make([]byte, 0, numCandidates-1)
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		if c == '>' || c == '=' {
			ops = append(ops, c)
			continue
		}
		labels = append(labels, c)
	}

	if len(labels) != numCandidates {
		return nil, fmt.Errorf("ranking names %d candidates, want %d", len(labels), numCandidates)
	}

	seen := make(map[byte]bool, numCandidates)
	for _, l := range labels {
		idx := int(l - 'A')
		if idx < 0 || idx >= numCandidates {
			return nil, fmt.Errorf("label %q out of range for %d candidates", string(l), numCandidates)
		}
		if seen[l] {
			return nil, fmt.Errorf("candidate %q repeated", string(l))
		}
		seen[l] = true
	}

	rank := make([]int, numCandidates)
	current := 0
	rank[labels[0]-'A'] = current
	for i, op := range ops {
		if op == '>' {
			current++
		}
		rank[labels[i+1]-'A'] = current
	}
	return rank, nil
}

// renderArrowRanking converts a 0-indexed rank vector back into arrow
// notation over labels A..(A+numCandidates-1), the inverse of
// parseArrowRanking. A fully-MOCK vector renders as "MOCK". Used to log a
// human-readable echo of each participant's ranking alongside the raw
// vector persisted with the round.
func renderArrowRanking(rank []int, numCandidates int) string {
	if len(rank) != numCandidates {
		return ""
	}
	if isFullyMock(rank) {
		return "MOCK"
	}

	order := make([]int, numCandidates)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rank[order[a]] < rank[order[b]]
	})

	var b strings.Builder
	for i, idx := range order {
		if i > 0 {
			if rank[idx] == rank[order[i-1]] {
				b.WriteByte('=')
			} else {
				b.WriteByte('>')
			}
		}
		b.WriteByte('A' + byte(idx))
	}
	return b.String()
}

// candidateLabels returns the first n capital letters, the labeling scheme
// §4.2 prompts use for shuffled candidates (A, B, C, ...).
func candidateLabels(n int) []string {
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = string(rune('A' + i))
	}
	return labels
}
