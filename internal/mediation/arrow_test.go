package mediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArrowRanking(t *testing.T) {
	cases := []struct {
		name    string
		arrow   string
		k       int
		want    []int
		wantErr bool
	}{
		{name: "strict order", arrow: "C>A>D>B", k: 4, want: []int{1, 3, 0, 2}},
		{name: "with ties", arrow: "C>A=D>B", k: 4, want: []int{1, 2, 0, 1}},
		{name: "whitespace tolerant", arrow: " C > A = D > B ", k: 4, want: []int{1, 2, 0, 1}},
		{name: "double gt rejected", arrow: "A>>B", k: 2, wantErr: true},
		{name: "leading eq rejected", arrow: "=A>B", k: 2, wantErr: true},
		{name: "trailing eq rejected", arrow: "A>B=", k: 2, wantErr: true},
		{name: "eq gt combo rejected", arrow: "A=>B", k: 2, wantErr: true},
		{name: "repeated candidate rejected", arrow: "A>B>A", k: 2, wantErr: true},
		{name: "wrong length rejected", arrow: "A>B", k: 3, wantErr: true},
		{name: "empty rejected", arrow: "", k: 2, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArrowRanking(tc.arrow, tc.k)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractPayload(t *testing.T) {
	raw := "<answer>I think C is best<sep>C>A=D>B</answer>"
	payload, ok := extractPayload(raw)
	require.True(t, ok)
	assert.Equal(t, "C>A=D>B", payload)
}

func TestExtractPayload_MissingOpeningTag(t *testing.T) {
	raw := "I think C is best<sep>C>A=D>B</answer>"
	payload, ok := extractPayload(raw)
	require.True(t, ok)
	assert.Equal(t, "C>A=D>B", payload)
}

func TestExtractPayload_MissingSep(t *testing.T) {
	_, ok := extractPayload("<answer>no separator here</answer>")
	assert.False(t, ok)
}

func TestCandidateLabels(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, candidateLabels(3))
}

func TestRenderArrowRanking(t *testing.T) {
	cases := []struct {
		name string
		rank []int
		k    int
		want string
	}{
		{name: "strict order", rank: []int{1, 3, 0, 2}, k: 4, want: "C>A>D>B"},
		{name: "with ties", rank: []int{1, 2, 0, 1}, k: 4, want: "C>A=D>B"},
		{name: "fully mock", rank: []int{MockRank, MockRank, MockRank}, k: 3, want: "MOCK"},
		{name: "length mismatch", rank: []int{0, 1}, k: 3, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderArrowRanking(tc.rank, tc.k))
		})
	}
}

// TestArrowRanking_ParseRenderRoundTrip checks that parsing arrow notation
// and rendering it back reproduces the original string, for strict orders
// and for ties whose labels are written in alphabetical order (render lists
// tied candidates in label order, so "D=A" would come back as "A=D").
func TestArrowRanking_ParseRenderRoundTrip(t *testing.T) {
	cases := []string{"C>A>D>B", "C>A=D>B", "A=B=C=D", "A>B=C>D"}
	for _, arrow := range cases {
		t.Run(arrow, func(t *testing.T) {
			rank, err := parseArrowRanking(arrow, 4)
			require.NoError(t, err)
			assert.Equal(t, arrow, renderArrowRanking(rank, 4))
		})
	}
}
