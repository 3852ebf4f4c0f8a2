package deliberation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliberation/dsm-engine/internal/models"
)

func TestAlignOpinionsAndCritiques(t *testing.T) {
	opinions := []*models.Opinion{
		{ParticipantID: "p1", Text: "opinion one"},
		{ParticipantID: "p2", Text: "opinion two"},
	}
	critiques := []*models.Critique{
		{ParticipantID: "p2", Text: "critique two"},
		{ParticipantID: "p1", Text: "critique one"},
	}

	opinionText, critiqueText, err := alignOpinionsAndCritiques(opinions, critiques)
	require.NoError(t, err)
	assert.Equal(t, []string{"opinion one", "opinion two"}, opinionText)
	assert.Equal(t, []string{"critique one", "critique two"}, critiqueText)
}

func TestAlignOpinionsAndCritiques_MissingCritiqueFails(t *testing.T) {
	opinions := []*models.Opinion{{ParticipantID: "p1", Text: "opinion one"}}
	critiques := []*models.Critique{}

	_, _, err := alignOpinionsAndCritiques(opinions, critiques)
	assert.Error(t, err)
}

func TestRoundSeed_DeterministicPerDeliberationAndRound(t *testing.T) {
	a := roundSeed("delib-1", 0)
	b := roundSeed("delib-1", 0)
	c := roundSeed("delib-1", 1)
	d := roundSeed("delib-2", 0)

	assert.Equal(t, a, b, "same id and round must reproduce the same seed")
	assert.NotEqual(t, a, c, "different round must change the seed")
	assert.NotEqual(t, a, d, "different deliberation must change the seed")
}
