package deliberation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deliberation/dsm-engine/internal/apierror"
	"github.com/deliberation/dsm-engine/internal/models"
)

func TestValidateRankingPermutation_Valid(t *testing.T) {
	candidates := []*models.Statement{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}
	entries := []models.RankedStatement{
		{StatementID: "s2", Rank: 1},
		{StatementID: "s1", Rank: 2},
		{StatementID: "s3", Rank: 3},
	}
	assert.NoError(t, validateRankingPermutation(entries, candidates))
}

func TestValidateRankingPermutation_WrongLength(t *testing.T) {
	candidates := []*models.Statement{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}
	entries := []models.RankedStatement{{StatementID: "s1", Rank: 1}}

	err := validateRankingPermutation(entries, candidates)
	assertAPIErrorCode(t, err, apierror.InvalidRanking)
}

func TestValidateRankingPermutation_DuplicateRank(t *testing.T) {
	candidates := []*models.Statement{{ID: "s1"}, {ID: "s2"}}
	entries := []models.RankedStatement{
		{StatementID: "s1", Rank: 1},
		{StatementID: "s2", Rank: 1},
	}
	err := validateRankingPermutation(entries, candidates)
	assertAPIErrorCode(t, err, apierror.InvalidRanking)
}

func TestValidateRankingPermutation_UnknownStatement(t *testing.T) {
	candidates := []*models.Statement{{ID: "s1"}, {ID: "s2"}}
	entries := []models.RankedStatement{
		{StatementID: "s1", Rank: 1},
		{StatementID: "unknown", Rank: 2},
	}
	err := validateRankingPermutation(entries, candidates)
	assertAPIErrorCode(t, err, apierror.InvalidRanking)
}

func TestValidateRankingPermutation_DuplicateStatement(t *testing.T) {
	candidates := []*models.Statement{{ID: "s1"}, {ID: "s2"}}
	entries := []models.RankedStatement{
		{StatementID: "s1", Rank: 1},
		{StatementID: "s1", Rank: 2},
	}
	err := validateRankingPermutation(entries, candidates)
	assertAPIErrorCode(t, err, apierror.InvalidRanking)
}

func TestCanParticipate_AcceptsDuringOpinionUnderCap(t *testing.T) {
	max := 5
	svc := &Service{}
	d := &models.Deliberation{Stage: models.StageOpinion, MaxParticipants: &max, ParticipantCount: 4}
	assert.NoError(t, svc.CanParticipate(d))
}

func TestCanParticipate_RejectsAtCap(t *testing.T) {
	max := 5
	svc := &Service{}
	d := &models.Deliberation{Stage: models.StageOpinion, MaxParticipants: &max, ParticipantCount: 5}
	assertAPIErrorCode(t, svc.CanParticipate(d), apierror.StageMismatch)
}

func TestCanParticipate_RejectsOutsideOpinionStage(t *testing.T) {
	svc := &Service{}
	d := &models.Deliberation{Stage: models.StageRanking}
	assertAPIErrorCode(t, svc.CanParticipate(d), apierror.StageMismatch)
}

func TestCanParticipate_AcceptsUncappedDeliberation(t *testing.T) {
	svc := &Service{}
	d := &models.Deliberation{Stage: models.StageOpinion, ParticipantCount: 9000}
	assert.NoError(t, svc.CanParticipate(d))
}

func assertAPIErrorCode(t *testing.T, err error, code apierror.Code) {
	t.Helper()
	ae, ok := apierror.As(err)
	if !ok {
		t.Fatalf("expected *apierror.Error, got %T: %v", err, err)
	}
	assert.Equal(t, code, ae.Code)
}
