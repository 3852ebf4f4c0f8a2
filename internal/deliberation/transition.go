package deliberation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/mediation"
	"github.com/deliberation/dsm-engine/internal/models"
)

// CheckTransition re-evaluates deliberationID's transition predicate and
// advances its stage if satisfied (spec.md §4.5, §5). It is the
// background.TransitionHandler this Service supplies to the job queue: every
// submit_* call enqueues a call to this method instead of running it inline.
//
// The per-deliberation lock (spec.md §5) is held for the whole check,
// including any Mediation Engine round it triggers, giving at-most-one
// concurrent round per deliberation. The lock is NOT held across a separate
// Postgres transaction for the Mediation Engine's own text-model calls —
// only the final stage+round+statements write is transactional; the engine
// call itself runs outside any DB transaction.
func (s *Service) CheckTransition(ctx context.Context, deliberationID string) error {
	lock := s.locks.forKey(deliberationID)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.deliberations.GetByID(ctx, deliberationID)
	if err != nil {
		return fmt.Errorf("check transition: %w", err)
	}

	switch d.Stage {
	case models.StageOpinion:
		return s.checkOpinionToRanking(ctx, d)
	case models.StageRanking:
		return s.checkRankingToCritique(ctx, d)
	case models.StageCritique:
		return s.checkCritique(ctx, d)
	case models.StageConcluded:
		return s.checkConcludedToFinalized(ctx, d)
	default:
		return nil // CONCLUDED (handled above) / FINALIZED: terminal, nothing to do
	}
}

func (s *Service) checkOpinionToRanking(ctx context.Context, d *models.Deliberation) error {
	count, err := s.opinions.CountByDeliberation(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("count opinions: %w", err)
	}
	if count < 2 {
		return nil
	}
	if d.MaxParticipants != nil && count < *d.MaxParticipants {
		return nil
	}

	opinionRows, err := s.opinions.ListByDeliberation(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list opinions: %w", err)
	}
	texts := make([]string, len(opinionRows))
	for i, o := range opinionRows {
		texts[i] = o.Text
	}

	result, err := s.engine.RunRound(ctx, mediation.RoundInput{
		Question:      d.Question,
		Opinions:      texts,
		NumCandidates: s.numCandidates(),
		Seed:          roundSeed(d.ID, 0),
	})
	if err != nil {
		s.recordFailure(ctx, d.ID, err)
		return fmt.Errorf("run round 0: %w", err)
	}

	return s.persistRoundAndAdvance(ctx, d.ID, 0, result, models.StageRanking)
}

func (s *Service) checkRankingToCritique(ctx context.Context, d *models.Deliberation) error {
	count, err := s.rankings.CountByRound(ctx, d.ID, d.CurrentRound)
	if err != nil {
		return fmt.Errorf("count rankings: %w", err)
	}
	if count < d.ParticipantCount {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.deliberations.AdvanceStage(ctx, tx, d.ID, models.StageCritique, d.CurrentRound); err != nil {
		return fmt.Errorf("advance to critique: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Service) checkCritique(ctx context.Context, d *models.Deliberation) error {
	count, err := s.critiques.CountByRound(ctx, d.ID, d.CurrentRound)
	if err != nil {
		return fmt.Errorf("count critiques: %w", err)
	}
	if count < d.ParticipantCount {
		return nil
	}

	if d.CurrentRound >= d.NumCritiqueRounds {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer tx.Rollback(ctx)
		if err := s.deliberations.AdvanceStage(ctx, tx, d.ID, models.StageConcluded, d.CurrentRound); err != nil {
			return fmt.Errorf("advance to concluded: %w", err)
		}
		return tx.Commit(ctx)
	}

	opinionRows, err := s.opinions.ListByDeliberation(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list opinions: %w", err)
	}
	critiqueRows, err := s.critiques.ListByRound(ctx, d.ID, d.CurrentRound)
	if err != nil {
		return fmt.Errorf("list critiques: %w", err)
	}
	opinionText, critiqueText, err := alignOpinionsAndCritiques(opinionRows, critiqueRows)
	if err != nil {
		return fmt.Errorf("align critiques to opinions: %w", err)
	}

	winner, err := s.statements.GetWinner(ctx, d.ID, d.CurrentRound)
	if err != nil {
		return fmt.Errorf("get previous winner: %w", err)
	}

	nextRound := d.CurrentRound + 1
	result, err := s.engine.RunRound(ctx, mediation.RoundInput{
		Question:       d.Question,
		Opinions:       opinionText,
		Critiques:      critiqueText,
		PreviousWinner: winner.Text,
		NumCandidates:  s.numCandidates(),
		Seed:           roundSeed(d.ID, nextRound),
	})
	if err != nil {
		s.recordFailure(ctx, d.ID, err)
		return fmt.Errorf("run round %d: %w", nextRound, err)
	}

	return s.persistRoundAndAdvance(ctx, d.ID, nextRound, result, models.StageRanking)
}

func (s *Service) checkConcludedToFinalized(ctx context.Context, d *models.Deliberation) error {
	entries, err := s.feedback.ListByDeliberation(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list feedback: %w", err)
	}
	if len(entries) < d.ParticipantCount {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := s.deliberations.AdvanceStage(ctx, tx, d.ID, models.StageFinalized, d.CurrentRound); err != nil {
		return fmt.Errorf("advance to finalized: %w", err)
	}
	return tx.Commit(ctx)
}

// persistRoundAndAdvance writes a round's statements and the resulting
// stage+round in one transaction (spec.md §5): "the transition writes
// stage+round+statements in one final transaction."
func (s *Service) persistRoundAndAdvance(ctx context.Context, deliberationID string, round int, result *mediation.RoundResult, nextStage models.Stage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin round tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row-locked re-read: guards against a second process instance having
	// mutated this deliberation between the predicate check and this write.
	// keyedLocks only serializes callers within this process. The row must
	// still carry the round the predicate was evaluated in: round 0 for
	// OPINION->RANKING, round-1 for CRITIQUE->RANKING.
	locked, err := s.deliberations.GetForUpdate(ctx, tx, deliberationID)
	if err != nil {
		return fmt.Errorf("lock deliberation row: %w", err)
	}
	prevRound := round
	if round > 0 {
		prevRound = round - 1
	}
	if locked.CurrentRound != prevRound {
		return fmt.Errorf("round advanced concurrently: expected %d, found %d", prevRound, locked.CurrentRound)
	}

	rows := make([]*models.Statement, len(result.Statements))
	for i, st := range result.Statements {
		rows[i] = &models.Statement{
			DeliberationID: deliberationID,
			RoundNumber:    round,
			Text:           st.Text,
			SocialRank:     st.SocialRank,
			Metadata:       map[string]interface{}{"explanation": st.Explanation},
		}
	}
	if err := s.statements.CreateBatch(ctx, tx, rows); err != nil {
		return fmt.Errorf("persist round statements: %w", err)
	}
	if err := s.deliberations.AdvanceStage(ctx, tx, deliberationID, nextStage, round); err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"deliberation_id": deliberationID,
		"round":           round,
		"rankings":        result.RankingsArrow,
	}).Info("round persisted")
	return nil
}

func (s *Service) recordFailure(ctx context.Context, deliberationID string, cause error) {
	if err := s.deliberations.RecordFailure(ctx, deliberationID, cause.Error()); err != nil {
		s.log.WithError(err).WithField("deliberation_id", deliberationID).Error("failed to record round failure")
	}
}

func (s *Service) numCandidates() int {
	if s.cfg.NumCandidates > 0 {
		return s.cfg.NumCandidates
	}
	return models.DefaultNumCandidates
}

// roundSeed derives a deterministic per-round engine seed from the
// deliberation id and round number, so re-running CheckTransition after a
// transient failure reproduces the same shuffle plan.
func roundSeed(deliberationID string, round int) int64 {
	var h int64 = 1469598103934665603 // FNV-1a 64-bit offset basis with its last digit dropped, to fit int64
	for i := 0; i < len(deliberationID); i++ {
		h ^= int64(deliberationID[i])
		h *= 1099511628211
	}
	h ^= int64(round)
	h *= 1099511628211
	if h < 0 {
		h = -h
	}
	return h
}

// alignOpinionsAndCritiques pairs each opinion with its author's critique of
// the round's winner, in opinion order, so the critique-round Statement
// Generator call receives opinions[i] and critiques[i] for the same
// participant (spec.md §9: no "critiques passed as opinions" bug).
func alignOpinionsAndCritiques(opinions []*models.Opinion, critiques []*models.Critique) ([]string, []string, error) {
	byParticipant := make(map[string]string, len(critiques))
	for _, c := range critiques {
		byParticipant[c.ParticipantID] = c.Text
	}

	opinionText := make([]string, len(opinions))
	critiqueText := make([]string, len(opinions))
	for i, o := range opinions {
		text, ok := byParticipant[o.ParticipantID]
		if !ok {
			return nil, nil, fmt.Errorf("participant %s has no critique for this round", o.ParticipantID)
		}
		opinionText[i] = o.Text
		critiqueText[i] = text
	}
	return opinionText, critiqueText, nil
}
