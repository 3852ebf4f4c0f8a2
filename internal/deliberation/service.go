// Package deliberation implements the deliberation state machine (spec.md
// §4.5): the public create/submit_*/list/get operations, their stage-gated
// idempotency rules, and the transition predicates that advance a
// deliberation through OPINION -> RANKING -> (CRITIQUE -> RANKING)* ->
// CONCLUDED -> FINALIZED.
package deliberation

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/apierror"
	"github.com/deliberation/dsm-engine/internal/config"
	"github.com/deliberation/dsm-engine/internal/database"
	"github.com/deliberation/dsm-engine/internal/mediation"
	"github.com/deliberation/dsm-engine/internal/models"
)

// TransitionEnqueuer schedules an asynchronous re-check of a deliberation's
// transition predicates. Satisfied by *background.TransitionJobQueue.
type TransitionEnqueuer interface {
	Enqueue(deliberationID string) error
}

// Service implements the deliberation state machine over a Postgres-backed
// store and a Mediation Engine.
type Service struct {
	pool *pgxpool.Pool

	deliberations *database.DeliberationRepository
	opinions      *database.OpinionRepository
	statements    *database.StatementRepository
	rankings      *database.RankingRepository
	critiques     *database.CritiqueRepository
	feedback      *database.FeedbackRepository

	engine *mediation.Engine
	cfg    config.EngineConfig
	queue  TransitionEnqueuer
	log    *logrus.Logger
	locks  *keyedLocks
}

// Repositories bundles the repositories Service depends on.
type Repositories struct {
	Deliberations *database.DeliberationRepository
	Opinions      *database.OpinionRepository
	Statements    *database.StatementRepository
	Rankings      *database.RankingRepository
	Critiques     *database.CritiqueRepository
	Feedback      *database.FeedbackRepository
}

// NewService builds a Service. The TransitionEnqueuer is set afterward via
// SetQueue, since the queue's handler is this Service's CheckTransition
// method — constructing both requires breaking the cycle at wiring time.
func NewService(pool *pgxpool.Pool, repos Repositories, engine *mediation.Engine, cfg config.EngineConfig, log *logrus.Logger) *Service {
	return &Service{
		pool:          pool,
		deliberations: repos.Deliberations,
		opinions:      repos.Opinions,
		statements:    repos.Statements,
		rankings:      repos.Rankings,
		critiques:     repos.Critiques,
		feedback:      repos.Feedback,
		engine:        engine,
		cfg:           cfg,
		log:           log,
		locks:         newKeyedLocks(),
	}
}

// SetQueue wires the background transition queue once constructed.
func (s *Service) SetQueue(q TransitionEnqueuer) { s.queue = q }

func (s *Service) enqueueCheck(deliberationID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(deliberationID); err != nil {
		s.log.WithError(err).WithField("deliberation_id", deliberationID).Warn("failed to enqueue transition check")
	}
}

// Create starts a new deliberation in OPINION, round 0.
func (s *Service) Create(ctx context.Context, createdBy, question string, maxParticipants *int, numCritiqueRounds int, metadata map[string]interface{}) (*models.Deliberation, error) {
	if len(question) < models.MinQuestionTextLen || len(question) > models.MaxQuestionTextLen {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("question length must be between %d and %d characters", models.MinQuestionTextLen, models.MaxQuestionTextLen))
	}
	if maxParticipants != nil && (*maxParticipants < models.MinMaxParticipants || *maxParticipants > models.MaxMaxParticipants) {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("max_participants must be between %d and %d", models.MinMaxParticipants, models.MaxMaxParticipants))
	}
	if numCritiqueRounds < models.MinCritiqueRounds || numCritiqueRounds > models.MaxCritiqueRounds {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("num_critique_rounds must be between %d and %d", models.MinCritiqueRounds, models.MaxCritiqueRounds))
	}

	d := &models.Deliberation{
		Question:          question,
		Stage:             models.StageOpinion,
		CreatedByID:       createdBy,
		MaxParticipants:   maxParticipants,
		NumCritiqueRounds: numCritiqueRounds,
		Metadata:          metadata,
	}
	if err := s.deliberations.Create(ctx, d); err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "create deliberation", err)
	}
	return d, nil
}

// Get returns a deliberation's full current view.
func (s *Service) Get(ctx context.Context, id string) (*models.Deliberation, error) {
	d, err := s.deliberations.GetByID(ctx, id)
	if err != nil {
		return nil, apierror.Wrap(apierror.NotFound, "deliberation not found", err)
	}
	return d, nil
}

// List enumerates deliberations, optionally filtered by stage.
func (s *Service) List(ctx context.Context, stage *models.Stage, limit, offset int) ([]*models.Deliberation, error) {
	all, err := s.deliberations.List(ctx, limit, offset)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "list deliberations", err)
	}
	if stage == nil {
		return all, nil
	}
	var filtered []*models.Deliberation
	for _, d := range all {
		if d.Stage == *stage {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// GetCurrentStatements returns the current round's candidate statements.
func (s *Service) GetCurrentStatements(ctx context.Context, id string) ([]*models.Statement, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stmts, err := s.statements.ListByRound(ctx, id, d.CurrentRound)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "list current statements", err)
	}
	return stmts, nil
}

// ResultView is the finalized view returned by GetResult.
type ResultView struct {
	Deliberation   *models.Deliberation
	FinalStatement string
	Feedback       []*models.HumanFeedback
}

// GetResult returns the finalized view of a deliberation.
func (s *Service) GetResult(ctx context.Context, id string) (*ResultView, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Stage != models.StageFinalized {
		return nil, apierror.New(apierror.StageMismatch, "deliberation is not finalized")
	}
	winner, err := s.statements.GetWinner(ctx, id, d.NumCritiqueRounds)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "get final statement", err)
	}
	fb, err := s.feedback.ListByDeliberation(ctx, id)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "list feedback", err)
	}
	return &ResultView{Deliberation: d, FinalStatement: winner.Text, Feedback: fb}, nil
}

// CanParticipate reports whether d can currently accept a new opinion,
// grounded on the original's can_agent_participate precondition gate: the
// stage must be OPINION and, if max_participants is set, participant_count
// must not have already reached it. submit_opinion calls this under a
// row lock rather than relying on the opinions table's unique constraint
// alone, so a full deliberation rejects with STAGE_MISMATCH instead of
// racing a DUPLICATE_SUBMISSION from the constraint.
func (s *Service) CanParticipate(d *models.Deliberation) error {
	if !d.IsAcceptingOpinions() {
		return apierror.New(apierror.StageMismatch, "deliberation is not accepting opinions")
	}
	return nil
}

// SubmitOpinion persists a participant's opinion, valid only during OPINION
// and only while under the deliberation's max_participants cap. The
// precondition check and the insert share one row-locked transaction: since
// CheckTransition re-evaluates the OPINION->RANKING predicate asynchronously
// off the background queue, a plain read-then-insert would leave a window
// where concurrently-submitting agents could push participant_count past
// max_participants before the stage flips.
func (s *Service) SubmitOpinion(ctx context.Context, deliberationID, participantID, text string) (*models.Opinion, error) {
	if len(text) < models.MinOpinionTextLen || len(text) > models.MaxOpinionTextLen {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("opinion text length must be between %d and %d characters", models.MinOpinionTextLen, models.MaxOpinionTextLen))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.deliberations.GetForUpdate(ctx, tx, deliberationID)
	if err != nil {
		return nil, apierror.Wrap(apierror.NotFound, "deliberation not found", err)
	}
	if err := s.CanParticipate(d); err != nil {
		return nil, err
	}

	o := &models.Opinion{DeliberationID: deliberationID, ParticipantID: participantID, Text: text}
	if err := s.opinions.Create(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.deliberations.IncrementParticipantCount(ctx, tx, deliberationID); err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "increment participant count", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "commit opinion", err)
	}

	s.enqueueCheck(deliberationID)
	return o, nil
}

// SubmitRanking persists a participant's ranking for the current round,
// valid only during RANKING.
func (s *Service) SubmitRanking(ctx context.Context, deliberationID, participantID string, entries []models.RankedStatement) (*models.Ranking, error) {
	d, err := s.Get(ctx, deliberationID)
	if err != nil {
		return nil, err
	}
	if d.Stage != models.StageRanking {
		return nil, apierror.New(apierror.StageMismatch, "deliberation is not accepting rankings")
	}

	candidates, err := s.statements.ListByRound(ctx, deliberationID, d.CurrentRound)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "list round candidates", err)
	}
	if err := validateRankingPermutation(entries, candidates); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	rk := &models.Ranking{
		DeliberationID: deliberationID,
		ParticipantID:  participantID,
		RoundNumber:    d.CurrentRound,
		Rankings:       entries,
	}
	if err := s.rankings.Create(ctx, tx, rk); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "commit ranking", err)
	}

	s.enqueueCheck(deliberationID)
	return rk, nil
}

// validateRankingPermutation checks entries name exactly the round's
// candidates and form a strict permutation of 1..K (spec.md §4.5).
func validateRankingPermutation(entries []models.RankedStatement, candidates []*models.Statement) error {
	if len(entries) != len(candidates) {
		return apierror.New(apierror.InvalidRanking, "ranking must cover every current-round candidate exactly once")
	}
	valid := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		valid[c.ID] = true
	}

	seenRank := make(map[int]bool, len(entries))
	seenID := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !valid[e.StatementID] {
			return apierror.New(apierror.InvalidRanking, "ranking references an unknown statement id")
		}
		if seenID[e.StatementID] {
			return apierror.New(apierror.InvalidRanking, "ranking references the same statement twice")
		}
		seenID[e.StatementID] = true
		if e.Rank < 1 || e.Rank > len(entries) {
			return apierror.New(apierror.InvalidRanking, "rank values must be a strict permutation of 1..K")
		}
		if seenRank[e.Rank] {
			return apierror.New(apierror.InvalidRanking, "rank values must be a strict permutation of 1..K")
		}
		seenRank[e.Rank] = true
	}
	return nil
}

// SubmitCritique persists a participant's critique of the current winning
// statement, valid only during CRITIQUE.
func (s *Service) SubmitCritique(ctx context.Context, deliberationID, participantID, text string) (*models.Critique, error) {
	if len(text) < models.MinCritiqueTextLen || len(text) > models.MaxCritiqueTextLen {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("critique text length must be between %d and %d characters", models.MinCritiqueTextLen, models.MaxCritiqueTextLen))
	}

	d, err := s.Get(ctx, deliberationID)
	if err != nil {
		return nil, err
	}
	if d.Stage != models.StageCritique {
		return nil, apierror.New(apierror.StageMismatch, "deliberation is not accepting critiques")
	}

	winner, err := s.statements.GetWinner(ctx, deliberationID, d.CurrentRound)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "no winning statement to critique", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	c := &models.Critique{
		DeliberationID:   deliberationID,
		ParticipantID:    participantID,
		RoundNumber:      d.CurrentRound,
		WinningStatement: winner.Text,
		Text:             text,
	}
	if err := s.critiques.Create(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apierror.Wrap(apierror.StoreError, "commit critique", err)
	}

	s.enqueueCheck(deliberationID)
	return c, nil
}

// SubmitFeedback persists a participant's agreement rating, valid only
// during CONCLUDED. The final_statement is set server-side (spec.md §4.5).
func (s *Service) SubmitFeedback(ctx context.Context, deliberationID, participantID string, agreement int, text string) (*models.HumanFeedback, error) {
	if agreement < models.MinFeedbackAgree || agreement > models.MaxFeedbackAgree {
		return nil, apierror.New(apierror.Validation, fmt.Sprintf("agreement must be between %d and %d", models.MinFeedbackAgree, models.MaxFeedbackAgree))
	}

	d, err := s.Get(ctx, deliberationID)
	if err != nil {
		return nil, err
	}
	if d.Stage != models.StageConcluded {
		return nil, apierror.New(apierror.StageMismatch, "deliberation is not accepting feedback")
	}

	winner, err := s.statements.GetWinner(ctx, deliberationID, d.NumCritiqueRounds)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "no final statement on record", err)
	}

	f := &models.HumanFeedback{
		DeliberationID: deliberationID,
		ParticipantID:  participantID,
		FinalStatement: winner.Text,
		Agreement:      agreement,
		Text:           text,
	}
	if err := s.feedback.Create(ctx, f); err != nil {
		return nil, err
	}

	s.enqueueCheck(deliberationID)
	return f, nil
}
