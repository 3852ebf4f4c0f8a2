package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/models"
)

// DeliberationRepository handles deliberation lifecycle rows.
type DeliberationRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewDeliberationRepository creates a new DeliberationRepository.
func NewDeliberationRepository(pool *pgxpool.Pool, log *logrus.Logger) *DeliberationRepository {
	return &DeliberationRepository{pool: pool, log: log}
}

// Create inserts a new deliberation in the OPINION stage.
func (r *DeliberationRepository) Create(ctx context.Context, d *models.Deliberation) error {
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO deliberations (question, stage, created_by, max_participants, num_critique_rounds, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, participant_count, current_round, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		d.Question, d.Stage, d.CreatedByID, d.MaxParticipants, d.NumCritiqueRounds, metadataJSON,
	).Scan(&d.ID, &d.ParticipantCount, &d.CurrentRound, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create deliberation: %w", err)
	}
	return nil
}

// GetByID retrieves a deliberation by ID.
func (r *DeliberationRepository) GetByID(ctx context.Context, id string) (*models.Deliberation, error) {
	return r.scanOne(ctx, `
		SELECT id, question, stage, created_by, participant_count, max_participants,
			num_critique_rounds, current_round, metadata, created_at, updated_at,
			started_at, concluded_at, finalized_at, last_failure_at, last_failure_reason
		FROM deliberations
		WHERE id = $1
	`, id)
}

// GetForUpdate retrieves a deliberation with a row lock held for the duration
// of the caller's transaction, used by SubmitOpinion's participation check and
// by the round write that follows a Mediation Engine run.
func (r *DeliberationRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*models.Deliberation, error) {
	d := &models.Deliberation{}
	var metadataJSON []byte
	err := tx.QueryRow(ctx, `
		SELECT id, question, stage, created_by, participant_count, max_participants,
			num_critique_rounds, current_round, metadata, created_at, updated_at,
			started_at, concluded_at, finalized_at, last_failure_at, last_failure_reason
		FROM deliberations
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&d.ID, &d.Question, &d.Stage, &d.CreatedByID, &d.ParticipantCount, &d.MaxParticipants,
		&d.NumCritiqueRounds, &d.CurrentRound, &metadataJSON, &d.CreatedAt, &d.UpdatedAt,
		&d.StartedAt, &d.ConcludedAt, &d.FinalizedAt, &d.LastFailureAt, &d.LastFailureReason,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("deliberation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get deliberation for update: %w", err)
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &d.Metadata)
	}
	return d, nil
}

// List retrieves deliberations ordered by creation time, newest first.
func (r *DeliberationRepository) List(ctx context.Context, limit, offset int) ([]*models.Deliberation, error) {
	query := `
		SELECT id, question, stage, created_by, participant_count, max_participants,
			num_critique_rounds, current_round, metadata, created_at, updated_at,
			started_at, concluded_at, finalized_at, last_failure_at, last_failure_reason
		FROM deliberations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deliberations: %w", err)
	}
	defer rows.Close()

	var out []*models.Deliberation
	for rows.Next() {
		d := &models.Deliberation{}
		var metadataJSON []byte
		err := rows.Scan(
			&d.ID, &d.Question, &d.Stage, &d.CreatedByID, &d.ParticipantCount, &d.MaxParticipants,
			&d.NumCritiqueRounds, &d.CurrentRound, &metadataJSON, &d.CreatedAt, &d.UpdatedAt,
			&d.StartedAt, &d.ConcludedAt, &d.FinalizedAt, &d.LastFailureAt, &d.LastFailureReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deliberation row: %w", err)
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &d.Metadata)
		}
		out = append(out, d)
	}
	return out, nil
}

// IncrementParticipantCount bumps participant_count by one, inside tx.
func (r *DeliberationRepository) IncrementParticipantCount(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE deliberations SET participant_count = participant_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment participant count: %w", err)
	}
	return nil
}

// AdvanceStage transitions a deliberation to a new stage/round inside tx,
// stamping the lifecycle timestamp columns the new stage implies.
func (r *DeliberationRepository) AdvanceStage(ctx context.Context, tx pgx.Tx, id string, stage models.Stage, round int) error {
	var timestampCol string
	switch stage {
	case models.StageRanking:
		timestampCol = "started_at"
	case models.StageConcluded:
		timestampCol = "concluded_at"
	case models.StageFinalized:
		timestampCol = "finalized_at"
	}

	query := `UPDATE deliberations SET stage = $2, current_round = $3, updated_at = NOW()`
	args := []interface{}{id, stage, round}
	if timestampCol != "" {
		query += fmt.Sprintf(", %s = COALESCE(%s, NOW())", timestampCol, timestampCol)
	}
	query += ` WHERE id = $1`

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	return nil
}

// RecordFailure stamps last_failure_at/last_failure_reason without changing
// the stage, used when a round's Mediation Engine call fails transiently.
func (r *DeliberationRepository) RecordFailure(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deliberations SET last_failure_at = NOW(), last_failure_reason = $2 WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (r *DeliberationRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*models.Deliberation, error) {
	d := &models.Deliberation{}
	var metadataJSON []byte
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&d.ID, &d.Question, &d.Stage, &d.CreatedByID, &d.ParticipantCount, &d.MaxParticipants,
		&d.NumCritiqueRounds, &d.CurrentRound, &metadataJSON, &d.CreatedAt, &d.UpdatedAt,
		&d.StartedAt, &d.ConcludedAt, &d.FinalizedAt, &d.LastFailureAt, &d.LastFailureReason,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("deliberation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan deliberation: %w", err)
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &d.Metadata)
	}
	return d, nil
}
