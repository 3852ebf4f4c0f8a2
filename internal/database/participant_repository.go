package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/models"
)

// ParticipantRepository handles participant database operations.
type ParticipantRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool, log *logrus.Logger) *ParticipantRepository {
	return &ParticipantRepository{pool: pool, log: log}
}

// Create registers a new participant. TokenHash must already be the salted
// hash computed by internal/auth — this repository never sees the raw token.
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (name, human_name, token_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, last_active_at
	`

	err := r.pool.QueryRow(ctx, query, p.Name, p.HumanName, p.TokenHash).
		Scan(&p.ID, &p.CreatedAt, &p.LastActiveAt)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}

	r.log.WithFields(logrus.Fields{"participant_id": p.ID, "name": p.Name}).Debug("registered participant")
	return nil
}

// GetByID retrieves a participant by ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := `
		SELECT id, name, human_name, token_hash, created_at, last_active_at
		FROM participants
		WHERE id = $1
	`

	p := &models.Participant{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.HumanName, &p.TokenHash, &p.CreatedAt, &p.LastActiveAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("participant not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// GetByTokenHash looks up the participant owning a given credential token
// hash. Callers compute the hash via internal/auth before calling this.
func (r *ParticipantRepository) GetByTokenHash(ctx context.Context, tokenHash []byte) (*models.Participant, error) {
	query := `
		SELECT id, name, human_name, token_hash, created_at, last_active_at
		FROM participants
		WHERE token_hash = $1
	`

	p := &models.Participant{}
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&p.ID, &p.Name, &p.HumanName, &p.TokenHash, &p.CreatedAt, &p.LastActiveAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("participant not found for token")
	}
	if err != nil {
		return nil, fmt.Errorf("get participant by token: %w", err)
	}
	return p, nil
}

// TouchLastActive updates a participant's last_active_at to now.
func (r *ParticipantRepository) TouchLastActive(ctx context.Context, id string) error {
	query := `UPDATE participants SET last_active_at = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("participant not found: %s", id)
	}
	return nil
}
