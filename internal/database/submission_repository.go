package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/apierror"
	"github.com/deliberation/dsm-engine/internal/models"
)

// uniqueViolationCode is Postgres's SQLSTATE for a unique-constraint failure.
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// failure, the signal for a duplicate per-round submission (spec.md §5).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// OpinionRepository persists OPINION-stage submissions.
type OpinionRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewOpinionRepository creates a new OpinionRepository.
func NewOpinionRepository(pool *pgxpool.Pool, log *logrus.Logger) *OpinionRepository {
	return &OpinionRepository{pool: pool, log: log}
}

// Create inserts an opinion inside tx, translating a unique-constraint hit
// into a DUPLICATE_SUBMISSION apierror so the service layer doesn't need to
// parse driver errors itself.
func (r *OpinionRepository) Create(ctx context.Context, tx pgx.Tx, o *models.Opinion) error {
	query := `
		INSERT INTO opinions (deliberation_id, participant_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, submitted_at
	`
	err := tx.QueryRow(ctx, query, o.DeliberationID, o.ParticipantID, o.Text).Scan(&o.ID, &o.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.Wrap(apierror.DuplicateSubmission, "opinion already submitted for this round", err)
		}
		return fmt.Errorf("create opinion: %w", err)
	}
	return nil
}

// ListByDeliberation returns every opinion submitted for a deliberation.
func (r *OpinionRepository) ListByDeliberation(ctx context.Context, deliberationID string) ([]*models.Opinion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deliberation_id, participant_id, text, submitted_at
		FROM opinions WHERE deliberation_id = $1 ORDER BY submitted_at ASC
	`, deliberationID)
	if err != nil {
		return nil, fmt.Errorf("list opinions: %w", err)
	}
	defer rows.Close()

	var out []*models.Opinion
	for rows.Next() {
		o := &models.Opinion{}
		if err := rows.Scan(&o.ID, &o.DeliberationID, &o.ParticipantID, &o.Text, &o.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan opinion: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// CountByDeliberation counts submitted opinions, used by the transition
// predicate to decide whether every participant has weighed in.
func (r *OpinionRepository) CountByDeliberation(ctx context.Context, deliberationID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM opinions WHERE deliberation_id = $1`, deliberationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count opinions: %w", err)
	}
	return count, nil
}

// StatementRepository persists Mediation Engine output.
type StatementRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewStatementRepository creates a new StatementRepository.
func NewStatementRepository(pool *pgxpool.Pool, log *logrus.Logger) *StatementRepository {
	return &StatementRepository{pool: pool, log: log}
}

// CreateBatch inserts an entire round's ranked statements inside tx.
func (r *StatementRepository) CreateBatch(ctx context.Context, tx pgx.Tx, statements []*models.Statement) error {
	for _, s := range statements {
		metadataJSON, err := json.Marshal(s.Metadata)
		if err != nil {
			return fmt.Errorf("marshal statement metadata: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO statements (deliberation_id, round_number, text, social_rank, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, generated_at
		`, s.DeliberationID, s.RoundNumber, s.Text, s.SocialRank, metadataJSON).Scan(&s.ID, &s.GeneratedAt)
		if err != nil {
			return fmt.Errorf("create statement: %w", err)
		}
	}
	return nil
}

// ListByRound returns a round's statements ordered by social rank (winner first).
func (r *StatementRepository) ListByRound(ctx context.Context, deliberationID string, round int) ([]*models.Statement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deliberation_id, round_number, text, social_rank, generated_at, metadata
		FROM statements WHERE deliberation_id = $1 AND round_number = $2 ORDER BY social_rank ASC
	`, deliberationID, round)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()
	return scanStatements(rows)
}

// GetWinner returns the round's social_rank = 1 statement, the current
// "winning statement" spec.md §4.5's get_winning_statement names.
func (r *StatementRepository) GetWinner(ctx context.Context, deliberationID string, round int) (*models.Statement, error) {
	s := &models.Statement{}
	var metadataJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, deliberation_id, round_number, text, social_rank, generated_at, metadata
		FROM statements WHERE deliberation_id = $1 AND round_number = $2 AND social_rank = 1
	`, deliberationID, round).Scan(&s.ID, &s.DeliberationID, &s.RoundNumber, &s.Text, &s.SocialRank, &s.GeneratedAt, &metadataJSON)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no winning statement for round %d", round)
	}
	if err != nil {
		return nil, fmt.Errorf("get winning statement: %w", err)
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &s.Metadata)
	}
	return s, nil
}

func scanStatements(rows pgx.Rows) ([]*models.Statement, error) {
	var out []*models.Statement
	for rows.Next() {
		s := &models.Statement{}
		var metadataJSON []byte
		if err := rows.Scan(&s.ID, &s.DeliberationID, &s.RoundNumber, &s.Text, &s.SocialRank, &s.GeneratedAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &s.Metadata)
		}
		out = append(out, s)
	}
	return out, nil
}

// RankingRepository persists RANKING-stage submissions.
type RankingRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewRankingRepository creates a new RankingRepository.
func NewRankingRepository(pool *pgxpool.Pool, log *logrus.Logger) *RankingRepository {
	return &RankingRepository{pool: pool, log: log}
}

// Create inserts a participant's ranking for a round inside tx.
func (r *RankingRepository) Create(ctx context.Context, tx pgx.Tx, rk *models.Ranking) error {
	rankingsJSON, err := json.Marshal(rk.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO rankings (deliberation_id, participant_id, round_number, rankings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, submitted_at
	`, rk.DeliberationID, rk.ParticipantID, rk.RoundNumber, rankingsJSON).Scan(&rk.ID, &rk.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.Wrap(apierror.DuplicateSubmission, "ranking already submitted for this round", err)
		}
		return fmt.Errorf("create ranking: %w", err)
	}
	return nil
}

// ListByRound returns every ranking submitted for a round. The Schulze
// aggregator does not read these; it runs on the engine's predicted ranks.
func (r *RankingRepository) ListByRound(ctx context.Context, deliberationID string, round int) ([]*models.Ranking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deliberation_id, participant_id, round_number, rankings, submitted_at
		FROM rankings WHERE deliberation_id = $1 AND round_number = $2
	`, deliberationID, round)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}
	defer rows.Close()

	var out []*models.Ranking
	for rows.Next() {
		rk := &models.Ranking{}
		var rankingsJSON []byte
		if err := rows.Scan(&rk.ID, &rk.DeliberationID, &rk.ParticipantID, &rk.RoundNumber, &rankingsJSON, &rk.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		if err := json.Unmarshal(rankingsJSON, &rk.Rankings); err != nil {
			return nil, fmt.Errorf("unmarshal rankings: %w", err)
		}
		out = append(out, rk)
	}
	return out, nil
}

// CountByRound counts rankings submitted for a round.
func (r *RankingRepository) CountByRound(ctx context.Context, deliberationID string, round int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rankings WHERE deliberation_id = $1 AND round_number = $2
	`, deliberationID, round).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rankings: %w", err)
	}
	return count, nil
}

// CritiqueRepository persists CRITIQUE-stage submissions.
type CritiqueRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewCritiqueRepository creates a new CritiqueRepository.
func NewCritiqueRepository(pool *pgxpool.Pool, log *logrus.Logger) *CritiqueRepository {
	return &CritiqueRepository{pool: pool, log: log}
}

// Create inserts a critique inside tx.
func (r *CritiqueRepository) Create(ctx context.Context, tx pgx.Tx, c *models.Critique) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO critiques (deliberation_id, participant_id, round_number, winning_statement, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at
	`, c.DeliberationID, c.ParticipantID, c.RoundNumber, c.WinningStatement, c.Text).Scan(&c.ID, &c.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.Wrap(apierror.DuplicateSubmission, "critique already submitted for this round", err)
		}
		return fmt.Errorf("create critique: %w", err)
	}
	return nil
}

// ListByRound returns every critique submitted for a round, ordered by
// submission time; the caller pairs them with opinions by participant.
func (r *CritiqueRepository) ListByRound(ctx context.Context, deliberationID string, round int) ([]*models.Critique, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deliberation_id, participant_id, round_number, winning_statement, text, submitted_at
		FROM critiques WHERE deliberation_id = $1 AND round_number = $2 ORDER BY submitted_at ASC
	`, deliberationID, round)
	if err != nil {
		return nil, fmt.Errorf("list critiques: %w", err)
	}
	defer rows.Close()

	var out []*models.Critique
	for rows.Next() {
		c := &models.Critique{}
		if err := rows.Scan(&c.ID, &c.DeliberationID, &c.ParticipantID, &c.RoundNumber, &c.WinningStatement, &c.Text, &c.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan critique: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CountByRound counts critiques submitted for a round.
func (r *CritiqueRepository) CountByRound(ctx context.Context, deliberationID string, round int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM critiques WHERE deliberation_id = $1 AND round_number = $2
	`, deliberationID, round).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count critiques: %w", err)
	}
	return count, nil
}

// FeedbackRepository persists the human agreement ratings submitted during
// CONCLUDED.
type FeedbackRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(pool *pgxpool.Pool, log *logrus.Logger) *FeedbackRepository {
	return &FeedbackRepository{pool: pool, log: log}
}

// Create inserts a feedback rating.
func (r *FeedbackRepository) Create(ctx context.Context, f *models.HumanFeedback) error {
	var text interface{}
	if f.Text != "" {
		text = f.Text
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO human_feedback (deliberation_id, participant_id, final_statement, agreement, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at
	`, f.DeliberationID, f.ParticipantID, f.FinalStatement, f.Agreement, text).Scan(&f.ID, &f.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.Wrap(apierror.DuplicateSubmission, "feedback already submitted", err)
		}
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// ListByDeliberation returns every feedback rating for a deliberation.
func (r *FeedbackRepository) ListByDeliberation(ctx context.Context, deliberationID string) ([]*models.HumanFeedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deliberation_id, participant_id, final_statement, agreement, COALESCE(text, ''), submitted_at
		FROM human_feedback WHERE deliberation_id = $1
	`, deliberationID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.HumanFeedback
	for rows.Next() {
		f := &models.HumanFeedback{}
		if err := rows.Scan(&f.ID, &f.DeliberationID, &f.ParticipantID, &f.FinalStatement, &f.Agreement, &f.Text, &f.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
