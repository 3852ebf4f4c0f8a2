// Package database wraps the Postgres connection pool and embeds the schema
// migrations for the deliberation domain.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/config"
)

// DB is the minimal pool contract repositories depend on.
type DB interface {
	Pool() *pgxpool.Pool
	HealthCheck(ctx context.Context) error
	Metrics() *PoolMetrics
	Close()
}

// PostgresDB implements DB over an OptimizedPool, which adds idle/total
// connection counts alongside the bare query surface.
type PostgresDB struct {
	pool   *OptimizedPool
	logger *logrus.Logger
}

// NewPostgresDB opens a pool from cfg and verifies connectivity once.
func NewPostgresDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*PostgresDB, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Name, cfg.Database.SSLMode)

	opts := poolOptionsForProfile(cfg.Database.PoolProfile)
	opts.MaxConns = cfg.Database.MaxConnections
	opts.ConnectTimeout = cfg.Database.ConnTimeout

	pool, err := NewOptimizedPool(ctx, connString, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	logger.WithField("database", cfg.Database.Name).Info("connected to postgres")
	return &PostgresDB{pool: pool, logger: logger}, nil
}

// poolOptionsForProfile maps DB_POOL_PROFILE to one of the named option
// presets; an unrecognized value falls back to the default profile.
func poolOptionsForProfile(profile string) *PoolConfigOptions {
	switch profile {
	case "high_performance":
		return HighPerformancePoolOptions()
	case "low_latency":
		return LowLatencyPoolOptions()
	default:
		return DefaultPoolOptions()
	}
}

// Pool returns the underlying connection pool.
func (p *PostgresDB) Pool() *pgxpool.Pool { return p.pool.Pool() }

// HealthCheck pings the pool with a short deadline, for the /health handler.
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	return p.pool.HealthCheck(ctx)
}

// Metrics exposes the pool's idle/total connection counts, surfaced by the
// /health handler.
func (p *PostgresDB) Metrics() *PoolMetrics { return p.pool.Metrics() }

// Close releases the pool.
func (p *PostgresDB) Close() { p.pool.Close() }

// RunMigrations applies every statement in migrations in order, logging each.
func RunMigrations(ctx context.Context, db *PostgresDB) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration #%d: %w", i, err)
		}
	}
	db.logger.WithField("count", len(migrations)).Info("migrations applied")
	return nil
}

// migrations holds the deliberation domain's schema, in apply order. Unique
// constraints encode the idempotency keys spec.md §5 requires: one opinion
// and one feedback per (deliberation, participant), one ranking and one
// critique per (deliberation, participant, round).
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS participants (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		human_name VARCHAR(255) NOT NULL,
		token_hash BYTEA UNIQUE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		last_active_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS deliberations (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		question TEXT NOT NULL,
		stage VARCHAR(20) NOT NULL DEFAULT 'OPINION',
		created_by UUID NOT NULL REFERENCES participants(id),
		participant_count INTEGER NOT NULL DEFAULT 0,
		max_participants INTEGER,
		num_critique_rounds INTEGER NOT NULL DEFAULT 1,
		current_round INTEGER NOT NULL DEFAULT 0,
		metadata JSONB DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		started_at TIMESTAMP WITH TIME ZONE,
		concluded_at TIMESTAMP WITH TIME ZONE,
		finalized_at TIMESTAMP WITH TIME ZONE,
		last_failure_at TIMESTAMP WITH TIME ZONE,
		last_failure_reason TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS opinions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		deliberation_id UUID NOT NULL REFERENCES deliberations(id) ON DELETE CASCADE,
		participant_id UUID NOT NULL REFERENCES participants(id),
		text TEXT NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (deliberation_id, participant_id)
	)`,

	`CREATE TABLE IF NOT EXISTS statements (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		deliberation_id UUID NOT NULL REFERENCES deliberations(id) ON DELETE CASCADE,
		round_number INTEGER NOT NULL,
		text TEXT NOT NULL,
		social_rank INTEGER NOT NULL,
		generated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		metadata JSONB DEFAULT '{}',
		UNIQUE (deliberation_id, round_number, social_rank)
	)`,

	`CREATE TABLE IF NOT EXISTS rankings (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		deliberation_id UUID NOT NULL REFERENCES deliberations(id) ON DELETE CASCADE,
		participant_id UUID NOT NULL REFERENCES participants(id),
		round_number INTEGER NOT NULL,
		rankings JSONB NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (deliberation_id, participant_id, round_number)
	)`,

	`CREATE TABLE IF NOT EXISTS critiques (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		deliberation_id UUID NOT NULL REFERENCES deliberations(id) ON DELETE CASCADE,
		participant_id UUID NOT NULL REFERENCES participants(id),
		round_number INTEGER NOT NULL,
		winning_statement TEXT NOT NULL,
		text TEXT NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (deliberation_id, participant_id, round_number)
	)`,

	`CREATE TABLE IF NOT EXISTS human_feedback (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		deliberation_id UUID NOT NULL REFERENCES deliberations(id) ON DELETE CASCADE,
		participant_id UUID NOT NULL REFERENCES participants(id),
		final_statement TEXT NOT NULL,
		agreement SMALLINT NOT NULL,
		text TEXT,
		submitted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (deliberation_id, participant_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_deliberations_stage ON deliberations(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_opinions_deliberation_id ON opinions(deliberation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_statements_deliberation_round ON statements(deliberation_id, round_number)`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_deliberation_round ON rankings(deliberation_id, round_number)`,
	`CREATE INDEX IF NOT EXISTS idx_critiques_deliberation_round ON critiques(deliberation_id, round_number)`,
	`CREATE INDEX IF NOT EXISTS idx_human_feedback_deliberation_id ON human_feedback(deliberation_id)`,
}
