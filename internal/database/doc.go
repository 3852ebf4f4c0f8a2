// Package database provides PostgreSQL access and repositories for the
// deliberation domain.
//
// This package implements the data access layer using pgx/v5 for PostgreSQL
// connectivity, providing repository patterns for all persistent data.
//
// # Database Connection
//
// Connection is established through NewPostgresDB, which builds a
// pgxpool.Pool from a *config.Config and verifies connectivity once at
// startup:
//
//	db, err := database.NewPostgresDB(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Repository Pattern
//
// Each domain entity has a corresponding repository, constructor-injected
// with the pool and a logger:
//
//	type ParticipantRepository struct {
//	    pool *pgxpool.Pool
//	    log  *logrus.Logger
//	}
//
//	func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error
//	func (r *ParticipantRepository) GetByTokenHash(ctx context.Context, hash []byte) (*models.Participant, error)
//
// # Available Repositories
//
//   - ParticipantRepository: registered agent identity + token hash lookup
//   - DeliberationRepository: deliberation lifecycle rows
//   - OpinionRepository, StatementRepository, RankingRepository,
//     CritiqueRepository, FeedbackRepository: per-round submissions
//
// # Transaction Support
//
// Stage transitions that touch more than one table (e.g. inserting the
// round's statements and advancing current_round) run inside a single
// pgx.Tx:
//
//	tx, err := db.Pool().Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback(ctx) }()
//	// ... operations against tx ...
//	return tx.Commit(ctx)
//
// # Database Schema
//
// Key tables (see db.go's migrations):
//
//	participants     - registered agents
//	deliberations    - one row per deliberation, carries stage/current_round
//	opinions         - OPINION-stage submissions
//	statements       - Mediation Engine output per round
//	rankings         - RANKING-stage submissions
//	critiques        - CRITIQUE-stage submissions
//	human_feedback   - CONCLUDED-stage agreement ratings
//
// # Environment Configuration
//
//	DB_HOST             - PostgreSQL host (default: localhost)
//	DB_PORT             - PostgreSQL port (default: 5432)
//	DB_USER             - Database username
//	DB_PASSWORD         - Database password
//	DB_NAME             - Database name
//	DB_SSLMODE          - SSL mode (disable, require, verify-ca, verify-full)
//	DB_MAX_CONNECTIONS  - Pool size cap
//
// # Connection Pooling
//
// NewPostgresDB builds its pool through CreateOptimizedPoolConfig
// (pool_config.go); PostgresDB.Metrics() reports the pool's idle/total
// connection counts for the /health handler.
package database
