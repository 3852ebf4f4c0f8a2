package database

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfigOptions provides configurable pool settings
type PoolConfigOptions struct {
	// Maximum number of connections in the pool
	MaxConns int32
	// Minimum number of connections to maintain
	MinConns int32
	// Maximum lifetime of a connection
	MaxConnLifetime time.Duration
	// Maximum idle time for a connection
	MaxConnIdleTime time.Duration
	// Health check period
	HealthCheckPeriod time.Duration
	// Connection timeout
	ConnectTimeout time.Duration
	// Enable prepared statement caching
	EnableStatementCache bool
	// Statement cache capacity
	StatementCacheCapacity int
	// Use simple protocol (faster for simple queries)
	PreferSimpleProtocol bool
	// Application name for connection identification
	ApplicationName string
}

// DefaultPoolOptions returns optimized default pool options
func DefaultPoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	// Rule of thumb: (2 * CPU cores) + effective spindle count (1 for SSD)
	maxConns := cpuCount*2 + 1
	if maxConns < 10 {
		maxConns = 10
	}
	if maxConns > 50 {
		maxConns = 50
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               cpuCount / 2,
		MaxConnLifetime:        time.Hour,
		MaxConnIdleTime:        30 * time.Minute,
		HealthCheckPeriod:      30 * time.Second,
		ConnectTimeout:         5 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 512,
		PreferSimpleProtocol:   true,
		ApplicationName:        "dsm-engine",
	}
}

// HighPerformancePoolOptions returns options optimized for high throughput
func HighPerformancePoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	maxConns := cpuCount * 4
	if maxConns < 20 {
		maxConns = 20
	}
	if maxConns > 100 {
		maxConns = 100
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               maxConns / 2,
		MaxConnLifetime:        30 * time.Minute,
		MaxConnIdleTime:        10 * time.Minute,
		HealthCheckPeriod:      15 * time.Second,
		ConnectTimeout:         3 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 1024,
		PreferSimpleProtocol:   true,
		ApplicationName:        "dsm-engine-high-perf",
	}
}

// LowLatencyPoolOptions returns options optimized for low latency
func LowLatencyPoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32

	return &PoolConfigOptions{
		MaxConns:               cpuCount * 2,
		MinConns:               cpuCount,
		MaxConnLifetime:        15 * time.Minute,
		MaxConnIdleTime:        5 * time.Minute,
		HealthCheckPeriod:      10 * time.Second,
		ConnectTimeout:         1 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 256,
		PreferSimpleProtocol:   true,
		ApplicationName:        "dsm-engine-low-latency",
	}
}

// CreateOptimizedPoolConfig creates a pgxpool.Config with optimized settings
func CreateOptimizedPoolConfig(connString string, opts *PoolConfigOptions) (*pgxpool.Config, error) {
	if opts == nil {
		opts = DefaultPoolOptions()
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Pool size settings
	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.MaxConnIdleTime = opts.MaxConnIdleTime
	config.HealthCheckPeriod = opts.HealthCheckPeriod

	// Connection settings
	config.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	// Runtime parameters
	config.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName

	// Statement cache configuration
	if opts.EnableStatementCache {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	}

	// Simple protocol for faster simple queries
	if opts.PreferSimpleProtocol {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	// Configure after connect hook for additional setup
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Set session-level optimizations
		_, err := conn.Exec(ctx, "SET synchronous_commit = off")
		if err != nil {
			return fmt.Errorf("set synchronous_commit: %w", err)
		}
		return nil
	}

	return config, nil
}

// OptimizedPool wraps pgxpool.Pool with the subset of features the
// deliberation repositories and /health handler actually exercise.
type OptimizedPool struct {
	pool *pgxpool.Pool
}

// PoolMetrics reports pgxpool's own connection counters, surfaced by
// PostgresDB.Metrics() for the /health handler.
type PoolMetrics struct {
	IdleConns  int64
	TotalConns int64
}

// NewOptimizedPool creates an optimized connection pool
func NewOptimizedPool(ctx context.Context, connString string, opts *PoolConfigOptions) (*OptimizedPool, error) {
	config, err := CreateOptimizedPoolConfig(connString, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &OptimizedPool{pool: pool}, nil
}

// Exec executes a query that doesn't return rows
func (p *OptimizedPool) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Metrics returns pool metrics
func (p *OptimizedPool) Metrics() *PoolMetrics {
	stat := p.pool.Stat()
	return &PoolMetrics{
		IdleConns:  int64(stat.IdleConns()),
		TotalConns: int64(stat.TotalConns()),
	}
}

// HealthCheck performs a health check on the pool
func (p *OptimizedPool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.pool.Ping(ctx)
}

// Close closes the pool
func (p *OptimizedPool) Close() {
	p.pool.Close()
}

// Pool returns the underlying pgxpool.Pool
func (p *OptimizedPool) Pool() *pgxpool.Pool {
	return p.pool
}

