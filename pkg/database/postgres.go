package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-risk/pkg/config"
)

// DB wraps the pgxpool.Pool
// SSOT: database connections are created only in this package
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies it with a ping
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// schema holds the tables used by the risk stores. Payloads are opaque JSONB
// documents keyed by id; only the columns used for filtering are broken out.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS risk`,
	`CREATE TABLE IF NOT EXISTS risk.scenarios (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		probability NUMERIC NOT NULL DEFAULT 0,
		valid_until TIMESTAMPTZ,
		payload     JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS risk.stress_results (
		id           TEXT PRIMARY KEY,
		scenario_id  TEXT NOT NULL,
		portfolio_id BIGINT NOT NULL,
		executed_at  TIMESTAMPTZ NOT NULL,
		payload      JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS risk.simulations (
		id          TEXT PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL,
		payload     JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS risk.alerts (
		id           TEXT PRIMARY KEY,
		portfolio_id BIGINT NOT NULL,
		risk_type    TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		payload      JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS risk.positions (
		portfolio_id   BIGINT NOT NULL,
		instrument_key TEXT NOT NULL,
		quantity       NUMERIC NOT NULL,
		average_price  NUMERIC NOT NULL,
		PRIMARY KEY (portfolio_id, instrument_key)
	)`,
	`CREATE TABLE IF NOT EXISTS risk.prices (
		instrument_key TEXT NOT NULL,
		price_date     DATE NOT NULL,
		close_price    NUMERIC NOT NULL,
		PRIMARY KEY (instrument_key, price_date)
	)`,
}

// EnsureSchema creates the risk tables if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// HealthCheck returns detailed health information about the database
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Healthy:   false,
		Timestamp: time.Now(),
	}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)
	status.Stats = db.Stats()
	status.Healthy = true

	return status, nil
}

// HealthStatus represents the health status of the database
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	AcquireCount  int64 `json:"acquire_count"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	stats := db.Pool.Stat()
	return PoolStats{
		AcquireCount:  stats.AcquireCount(),
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		MaxConns:      stats.MaxConns(),
		TotalConns:    stats.TotalConns(),
	}
}
