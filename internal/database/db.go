package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"signal-engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host" yaml:"host" default:"localhost"`
	Port     int    `json:"port" yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `json:"user" yaml:"user" default:"signal"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database" default:"signal_engine"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode" default:"disable"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns" default:"10" validate:"min=1"`
}

// DSN builds the connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = cfg.MaxConns
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("database")
	log.Info("Connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// migrations are applied in order; every statement is idempotent
var migrations = []string{
	// Outcome journal: append-only, one row per proposal
	`CREATE TABLE IF NOT EXISTS outcome_journal (
		seq BIGSERIAL PRIMARY KEY,
		proposal_id VARCHAR(64) NOT NULL UNIQUE,
		symbol VARCHAR(32) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		result VARCHAR(16) NOT NULL,
		pnl_pips DOUBLE PRECISION NOT NULL DEFAULT 0,
		closed_at TIMESTAMPTZ NOT NULL,
		votes JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcome_journal_symbol ON outcome_journal(symbol)`,

	// Weight snapshots: the latest row is the current vector
	`CREATE TABLE IF NOT EXISTS weight_snapshots (
		id BIGSERIAL PRIMARY KEY,
		outcomes INT NOT NULL,
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Proposals kept for outcome matching
	`CREATE TABLE IF NOT EXISTS proposals (
		id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(32) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		votes JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_symbol ON proposals(symbol, created_at DESC)`,

	// Signal events mirrored from the event bus
	`CREATE TABLE IF NOT EXISTS signal_events (
		id BIGSERIAL PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		symbol VARCHAR(32),
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_events_type ON signal_events(event_type, created_at DESC)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations", "count", len(migrations))

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
