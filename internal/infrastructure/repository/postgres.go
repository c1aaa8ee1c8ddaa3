package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/infrastructure/config"
)

// NewPool connects a pgx pool using the database configuration and
// verifies connectivity before returning.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if logger != nil {
		logger.Info("database pool initialized",
			zap.Int32("max_conns", poolCfg.MaxConns))
	}
	return pool, nil
}

// EnsureSchema creates the tables the pipeline needs when they do not
// exist yet. Production deployments run real migrations instead; this
// keeps development and tests self-contained.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	outcome TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	subject_record_id TEXT NOT NULL DEFAULT '',
	resource TEXT NOT NULL DEFAULT '',
	tenant_id TEXT NOT NULL,
	risk_score INT NOT NULL,
	details JSONB NOT NULL DEFAULT '{}',
	correlation_id TEXT NOT NULL DEFAULT '',
	data_sensitivity TEXT NOT NULL DEFAULT '',
	compliance_frameworks TEXT[] NOT NULL DEFAULT '{}',
	retain_until TIMESTAMPTZ NOT NULL,
	auto_delete BOOLEAN NOT NULL,
	tags TEXT[] NOT NULL DEFAULT '{}',
	requires_investigation BOOLEAN NOT NULL,
	investigation_status TEXT NOT NULL DEFAULT '',
	investigation_notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_retention ON audit_events (retain_until) WHERE auto_delete;

CREATE TABLE IF NOT EXISTS investigations (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	requested_by TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	reason TEXT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_to TEXT NOT NULL DEFAULT '',
	findings TEXT NOT NULL DEFAULT '',
	resolution TEXT NOT NULL DEFAULT '',
	actions TEXT[] NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations (status, priority);

CREATE TABLE IF NOT EXISTS pseudonym_mappings (
	id UUID PRIMARY KEY,
	pseudonym TEXT NOT NULL,
	identifier TEXT NOT NULL,
	salt TEXT NOT NULL,
	purpose TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	reversible BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (pseudonym, purpose)
);
`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
