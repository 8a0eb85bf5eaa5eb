// Package postgres provides PostgreSQL event and workflow stores on pgxpool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema tables used by the stores
const Schema = `
CREATE TABLE IF NOT EXISTS trace_events (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL,
	processing_time_ms BIGINT,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trace_events_correlation ON trace_events (correlation_id, seq);

CREATE TABLE IF NOT EXISTS workflows (
	workflow_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	steps_completed INTEGER NOT NULL DEFAULT 0,
	total_steps INTEGER NOT NULL DEFAULT 0,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	error_kind TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows (status, start_time DESC);
`

// Open creates a pool and applies the schema
func Open(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, NewPostgresErrorf(err, "create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, NewPostgresErrorf(err, "ping: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies Schema
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return NewPostgresErrorf(err, "migrate: %v", err)
	}
	return nil
}
