package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database at path in WAL mode and runs the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewSQLiteErrorf(err, "open db: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewSQLiteErrorf(err, "ping db: %v", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrate creates the tables if they do not exist. Times are unix nanoseconds.
func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS trace_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    source TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    correlation_id TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    processing_time_ms INTEGER,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trace_events_correlation ON trace_events (correlation_id, seq);

CREATE TABLE IF NOT EXISTS workflows (
    workflow_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    steps_completed INTEGER NOT NULL DEFAULT 0,
    total_steps INTEGER NOT NULL DEFAULT 0,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    error_kind TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows (status, start_time);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return NewSQLiteErrorf(err, "migrate: %v", err)
	}
	return nil
}
