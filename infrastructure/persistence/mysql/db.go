package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open 连接MySQL并创建表。强制开启 parseTime，
// TIMESTAMP 列才能扫描为 time.Time
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, NewMySQLErrorf(err, "parse dsn: %v", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, NewMySQLErrorf(err, "open: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewMySQLErrorf(err, "ping: %v", err)
	}
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trace_events (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(64) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			source VARCHAR(128) NOT NULL,
			target VARCHAR(128) NOT NULL DEFAULT '',
			correlation_id VARCHAR(64) NOT NULL,
			parent_id VARCHAR(64) NOT NULL DEFAULT '',
			payload JSON,
			processing_time_ms BIGINT NULL,
			timestamp TIMESTAMP(6) NOT NULL,
			UNIQUE KEY uk_event_id (id),
			INDEX idx_correlation_id (correlation_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS workflows (
			workflow_id VARCHAR(64) PRIMARY KEY,
			kind VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			steps_completed INT NOT NULL DEFAULT 0,
			total_steps INT NOT NULL DEFAULT 0,
			start_time TIMESTAMP(6) NOT NULL,
			end_time TIMESTAMP(6) NULL,
			error_kind VARCHAR(64) NOT NULL DEFAULT '',
			last_error TEXT,
			INDEX idx_status (status),
			INDEX idx_start_time (start_time)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS workflow_logs (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(64) NOT NULL,
			correlation_id VARCHAR(64) NOT NULL,
			step VARCHAR(64) NOT NULL DEFAULT '',
			level VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			attributes JSON,
			timestamp TIMESTAMP(6) NOT NULL,
			INDEX idx_correlation_id (correlation_id),
			INDEX idx_step (correlation_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return NewMySQLErrorf(err, "init tables: %v", err)
		}
	}
	return nil
}
