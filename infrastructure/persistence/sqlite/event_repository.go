package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a SQLite event repository
func NewEventRepository(db *sql.DB) trace.Repository {
	return &eventRepository{db: db}
}

// SaveEvents inserts a batch in one transaction
func (r *eventRepository) SaveEvents(ctx context.Context, events []*trace.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewSQLiteErrorf(err, "begin: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trace_events
		(id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return NewSQLiteErrorf(err, "prepare: %v", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return NewSQLiteErrorf(err, "encode payload of %s: %v", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), e.Source, e.Target, e.CorrelationID,
			e.ParentID, string(payload), e.ProcessingTimeMs, e.Timestamp.UnixNano()); err != nil {
			return NewSQLiteErrorf(err, "insert event %s: %v", e.ID, err)
		}
	}
	return tx.Commit()
}

func (r *eventRepository) FindByCorrelation(ctx context.Context, correlationID string) ([]*trace.Event, error) {
	return r.query(ctx, `SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
		FROM trace_events WHERE correlation_id = ? ORDER BY seq ASC`, correlationID)
}

func (r *eventRepository) FindRecent(ctx context.Context, limit int) ([]*trace.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx, `SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
		FROM (SELECT * FROM trace_events ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`, limit)
}

func (r *eventRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trace_events`); err != nil {
		return NewSQLiteErrorf(err, "delete events: %v", err)
	}
	return nil
}

func (r *eventRepository) query(ctx context.Context, query string, args ...any) ([]*trace.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewSQLiteErrorf(err, "query events: %v", err)
	}
	defer rows.Close()

	var events []*trace.Event
	for rows.Next() {
		var (
			e          trace.Event
			kind       string
			payload    string
			durationMs sql.NullInt64
			nanos      int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Source, &e.Target, &e.CorrelationID, &e.ParentID, &payload, &durationMs, &nanos); err != nil {
			return nil, NewSQLiteErrorf(err, "scan event: %v", err)
		}
		e.Kind = trace.Kind(kind)
		e.Timestamp = time.Unix(0, nanos).UTC()
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, NewSQLiteErrorf(err, "decode payload: %v", err)
		}
		if durationMs.Valid {
			ms := durationMs.Int64
			e.ProcessingTimeMs = &ms
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
