package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// EventStore implements trace.Repository with PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a PostgreSQL event store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// SaveEvents inserts a batch atomically.
func (s *EventStore) SaveEvents(ctx context.Context, events []*trace.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewPostgresErrorf(err, "begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return NewPostgresErrorf(err, "encode payload of %s: %v", e.ID, err)
		}
		batch.Queue(`
			INSERT INTO trace_events (id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.ID, string(e.Kind), e.Source, e.Target, e.CorrelationID, e.ParentID, payload, e.ProcessingTimeMs, e.Timestamp)
	}

	results := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return NewPostgresErrorf(err, "insert event: %v", err)
		}
	}
	if err := results.Close(); err != nil {
		return NewPostgresErrorf(err, "close batch: %v", err)
	}
	return tx.Commit(ctx)
}

// FindByCorrelation loads one workflow's events in emission order.
func (s *EventStore) FindByCorrelation(ctx context.Context, correlationID string) ([]*trace.Event, error) {
	return s.query(ctx, `
		SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
		FROM trace_events
		WHERE correlation_id = $1
		ORDER BY seq ASC
	`, correlationID)
}

// FindRecent loads the last limit events, oldest first.
func (s *EventStore) FindRecent(ctx context.Context, limit int) ([]*trace.Event, error) {
	var bound *int
	if limit > 0 {
		bound = &limit
	}
	return s.query(ctx, `
		SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
		FROM (SELECT * FROM trace_events ORDER BY seq DESC LIMIT $1) recent
		ORDER BY seq ASC
	`, bound)
}

// DeleteAll removes every event.
func (s *EventStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE trace_events`); err != nil {
		return NewPostgresErrorf(err, "truncate events: %v", err)
	}
	return nil
}

func (s *EventStore) query(ctx context.Context, sql string, args ...any) ([]*trace.Event, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, NewPostgresErrorf(err, "query events: %v", err)
	}
	defer rows.Close()

	var events []*trace.Event
	for rows.Next() {
		var (
			e         trace.Event
			kind      string
			payload   []byte
			timestamp time.Time
		)
		if err := rows.Scan(&e.ID, &kind, &e.Source, &e.Target, &e.CorrelationID, &e.ParentID, &payload, &e.ProcessingTimeMs, &timestamp); err != nil {
			return nil, NewPostgresErrorf(err, "scan event: %v", err)
		}
		e.Kind = trace.Kind(kind)
		e.Timestamp = timestamp.UTC()
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, NewPostgresErrorf(err, "decode payload: %v", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, NewPostgresErrorf(err, "iterate events: %v", err)
	}
	return events, nil
}
