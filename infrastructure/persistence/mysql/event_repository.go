package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// eventRepository MySQL事件存储
type eventRepository struct {
	db *sql.DB
}

// NewEventRepository 基于已打开的连接池创建MySQL事件仓储
func NewEventRepository(db *sql.DB) trace.Repository {
	return &eventRepository{db: db}
}

// SaveEvents 按发出顺序批量插入
func (r *eventRepository) SaveEvents(ctx context.Context, events []*trace.Event) error {
	if len(events) == 0 {
		return nil
	}

	var query strings.Builder
	query.WriteString(`INSERT INTO trace_events (id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp) VALUES `)
	values := make([]interface{}, 0, len(events)*9)
	for i, e := range events {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")

		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return NewMySQLErrorf(err, "encode payload of %s: %v", e.ID, err)
		}
		values = append(values, e.ID, string(e.Kind), e.Source, e.Target, e.CorrelationID,
			e.ParentID, string(payload), e.ProcessingTimeMs, e.Timestamp)
	}

	if _, err := r.db.ExecContext(ctx, query.String(), values...); err != nil {
		return NewMySQLErrorf(err, "save events: %v", err)
	}
	return nil
}

func (r *eventRepository) FindByCorrelation(ctx context.Context, correlationID string) ([]*trace.Event, error) {
	query := `SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
			  FROM trace_events WHERE correlation_id = ? ORDER BY seq ASC`
	return r.query(ctx, query, correlationID)
}

// FindRecent 最近的事件，按时间顺序
func (r *eventRepository) FindRecent(ctx context.Context, limit int) ([]*trace.Event, error) {
	query := `SELECT id, kind, source, target, correlation_id, parent_id, payload, processing_time_ms, timestamp
			  FROM (SELECT * FROM trace_events ORDER BY seq DESC LIMIT ?) recent ORDER BY seq ASC`
	return r.query(ctx, query, limit)
}

func (r *eventRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trace_events`); err != nil {
		return NewMySQLErrorf(err, "delete events: %v", err)
	}
	return nil
}

func (r *eventRepository) query(ctx context.Context, query string, args ...interface{}) ([]*trace.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewMySQLErrorf(err, "query events: %v", err)
	}
	defer rows.Close()

	var events []*trace.Event
	for rows.Next() {
		var (
			e          trace.Event
			kind       string
			payload    []byte
			durationMs sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Source, &e.Target, &e.CorrelationID, &e.ParentID, &payload, &durationMs, &e.Timestamp); err != nil {
			return nil, NewMySQLErrorf(err, "scan event: %v", err)
		}
		e.Kind = trace.Kind(kind)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, NewMySQLErrorf(err, "decode payload of %s: %v", e.ID, err)
		}
		if durationMs.Valid {
			ms := durationMs.Int64
			e.ProcessingTimeMs = &ms
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
