package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

type workflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a SQLite workflow repository
func NewWorkflowRepository(db *sql.DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Save(ctx context.Context, s workflow.Snapshot) error {
	var endTime sql.NullInt64
	if s.EndTime != nil {
		endTime = sql.NullInt64{Int64: s.EndTime.UnixNano(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO workflows
		(workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
		status = excluded.status, steps_completed = excluded.steps_completed, total_steps = excluded.total_steps,
		end_time = excluded.end_time, error_kind = excluded.error_kind, last_error = excluded.last_error`,
		s.ID, s.Kind, string(s.Status), s.StepsCompleted, s.TotalSteps, s.StartTime.UnixNano(), endTime, s.ErrorKind, s.LastError)
	if err != nil {
		return NewSQLiteErrorf(err, "save workflow %s: %v", s.ID, err)
	}
	return nil
}

func (r *workflowRepository) FindByID(ctx context.Context, id string) (workflow.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error
		FROM workflows WHERE workflow_id = ?`, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, NewSQLiteErrorf(workflow.ErrNotFound, "workflow not found: %s", id)
	}
	if err != nil {
		return workflow.Snapshot{}, NewSQLiteErrorf(err, "find workflow %s: %v", id, err)
	}
	return s, nil
}

func (r *workflowRepository) List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error
		FROM workflows WHERE (? = '' OR status = ?) ORDER BY start_time DESC LIMIT ?`, string(status), string(status), limit)
	if err != nil {
		return nil, NewSQLiteErrorf(err, "list workflows: %v", err)
	}
	defer rows.Close()

	var out []workflow.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, NewSQLiteErrorf(err, "scan workflow: %v", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (workflow.Snapshot, error) {
	var (
		s       workflow.Snapshot
		status  string
		start   int64
		endTime sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Kind, &status, &s.StepsCompleted, &s.TotalSteps, &start, &endTime, &s.ErrorKind, &s.LastError); err != nil {
		return workflow.Snapshot{}, err
	}
	s.Status = workflow.Status(status)
	s.StartTime = time.Unix(0, start).UTC()
	if endTime.Valid {
		end := time.Unix(0, endTime.Int64).UTC()
		s.EndTime = &end
	}
	return workflow.Restore(s).Snapshot(), nil
}
