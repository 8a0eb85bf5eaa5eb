package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// workflowRepository MySQL快照存储
type workflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository 基于已打开的连接池创建MySQL工作流仓储
func NewWorkflowRepository(db *sql.DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Save(ctx context.Context, s workflow.Snapshot) error {
	query := `INSERT INTO workflows (workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  status = VALUES(status), steps_completed = VALUES(steps_completed), total_steps = VALUES(total_steps),
			  end_time = VALUES(end_time), error_kind = VALUES(error_kind), last_error = VALUES(last_error)`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.Kind, string(s.Status), s.StepsCompleted, s.TotalSteps,
		s.StartTime, s.EndTime, s.ErrorKind, s.LastError)
	if err != nil {
		return NewMySQLErrorf(err, "save workflow %s: %v", s.ID, err)
	}
	return nil
}

func (r *workflowRepository) FindByID(ctx context.Context, id string) (workflow.Snapshot, error) {
	query := `SELECT workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error
			  FROM workflows WHERE workflow_id = ?`

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, NewMySQLErrorf(workflow.ErrNotFound, "workflow not found: %s", id)
	}
	if err != nil {
		return workflow.Snapshot{}, NewMySQLErrorf(err, "find workflow %s: %v", id, err)
	}
	return s, nil
}

func (r *workflowRepository) List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error
			  FROM workflows WHERE (? = '' OR status = ?) ORDER BY start_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, string(status), string(status), limit)
	if err != nil {
		return nil, NewMySQLErrorf(err, "list workflows: %v", err)
	}
	defer rows.Close()

	var out []workflow.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, NewMySQLErrorf(err, "scan workflow: %v", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (workflow.Snapshot, error) {
	var (
		s         workflow.Snapshot
		status    string
		endTime   sql.NullTime
		lastError sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Kind, &status, &s.StepsCompleted, &s.TotalSteps, &s.StartTime, &endTime, &s.ErrorKind, &lastError); err != nil {
		return workflow.Snapshot{}, err
	}
	s.Status = workflow.Status(status)
	if endTime.Valid {
		end := endTime.Time
		s.EndTime = &end
	}
	s.LastError = lastError.String
	return workflow.Restore(s).Snapshot(), nil
}
