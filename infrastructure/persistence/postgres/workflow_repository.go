package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// WorkflowStore implements workflow.Repository with PostgreSQL.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

// NewWorkflowStore creates a PostgreSQL workflow store.
func NewWorkflowStore(pool *pgxpool.Pool) *WorkflowStore {
	return &WorkflowStore{pool: pool}
}

// Save upserts a snapshot.
func (s *WorkflowStore) Save(ctx context.Context, snap workflow.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflows (workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			steps_completed = EXCLUDED.steps_completed,
			total_steps = EXCLUDED.total_steps,
			end_time = EXCLUDED.end_time,
			error_kind = EXCLUDED.error_kind,
			last_error = EXCLUDED.last_error
	`, snap.ID, snap.Kind, string(snap.Status), snap.StepsCompleted, snap.TotalSteps, snap.StartTime, snap.EndTime, snap.ErrorKind, snap.LastError)
	if err != nil {
		return NewPostgresErrorf(err, "save workflow %s: %v", snap.ID, err)
	}
	return nil
}

// FindByID loads a snapshot.
func (s *WorkflowStore) FindByID(ctx context.Context, id string) (workflow.Snapshot, error) {
	rows, err := s.pool.Query(ctx, selectWorkflows+` WHERE workflow_id = $1`, id)
	if err != nil {
		return workflow.Snapshot{}, NewPostgresErrorf(err, "find workflow %s: %v", id, err)
	}
	snap, err := pgx.CollectExactlyOneRow(rows, scanSnapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.Snapshot{}, NewPostgresErrorf(workflow.ErrNotFound, "workflow not found: %s", id)
	}
	if err != nil {
		return workflow.Snapshot{}, NewPostgresErrorf(err, "scan workflow %s: %v", id, err)
	}
	return snap, nil
}

// List returns snapshots with the status (all when empty), newest first.
func (s *WorkflowStore) List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error) {
	var bound *int
	if limit > 0 {
		bound = &limit
	}
	rows, err := s.pool.Query(ctx, selectWorkflows+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY start_time DESC
		LIMIT $2
	`, string(status), bound)
	if err != nil {
		return nil, NewPostgresErrorf(err, "list workflows: %v", err)
	}
	snaps, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, NewPostgresErrorf(err, "scan workflows: %v", err)
	}
	return snaps, nil
}

const selectWorkflows = `
	SELECT workflow_id, kind, status, steps_completed, total_steps, start_time, end_time, error_kind, last_error
	FROM workflows`

func scanSnapshot(row pgx.CollectableRow) (workflow.Snapshot, error) {
	var (
		snap   workflow.Snapshot
		status string
	)
	if err := row.Scan(&snap.ID, &snap.Kind, &status, &snap.StepsCompleted, &snap.TotalSteps, &snap.StartTime, &snap.EndTime, &snap.ErrorKind, &snap.LastError); err != nil {
		return workflow.Snapshot{}, err
	}
	snap.Status = workflow.Status(status)
	snap.StartTime = snap.StartTime.UTC()
	if snap.EndTime != nil {
		end := snap.EndTime.UTC()
		snap.EndTime = &end
	}
	return workflow.Restore(snap).Snapshot(), nil
}
