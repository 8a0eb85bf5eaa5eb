package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "orchestrator.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func event(id, corr string, kind trace.Kind, at time.Time) *trace.Event {
	e := trace.NewEvent(kind, "orchestrator", corr, map[string]any{"step": "location", "score": 80.5})
	e.ID = id
	e.Timestamp = at
	return e
}

func TestEventRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(openTestDB(t))
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	root := event("evt_1", "WF-A", trace.KindRequestReceived, base)
	child := event("evt_2", "WF-A", trace.KindAgentInvoked, base.Add(time.Millisecond)).Under("evt_1").Took(15 * time.Millisecond)
	other := event("evt_3", "WF-B", trace.KindRequestReceived, base.Add(2*time.Millisecond))
	if err := repo.SaveEvents(ctx, []*trace.Event{root, child, other}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.FindByCorrelation(ctx, "WF-A")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got[1].ParentID != "evt_1" || !got[1].Timestamp.Equal(child.Timestamp) {
		t.Fatalf("unexpected events %+v", got)
	}
	if got[1].ProcessingTimeMs == nil || *got[1].ProcessingTimeMs != 15 {
		t.Errorf("processing time lost: %v", got[1].ProcessingTimeMs)
	}
	if got[0].Payload["score"] != 80.5 {
		t.Errorf("payload lost: %v", got[0].Payload)
	}

	recent, _ := repo.FindRecent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "evt_2" || recent[1].ID != "evt_3" {
		t.Errorf("expected last two oldest first, got %v", recent)
	}

	if err := repo.SaveEvents(ctx, []*trace.Event{root}); err == nil || !IsSQLiteError(err) {
		t.Errorf("duplicate id should fail with a SQLite error, got %v", err)
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if recent, _ = repo.FindRecent(ctx, 0); len(recent) != 0 {
		t.Errorf("expected empty store, got %d", len(recent))
	}
}

func TestWorkflowRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkflowRepository(openTestDB(t))
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	s := workflow.Snapshot{ID: "WF-SITE-EVAL-00000001", Kind: "site-evaluation", Status: workflow.StatusInProgress, TotalSteps: 5, StartTime: start}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	end := start.Add(1500 * time.Millisecond)
	s.Status, s.StepsCompleted, s.EndTime = workflow.StatusCompleted, 5, &end
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Save(ctx, workflow.Snapshot{ID: "WF-2", Kind: "permit-crisis", Status: workflow.StatusFailed, StartTime: start.Add(time.Minute)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != workflow.StatusCompleted || got.StepsCompleted != 5 || got.EndTime == nil || got.DurationMs != 1500 {
		t.Errorf("unexpected snapshot %+v", got)
	}

	if _, err := repo.FindByID(ctx, "WF-MISSING"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, _ := repo.List(ctx, "", 0)
	if len(all) != 2 || all[0].ID != "WF-2" {
		t.Errorf("expected newest first, got %+v", all)
	}
	completed, _ := repo.List(ctx, workflow.StatusCompleted, 10)
	if len(completed) != 1 {
		t.Errorf("status filter failed: %+v", completed)
	}
}
