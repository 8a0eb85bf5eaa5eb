package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(opts ...RegistryOption) (Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]RegistryOption{WithRegistryClock(clock.Now)}, opts...)
	return NewRegistry(opts...), clock
}

func TestStepsAreMonotonicAndClamped(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("WF-SITE-EVAL-00000001", "site-evaluation", 5); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	last := 0
	for i := 0; i < 4; i++ {
		if err := r.Advance("WF-SITE-EVAL-00000001", 1); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
		s, _ := r.Status("WF-SITE-EVAL-00000001")
		if s.StepsCompleted < last {
			t.Fatalf("steps went backwards: %d -> %d", last, s.StepsCompleted)
		}
		last = s.StepsCompleted
	}

	err := r.Advance("WF-SITE-EVAL-00000001", 3)
	if !errors.Is(err, ErrStepOverflow) {
		t.Fatalf("expected ErrStepOverflow, got %v", err)
	}
	s, _ := r.Status("WF-SITE-EVAL-00000001")
	if s.StepsCompleted != 5 || s.Progress != 100 {
		t.Errorf("expected clamp at 5 (100%%), got %d (%.1f%%)", s.StepsCompleted, s.Progress)
	}
}

func TestTerminalTransitionsAreGuarded(t *testing.T) {
	r, clock := newTestRegistry()
	r.Register("WF-1", "site-evaluation", 2)
	clock.advance(150 * time.Millisecond)

	if err := r.Complete("WF-1"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	before, _ := r.Status("WF-1")

	if err := r.Fail("WF-1", "AgentFailure", "late"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on fail, got %v", err)
	}
	if err := r.Advance("WF-1", 1); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on advance, got %v", err)
	}

	after, _ := r.Status("WF-1")
	if after.Status != StatusCompleted || after.LastError != "" || after.StepsCompleted != before.StepsCompleted {
		t.Errorf("illegal transition changed state: %+v", after)
	}
	if after.DurationMs != 150 {
		t.Errorf("expected 150ms duration, got %d", after.DurationMs)
	}
}

func TestStatusIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register("WF-1", "site-evaluation", 5)
	r.Advance("WF-1", 2)

	first, err := r.Status("WF-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	second, _ := r.Status("WF-1")
	if first != second {
		t.Errorf("status changed between reads: %+v vs %+v", first, second)
	}

	if _, err := r.Status("WF-unknown"); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register("WF-1", "site-evaluation", 1)
	if _, err := r.Register("WF-1", "site-evaluation", 1); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := r.Register("", "site-evaluation", 1); !IsWorkflowError(err) {
		t.Errorf("expected workflow error for empty id, got %v", err)
	}
}

func TestStatisticsAndList(t *testing.T) {
	r, clock := newTestRegistry()
	r.Register("WF-1", "site-evaluation", 1)
	clock.advance(100 * time.Millisecond)
	r.Register("WF-2", "site-evaluation", 1)
	clock.advance(200 * time.Millisecond)
	r.Register("WF-3", "network-optimization", 1)

	r.Complete("WF-1")
	r.Fail("WF-2", "AgentTimeout", "location timed out")

	stats := r.Statistics()
	if stats.RequestsProcessed != 2 || stats.Completed != 1 || stats.Failed != 1 || stats.ActiveWorkflows != 1 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
	if stats.AverageLatencyMs != 250 {
		t.Errorf("expected 250ms average, got %v", stats.AverageLatencyMs)
	}

	all := r.List("")
	if len(all) != 3 || all[0].ID != "WF-3" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	failed := r.List(StatusFailed)
	if len(failed) != 1 || failed[0].ErrorKind != "AgentTimeout" {
		t.Errorf("unexpected failed list: %+v", failed)
	}
}

type memRepository struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

func (m *memRepository) Save(ctx context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.ID] = s
	return nil
}

func (m *memRepository) FindByID(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[id]
	if !ok {
		return Snapshot{}, NewWorkflowErrorf(ErrNotFound, "workflow %s not found", id)
	}
	return s, nil
}

func (m *memRepository) List(ctx context.Context, status Status, limit int) ([]Snapshot, error) {
	return nil, nil
}

func TestCleanupFallsBackToRepository(t *testing.T) {
	repo := &memRepository{snapshots: make(map[string]Snapshot)}
	r, clock := newTestRegistry(WithRepository(repo))

	r.Register("WF-old", "site-evaluation", 1)
	r.Advance("WF-old", 1)
	r.Complete("WF-old")
	r.Register("WF-running", "site-evaluation", 1)

	clock.advance(2 * time.Hour)
	if removed := r.Cleanup(time.Hour); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if len(r.List("")) != 1 {
		t.Error("running workflow must survive cleanup")
	}

	s, err := r.Status("WF-old")
	if err != nil {
		t.Fatalf("expected repository fallback, got %v", err)
	}
	if s.Status != StatusCompleted || s.StepsCompleted != 1 {
		t.Errorf("unexpected restored snapshot: %+v", s)
	}
}
