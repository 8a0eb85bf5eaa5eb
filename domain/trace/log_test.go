package trace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEmitIndexesByCorrelation(t *testing.T) {
	l := NewLog()

	root := NewEvent(KindRequestReceived, "gateway", "WF-1", nil)
	rootID, err := l.Emit(root)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	if _, err := l.Emit(NewEvent(KindAgentInvoked, "orchestrator", "WF-1", nil).Under(rootID)); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	if _, err := l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-2", nil)); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	events := l.ByCorrelation("WF-1")
	if len(events) != 2 {
		t.Fatalf("expected 2 events for WF-1, got %d", len(events))
	}
	if events[0].Kind != KindRequestReceived || events[1].Kind != KindAgentInvoked {
		t.Errorf("unexpected order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].ParentID != rootID {
		t.Errorf("expected parent %s, got %s", rootID, events[1].ParentID)
	}
	if got := l.ByCorrelation("missing"); len(got) != 0 {
		t.Errorf("expected empty slice for unknown correlation, got %d", len(got))
	}
}

func TestEmitRejectsUnknownKind(t *testing.T) {
	l := NewLog()
	if _, err := l.Emit(NewEvent(Kind("made-up"), "x", "WF-1", nil)); !IsTraceError(err) {
		t.Fatalf("expected trace error, got %v", err)
	}
	if _, err := l.Emit(nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestTimestampsFollowEmissionOrder(t *testing.T) {
	// 时钟倒退时时间戳也不能乱序
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(-time.Duration(calls) * time.Second)
	}
	l := NewLog(WithClock(clock))

	for i := 0; i < 5; i++ {
		l.Emit(NewEvent(KindExternalQuery, "agent", "WF-1", nil))
	}

	events := l.ByCorrelation("WF-1")
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("timestamp %d went backwards", i)
		}
	}
}

func TestConcurrentEmitKeepsPerCorrelationOrder(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("WF-%d", w)
			for i := 0; i < 50; i++ {
				l.Emit(NewEvent(KindExternalQuery, "agent", id, map[string]any{"seq": i}))
			}
		}(w)
	}
	wg.Wait()

	if got := l.Metrics().TotalEvents; got != 400 {
		t.Fatalf("expected 400 events, got %d", got)
	}
	for w := 0; w < 8; w++ {
		events := l.ByCorrelation(fmt.Sprintf("WF-%d", w))
		for i, e := range events {
			if e.Payload["seq"] != i {
				t.Fatalf("correlation WF-%d out of order at %d", w, i)
			}
		}
	}
}

func TestListenersRunInOrderAndFailuresAreContained(t *testing.T) {
	l := NewLog()

	var order []string
	l.AddListener(func(e *Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	l.AddListener(func(e *Event) error {
		order = append(order, "second")
		panic("listener panic")
	})
	l.AddListener(func(e *Event) error {
		order = append(order, "third")
		return nil
	})

	if _, err := l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil)); err != nil {
		t.Fatalf("emit should not fail because of listeners: %v", err)
	}

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("unexpected listener order: %v", order)
	}
	if len(l.ByCorrelation("WF-1")) != 1 {
		t.Error("event must be recorded even when listeners fail")
	}
}

func TestListenerMayQueryLog(t *testing.T) {
	l := NewLog()
	seen := 0
	l.AddListener(func(e *Event) error {
		seen = len(l.ByCorrelation(e.CorrelationID))
		return nil
	})
	l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil))
	if seen != 1 {
		t.Errorf("listener should observe the recorded event, saw %d", seen)
	}
}

func TestRemoveListener(t *testing.T) {
	l := NewLog()
	calls := 0
	id := l.AddListener(func(e *Event) error {
		calls++
		return nil
	})
	l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil))
	if !l.RemoveListener(id) {
		t.Fatal("expected listener to be removed")
	}
	l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil))
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if l.RemoveListener(id) {
		t.Error("second removal should report false")
	}
}

func TestRecentAndClear(t *testing.T) {
	l := NewLog()
	for i := 0; i < 60; i++ {
		l.Emit(NewEvent(KindExternalQuery, "agent", "WF-1", map[string]any{"i": i}))
	}

	recent := l.Recent(0)
	if len(recent) != DefaultRecentLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultRecentLimit, len(recent))
	}
	if recent[len(recent)-1].Payload["i"] != 59 {
		t.Errorf("last recent event should be the newest")
	}
	if got := l.Recent(5); len(got) != 5 || got[0].Payload["i"] != 55 {
		t.Errorf("unexpected recent(5) window")
	}

	l.Clear()
	if len(l.Recent(10)) != 0 || len(l.ByCorrelation("WF-1")) != 0 {
		t.Error("clear should empty history and index")
	}
}

func TestMetrics(t *testing.T) {
	l := NewLog()
	l.Emit(NewEvent(KindExternalQuery, "geo", "WF-1", nil).To("VAHAN_API"))
	l.Emit(NewEvent(KindExternalResponse, "VAHAN_API", "WF-1", nil).To("geo").Took(40 * time.Millisecond))
	l.Emit(NewEvent(KindExternalResponse, "VAHAN_API", "WF-2", nil).To("geo").Took(60 * time.Millisecond))

	m := l.Metrics()
	if m.TotalEvents != 3 || m.ActiveCorrelations != 2 || m.EventKinds != 2 || m.SystemsInvolved != 2 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if m.AvgProcessingTimeMsBySystem["VAHAN_API"] != 50 {
		t.Errorf("expected 50ms average, got %v", m.AvgProcessingTimeMsBySystem["VAHAN_API"])
	}
}

func TestDescribeRendersForest(t *testing.T) {
	l := NewLog()
	rootID, _ := l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil))
	agentID, _ := l.Emit(NewEvent(KindAgentInvoked, "orchestrator", "WF-1", nil).To("geo").Under(rootID))
	l.Emit(NewEvent(KindExternalQuery, "geo", "WF-1", nil).To("VAHAN_API").Under(agentID))

	lines := Describe(l.ByCorrelation("WF-1"))
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %v", lines)
	}
	if lines[2] != "    external-query geo -> VAHAN_API" {
		t.Errorf("unexpected nested line: %q", lines[2])
	}
}

type stubRepository struct {
	mu     sync.Mutex
	saved  []*Event
	failed bool
}

func (s *stubRepository) SaveEvents(ctx context.Context, events []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errors.New("unavailable")
	}
	s.saved = append(s.saved, events...)
	return nil
}

func (s *stubRepository) FindByCorrelation(ctx context.Context, correlationID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.saved {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRepository) FindRecent(ctx context.Context, limit int) ([]*Event, error) {
	return nil, nil
}

func (s *stubRepository) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = nil
	return nil
}

func TestRecorderPersistsEmittedEvents(t *testing.T) {
	repo := &stubRepository{}
	recorder := NewRecorder(repo, 2, time.Hour)
	defer recorder.Close()

	l := NewLog(WithRecorder(recorder))
	l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil))
	l.Emit(NewEvent(KindResponseDelivered, "orchestrator", "WF-1", nil))
	l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-2", nil))

	events, err := recorder.Load(context.Background(), "WF-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 persisted events, got %d", len(events))
	}

	l.Clear()
	if got, _ := repo.FindByCorrelation(context.Background(), "WF-2"); len(got) != 0 {
		t.Error("clear should remove persisted events")
	}
}

func TestRecorderFailureDoesNotBlockEmit(t *testing.T) {
	repo := &stubRepository{failed: true}
	recorder := NewRecorder(repo, 1, time.Hour)
	defer recorder.Close()

	l := NewLog(WithRecorder(recorder))
	if _, err := l.Emit(NewEvent(KindRequestReceived, "gateway", "WF-1", nil)); err != nil {
		t.Fatalf("emit must not surface repository errors: %v", err)
	}
	if len(l.ByCorrelation("WF-1")) != 1 {
		t.Error("event should still be in memory")
	}
}
