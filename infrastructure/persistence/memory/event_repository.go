package memory

import (
	"context"
	"sync"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// eventRepository 内存事件存储，只追加
type eventRepository struct {
	events []*trace.Event
	mutex  sync.RWMutex
}

// NewEventRepository 创建内存事件仓储
func NewEventRepository() trace.Repository {
	return &eventRepository{}
}

func (r *eventRepository) SaveEvents(ctx context.Context, events []*trace.Event) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, events...)
	return nil
}

func (r *eventRepository) FindByCorrelation(ctx context.Context, correlationID string) ([]*trace.Event, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []*trace.Event
	for _, e := range r.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *eventRepository) FindRecent(ctx context.Context, limit int) ([]*trace.Event, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	start := 0
	if limit > 0 && len(r.events) > limit {
		start = len(r.events) - limit
	}
	out := make([]*trace.Event, len(r.events)-start)
	copy(out, r.events[start:])
	return out, nil
}

func (r *eventRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = nil
	return nil
}
