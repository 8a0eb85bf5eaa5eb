package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// workflowRepository 内存快照存储
type workflowRepository struct {
	snapshots map[string]workflow.Snapshot
	mutex     sync.RWMutex
}

// NewWorkflowRepository 创建内存工作流仓储
func NewWorkflowRepository() workflow.Repository {
	return &workflowRepository{
		snapshots: make(map[string]workflow.Snapshot),
	}
}

func (r *workflowRepository) Save(ctx context.Context, snapshot workflow.Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.snapshots[snapshot.ID] = snapshot
	return nil
}

func (r *workflowRepository) FindByID(ctx context.Context, id string) (workflow.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot, exists := r.snapshots[id]
	if !exists {
		return workflow.Snapshot{}, NewRepositoryErrorf(workflow.ErrNotFound, "workflow not found: %s", id)
	}
	return snapshot, nil
}

func (r *workflowRepository) List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]workflow.Snapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
