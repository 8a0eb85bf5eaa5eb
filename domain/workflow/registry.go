package workflow

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Statistics 注册表计数
type Statistics struct {
	RequestsProcessed int64   `json:"requests_processed"`
	ActiveWorkflows   int     `json:"active_workflows"`
	Completed         int64   `json:"completed"`
	Failed            int64   `json:"failed"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

// Registry 按关联ID跟踪工作流生命周期
type Registry interface {
	// Register 创建进行中的工作流
	Register(id, kind string, totalSteps int) (Snapshot, error)

	// Advance 增加n个完成步骤
	Advance(id string, n int) error

	// Complete 标记完成
	Complete(id string) error

	// Fail 标记失败
	Fail(id, errorKind, message string) error

	// Status 获取当前状态副本
	Status(id string) (Snapshot, error)

	// List 按状态列出工作流（为空时全部），新的在前
	List(status Status) []Snapshot

	// Statistics 终态工作流计数
	Statistics() Statistics

	// Cleanup 清理超过 maxAge 的终态工作流
	Cleanup(maxAge time.Duration) int
}

// RegistryOption 注册表配置选项
type RegistryOption func(*registry)

// WithRegistryClock 设置时间源
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *registry) {
		r.now = now
	}
}

// WithRepository 持久化终态快照
func WithRepository(repository Repository) RegistryOption {
	return func(r *registry) {
		r.repository = repository
	}
}

// registry 内存注册表
type registry struct {
	workflows  map[string]*Workflow
	repository Repository
	now        func() time.Time
	processed  int64
	completed  int64
	failed     int64
	avgLatency float64
	mutex      sync.RWMutex
}

// NewRegistry 创建工作流注册表
func NewRegistry(opts ...RegistryOption) Registry {
	r := &registry{
		workflows: make(map[string]*Workflow),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 添加新工作流
func (r *registry) Register(id, kind string, totalSteps int) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, NewWorkflowError("workflow id is required")
	}
	if totalSteps < 0 {
		return Snapshot{}, NewWorkflowErrorf(nil, "workflow %s: negative total steps", id)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.workflows[id]; exists {
		return Snapshot{}, NewWorkflowErrorf(ErrDuplicate, "workflow %s already registered", id)
	}
	w := NewWorkflow(id, kind, totalSteps, r.now())
	r.workflows[id] = w
	return w.Snapshot(), nil
}

// Advance 增加完成步骤；溢出时截断并返回 ErrStepOverflow
func (r *registry) Advance(id string, n int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	w, exists := r.workflows[id]
	if !exists {
		return NewWorkflowErrorf(ErrNotFound, "workflow %s not found", id)
	}
	return w.Advance(n)
}

// Complete 标记完成
func (r *registry) Complete(id string) error {
	return r.finish(id, func(w *Workflow, at time.Time) error {
		return w.Complete(at)
	})
}

// Fail 标记失败
func (r *registry) Fail(id, errorKind, message string) error {
	return r.finish(id, func(w *Workflow, at time.Time) error {
		return w.Fail(errorKind, message, at)
	})
}

// finish 执行终态转换并记录耗时
func (r *registry) finish(id string, transition func(*Workflow, time.Time) error) error {
	r.mutex.Lock()
	w, exists := r.workflows[id]
	if !exists {
		r.mutex.Unlock()
		return NewWorkflowErrorf(ErrNotFound, "workflow %s not found", id)
	}
	now := r.now()
	if err := transition(w, now); err != nil {
		r.mutex.Unlock()
		return err
	}

	r.processed++
	if w.Status() == StatusCompleted {
		r.completed++
	} else {
		r.failed++
	}
	latency := float64(w.Duration(now).Milliseconds())
	r.avgLatency = (r.avgLatency*float64(r.processed-1) + latency) / float64(r.processed)
	snapshot := w.Snapshot()
	r.mutex.Unlock()

	r.persist(snapshot)
	return nil
}

// persist 配置了仓储时保存终态快照
func (r *registry) persist(snapshot Snapshot) {
	if r.repository == nil {
		return
	}
	if err := r.repository.Save(context.Background(), snapshot); err != nil {
		log.Printf("[workflow] failed to persist %s: %v", snapshot.ID, err)
	}
}

// Status 先读内存，再回退到仓储
func (r *registry) Status(id string) (Snapshot, error) {
	r.mutex.RLock()
	w, exists := r.workflows[id]
	var snapshot Snapshot
	if exists {
		snapshot = w.Snapshot()
	}
	r.mutex.RUnlock()

	if exists {
		return snapshot, nil
	}
	if r.repository != nil {
		stored, err := r.repository.FindByID(context.Background(), id)
		if err == nil {
			return stored, nil
		}
		if !IsNotFound(err) {
			log.Printf("[workflow] repository lookup for %s failed: %v", id, err)
		}
	}
	return Snapshot{}, NewWorkflowErrorf(ErrNotFound, "workflow %s not found", id)
}

// List 内存中的工作流，新的在前
func (r *registry) List(status Status) []Snapshot {
	r.mutex.RLock()
	snapshots := make([]Snapshot, 0, len(r.workflows))
	for _, w := range r.workflows {
		if status == "" || w.Status() == status {
			snapshots = append(snapshots, w.Snapshot())
		}
	}
	r.mutex.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].StartTime.Equal(snapshots[j].StartTime) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].StartTime.After(snapshots[j].StartTime)
	})
	return snapshots
}

// Statistics 计数快照
func (r *registry) Statistics() Statistics {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := Statistics{
		RequestsProcessed: r.processed,
		Completed:         r.completed,
		Failed:            r.failed,
		AverageLatencyMs:  r.avgLatency,
	}
	for _, w := range r.workflows {
		if !w.Status().IsTerminal() {
			stats.ActiveWorkflows++
		}
	}
	return stats
}

// Cleanup 清理在 now-maxAge 之前结束的终态工作流
func (r *registry) Cleanup(maxAge time.Duration) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, w := range r.workflows {
		end := w.EndTime()
		if end != nil && end.Before(cutoff) {
			delete(r.workflows, id)
			removed++
		}
	}
	return removed
}
