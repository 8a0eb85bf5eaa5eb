package workflow

import (
	"time"
)

// Status 工作流状态
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal 判断是否不允许再转换
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Workflow 一次编排运行，以关联ID为键
type Workflow struct {
	id             string
	kind           string
	startTime      time.Time
	endTime        *time.Time
	status         Status
	stepsCompleted int
	totalSteps     int
	errorKind      string
	lastError      string
}

// NewWorkflow 创建进行中的工作流
func NewWorkflow(id, kind string, totalSteps int, startTime time.Time) *Workflow {
	return &Workflow{
		id:         id,
		kind:       kind,
		startTime:  startTime,
		status:     StatusInProgress,
		totalSteps: totalSteps,
	}
}

// Workflow getter 方法
func (w *Workflow) ID() string           { return w.id }
func (w *Workflow) Kind() string         { return w.kind }
func (w *Workflow) StartTime() time.Time { return w.startTime }
func (w *Workflow) EndTime() *time.Time  { return w.endTime }
func (w *Workflow) Status() Status       { return w.status }
func (w *Workflow) StepsCompleted() int  { return w.stepsCompleted }
func (w *Workflow) TotalSteps() int      { return w.totalSteps }
func (w *Workflow) LastError() string    { return w.lastError }

// Advance 增加完成步骤，不超过计划总数
func (w *Workflow) Advance(n int) error {
	if w.status.IsTerminal() {
		return NewWorkflowErrorf(ErrIllegalTransition, "workflow %s is %s", w.id, w.status)
	}
	if n <= 0 {
		return nil
	}
	if w.stepsCompleted+n > w.totalSteps {
		w.stepsCompleted = w.totalSteps
		return NewWorkflowErrorf(ErrStepOverflow, "workflow %s: %d steps planned", w.id, w.totalSteps)
	}
	w.stepsCompleted += n
	return nil
}

// Complete 标记完成
func (w *Workflow) Complete(at time.Time) error {
	if w.status.IsTerminal() {
		return NewWorkflowErrorf(ErrIllegalTransition, "workflow %s is already %s", w.id, w.status)
	}
	w.status = StatusCompleted
	w.endTime = &at
	return nil
}

// Fail 标记失败并记录错误类型
func (w *Workflow) Fail(kind, message string, at time.Time) error {
	if w.status.IsTerminal() {
		return NewWorkflowErrorf(ErrIllegalTransition, "workflow %s is already %s", w.id, w.status)
	}
	w.status = StatusFailed
	w.errorKind = kind
	w.lastError = message
	w.endTime = &at
	return nil
}

// Duration 耗时，运行中的工作流计算到当前
func (w *Workflow) Duration(now time.Time) time.Duration {
	if w.endTime != nil {
		return w.endTime.Sub(w.startTime)
	}
	return now.Sub(w.startTime)
}

// Snapshot 复制当前状态
func (w *Workflow) Snapshot() Snapshot {
	s := Snapshot{
		ID:             w.id,
		Kind:           w.kind,
		StartTime:      w.startTime,
		Status:         w.status,
		StepsCompleted: w.stepsCompleted,
		TotalSteps:     w.totalSteps,
		ErrorKind:      w.errorKind,
		LastError:      w.lastError,
	}
	if w.endTime != nil {
		end := *w.endTime
		s.EndTime = &end
		s.DurationMs = end.Sub(w.startTime).Milliseconds()
	}
	if w.totalSteps > 0 {
		s.Progress = float64(w.stepsCompleted) / float64(w.totalSteps) * 100.0
	}
	return s
}

// Snapshot 返回给读取方的不可变视图
type Snapshot struct {
	ID             string     `json:"workflow_id"`
	Kind           string     `json:"kind"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	Status         Status     `json:"status"`
	StepsCompleted int        `json:"steps_completed"`
	TotalSteps     int        `json:"total_steps"`
	Progress       float64    `json:"progress_pct"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Restore 从持久化快照重建工作流
func Restore(s Snapshot) *Workflow {
	w := &Workflow{
		id:             s.ID,
		kind:           s.Kind,
		startTime:      s.StartTime,
		status:         s.Status,
		stepsCompleted: s.StepsCompleted,
		totalSteps:     s.TotalSteps,
		errorKind:      s.ErrorKind,
		lastError:      s.LastError,
	}
	if s.EndTime != nil {
		end := *s.EndTime
		w.endTime = &end
	}
	return w
}
