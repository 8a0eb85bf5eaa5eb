package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind 追踪日志中记录的事件类型集合
type Kind string

const (
	KindRequestReceived       Kind = "request-received"
	KindAgentInvoked          Kind = "agent-invoked"
	KindAgentAnalysisComplete Kind = "agent-analysis-complete"
	KindAgentRetry            Kind = "agent-retry"
	KindExternalQuery         Kind = "external-query"
	KindExternalResponse      Kind = "external-response"
	KindSynthesisStarted      Kind = "synthesis-started"
	KindSynthesisComplete     Kind = "synthesis-complete"
	KindResponseDelivered     Kind = "response-delivered"
	KindError                 Kind = "error"

	KindNetworkOptimizationStarted Kind = "network-optimization-started"
	KindSiteSelection              Kind = "site-selection"
	KindNetworkPlanReady           Kind = "network-plan-ready"

	KindCrisisAlert      Kind = "crisis-alert"
	KindCrisisAssessment Kind = "crisis-assessment"
	KindCrisisResolution Kind = "crisis-resolution"
)

var knownKinds = map[Kind]struct{}{
	KindRequestReceived: {}, KindAgentInvoked: {}, KindAgentAnalysisComplete: {}, KindAgentRetry: {},
	KindExternalQuery: {}, KindExternalResponse: {}, KindSynthesisStarted: {}, KindSynthesisComplete: {},
	KindResponseDelivered: {}, KindError: {}, KindNetworkOptimizationStarted: {}, KindSiteSelection: {},
	KindNetworkPlanReady: {}, KindCrisisAlert: {}, KindCrisisAssessment: {}, KindCrisisResolution: {},
}

// Valid 判断是否为已声明的类型
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// Event 请求处理链路中的一跳，发出后不可修改
type Event struct {
	ID               string         `json:"id"`
	Kind             Kind           `json:"kind"`
	Source           string         `json:"source"`
	Target           string         `json:"target,omitempty"`
	CorrelationID    string         `json:"correlation_id"`
	ParentID         string         `json:"parent_id,omitempty"`
	Payload          map[string]any `json:"payload"`
	ProcessingTimeMs *int64         `json:"processing_time_ms,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewEvent 为关联ID创建事件
func NewEvent(kind Kind, source, correlationID string, payload map[string]any) *Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Event{
		Kind:          kind,
		Source:        source,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// To 设置目标组件
func (e *Event) To(target string) *Event {
	e.Target = target
	return e
}

// Under 关联到因果父事件
func (e *Event) Under(parentID string) *Event {
	e.ParentID = parentID
	return e
}

// Took 记录处理耗时
func (e *Event) Took(d time.Duration) *Event {
	ms := d.Milliseconds()
	e.ProcessingTimeMs = &ms
	return e
}

// IsRoot 判断是否没有父事件
func (e *Event) IsRoot() bool {
	return e.ParentID == ""
}

func generateEventID() string {
	return fmt.Sprintf("evt_%s", uuid.New().String())
}

// Forest 关联ID下事件的父子视图
type Forest struct {
	events   []*Event
	children map[string][]*Event
}

// NewForest 按父ID索引事件，同层顺序与输入一致
func NewForest(events []*Event) *Forest {
	f := &Forest{
		events:   events,
		children: make(map[string][]*Event),
	}
	for _, e := range events {
		if e.ParentID != "" {
			f.children[e.ParentID] = append(f.children[e.ParentID], e)
		}
	}
	return f
}

// Roots 获取没有父事件的事件
func (f *Forest) Roots() []*Event {
	var roots []*Event
	for _, e := range f.events {
		if e.IsRoot() {
			roots = append(roots, e)
		}
	}
	return roots
}

// Children 获取直接子事件
func (f *Forest) Children(parentID string) []*Event {
	return f.children[parentID]
}

// Orphans 获取父事件不在森林中的事件
func (f *Forest) Orphans() []*Event {
	known := make(map[string]struct{}, len(f.events))
	for _, e := range f.events {
		known[e.ID] = struct{}{}
	}
	var orphans []*Event
	for _, e := range f.events {
		if e.ParentID == "" {
			continue
		}
		if _, ok := known[e.ParentID]; !ok {
			orphans = append(orphans, e)
		}
	}
	return orphans
}
