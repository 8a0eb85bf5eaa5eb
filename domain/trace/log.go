package trace

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultRecentLimit Recent 的 limit 非正时使用
const DefaultRecentLimit = 50

// Listener 每个事件发出时同步通知
type Listener func(event *Event) error

// ListenerID 监听器标识
type ListenerID int64

// Log 只追加的事件追踪日志
type Log interface {
	// Emit 记录事件并通知监听器
	Emit(event *Event) (string, error)

	// ByCorrelation 按发出顺序获取关联ID的事件
	ByCorrelation(correlationID string) []*Event

	// Recent 获取所有工作流最近的事件
	Recent(limit int) []*Event

	// Clear 清空历史和关联索引
	Clear()

	// AddListener 注册监听器
	AddListener(listener Listener) ListenerID

	// RemoveListener 注销监听器
	RemoveListener(id ListenerID) bool

	// Metrics 获取监控快照
	Metrics() Metrics
}

// Metrics 追踪日志统计
type Metrics struct {
	TotalEvents                 int                `json:"total_events"`
	ActiveCorrelations          int                `json:"active_correlations"`
	EventKinds                  int                `json:"event_kinds"`
	SystemsInvolved             int                `json:"systems_involved"`
	KindDistribution            map[Kind]int       `json:"kind_distribution"`
	AvgProcessingTimeMsBySystem map[string]float64 `json:"avg_processing_time_ms_by_system"`
}

type registeredListener struct {
	id       ListenerID
	listener Listener
}

// memoryLog 进程内追踪日志
type memoryLog struct {
	events       []*Event
	correlations map[string][]*Event
	listeners    []registeredListener
	nextID       ListenerID
	lastStamp    time.Time
	now          func() time.Time
	recorder     *Recorder
	mutex        sync.RWMutex
}

// LogOption 追踪日志配置选项
type LogOption func(*memoryLog)

// WithClock 设置时间戳来源
func WithClock(now func() time.Time) LogOption {
	return func(l *memoryLog) {
		l.now = now
	}
}

// WithRecorder 将事件同步写入持久化记录器
func WithRecorder(recorder *Recorder) LogOption {
	return func(l *memoryLog) {
		l.recorder = recorder
	}
}

// NewLog 创建进程内追踪日志
func NewLog(opts ...LogOption) Log {
	l := &memoryLog{
		correlations: make(map[string][]*Event),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit 追加事件、建立索引并按注册顺序通知监听器
func (l *memoryLog) Emit(event *Event) (string, error) {
	if event == nil {
		return "", NewTraceError("nil event")
	}
	if !event.Kind.Valid() {
		return "", NewTraceErrorf("unknown event kind: %s", event.Kind)
	}

	l.mutex.Lock()
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	// 时间戳相对发出顺序不倒退
	if event.Timestamp.Before(l.lastStamp) {
		event.Timestamp = l.lastStamp
	}
	l.lastStamp = event.Timestamp

	l.events = append(l.events, event)
	if event.CorrelationID != "" {
		l.correlations[event.CorrelationID] = append(l.correlations[event.CorrelationID], event)
	}
	listeners := make([]registeredListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mutex.Unlock()

	if l.recorder != nil {
		l.recorder.Record(event)
	}

	for _, rl := range listeners {
		l.notify(rl, event)
	}

	return event.ID, nil
}

// notify 执行单个监听器，忽略错误和 panic
func (l *memoryLog) notify(rl registeredListener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[trace] listener %d panicked on %s: %v", rl.id, event.ID, r)
		}
	}()
	if err := rl.listener(event); err != nil {
		log.Printf("[trace] listener %d failed on %s: %v", rl.id, event.ID, err)
	}
}

// ByCorrelation 返回关联事件的副本
func (l *memoryLog) ByCorrelation(correlationID string) []*Event {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	events := l.correlations[correlationID]
	result := make([]*Event, len(events))
	copy(result, events)
	return result
}

// Recent 获取最新事件，按时间顺序
func (l *memoryLog) Recent(limit int) []*Event {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	start := len(l.events) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Event, len(l.events)-start)
	copy(result, l.events[start:])
	return result
}

// Clear 清空所有历史
func (l *memoryLog) Clear() {
	l.mutex.Lock()
	l.events = nil
	l.correlations = make(map[string][]*Event)
	l.lastStamp = time.Time{}
	l.mutex.Unlock()

	if l.recorder != nil {
		l.recorder.Clear()
	}
}

// AddListener 注册监听器
func (l *memoryLog) AddListener(listener Listener) ListenerID {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.nextID++
	l.listeners = append(l.listeners, registeredListener{id: l.nextID, listener: listener})
	return l.nextID
}

// RemoveListener 注销监听器
func (l *memoryLog) RemoveListener(id ListenerID) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for i, rl := range l.listeners {
		if rl.id == id {
			l.listeners = append(l.listeners[:i:i], l.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Metrics 基于当前历史计算统计
func (l *memoryLog) Metrics() Metrics {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	m := Metrics{
		TotalEvents:                 len(l.events),
		ActiveCorrelations:          len(l.correlations),
		KindDistribution:            make(map[Kind]int),
		AvgProcessingTimeMsBySystem: make(map[string]float64),
	}

	systems := make(map[string]struct{})
	totals := make(map[string]int64)
	counts := make(map[string]int64)
	for _, e := range l.events {
		m.KindDistribution[e.Kind]++
		systems[e.Source] = struct{}{}
		if e.Target != "" {
			systems[e.Target] = struct{}{}
		}
		if e.Kind == KindExternalResponse && e.ProcessingTimeMs != nil {
			totals[e.Source] += *e.ProcessingTimeMs
			counts[e.Source]++
		}
	}
	m.EventKinds = len(m.KindDistribution)
	m.SystemsInvolved = len(systems)
	for system, total := range totals {
		m.AvgProcessingTimeMsBySystem[system] = float64(total) / float64(counts[system])
	}
	return m
}

// Describe 将关联事件渲染为缩进行，子事件在父事件之下
func Describe(events []*Event) []string {
	forest := NewForest(events)
	var lines []string
	var walk func(e *Event, depth int)
	walk = func(e *Event, depth int) {
		line := fmt.Sprintf("%*s%s %s", depth*2, "", e.Kind, e.Source)
		if e.Target != "" {
			line += " -> " + e.Target
		}
		lines = append(lines, line)
		for _, child := range forest.Children(e.ID) {
			walk(child, depth+1)
		}
	}
	for _, root := range forest.Roots() {
		walk(root, 0)
	}
	orphans := forest.Orphans()
	sort.SliceStable(orphans, func(i, j int) bool { return orphans[i].Timestamp.Before(orphans[j].Timestamp) })
	for _, o := range orphans {
		walk(o, 0)
	}
	return lines
}
