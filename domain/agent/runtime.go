package agent

import (
	"context"
	"log"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// LatencyProvider 决定外部系统调用耗时
type LatencyProvider interface {
	Delay(system string) time.Duration
}

// NoLatency 立即返回
type NoLatency struct{}

func (NoLatency) Delay(string) time.Duration { return 0 }

// FixedLatency 所有系统固定延迟
type FixedLatency time.Duration

func (f FixedLatency) Delay(string) time.Duration { return time.Duration(f) }

// Clock 延迟等待和处理耗时使用的时间源
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock 系统时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Runtime 专家智能体共享的节奏控制
type Runtime struct {
	latency LatencyProvider
	clock   Clock
}

// Option 智能体运行时配置选项
type Option func(*Runtime)

// WithLatency 设置延迟提供者
func WithLatency(latency LatencyProvider) Option {
	return func(r *Runtime) {
		r.latency = latency
	}
}

// WithClock 设置时钟
func WithClock(clock Clock) Option {
	return func(r *Runtime) {
		r.clock = clock
	}
}

// NewRuntime 默认无延迟并使用系统时钟
func NewRuntime(opts ...Option) Runtime {
	r := Runtime{latency: NoLatency{}, clock: SystemClock{}}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Clock 获取运行时时钟
func (r Runtime) Clock() Clock {
	return r.clock
}

// wait 等待系统延迟或 ctx 结束
func (r Runtime) wait(ctx context.Context, system string) error {
	d := r.latency.Delay(system)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-r.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call 执行一次带追踪的外部调用：external-query、延迟等待、
// 调用、external-response。两个事件都挂在 req.ParentEventID 下。
func Call[T any](ctx context.Context, rt Runtime, agentID string, req *Request, system string, query map[string]any, invoke func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	emit(req, trace.NewEvent(trace.KindExternalQuery, agentID, req.CorrelationID, query).
		To(system).
		Under(req.ParentEventID))

	start := rt.clock.Now()
	if err := rt.wait(ctx, system); err != nil {
		return zero, NewErrorf(agentID, err, "%s: %v", system, err)
	}

	value, err := invoke(ctx)
	elapsed := rt.clock.Now().Sub(start)

	payload := map[string]any{"status": "ok"}
	if err != nil {
		payload = map[string]any{"status": "error", "error": err.Error()}
	}
	emit(req, trace.NewEvent(trace.KindExternalResponse, system, req.CorrelationID, payload).
		To(agentID).
		Under(req.ParentEventID).
		Took(elapsed))

	if err != nil {
		return zero, NewErrorf(agentID, err, "%s: %v", system, err)
	}
	return value, nil
}

// emit 请求携带日志时记录事件
func emit(req *Request, event *trace.Event) {
	if req.Log == nil {
		return
	}
	if _, err := req.Log.Emit(event); err != nil {
		log.Printf("[agent] failed to emit %s: %v", event.Kind, err)
	}
}
