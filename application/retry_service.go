package application

import (
	"context"
	"errors"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/retry"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// runAgentStep 在步骤超时内调用智能体，按重试策略
// 重试智能体失败。超时不重试。
func (o *Orchestrator) runAgentStep(ctx context.Context, e *execution, t task, upstream map[agent.Dimension]*agent.Result) (*agent.Result, *OrchestrationError) {
	step := t.step
	site := e.sites[t.site]
	a := o.agents[step.Dimension]
	ctx = logger.WithStep(ctx, step.Name)

	invokedID := o.emit(trace.NewEvent(trace.KindAgentInvoked, OrchestratorID, e.id, map[string]any{
		"step":      step.Name,
		"dimension": string(step.Dimension),
		"site_id":   site.SiteID,
		"required":  step.Required,
	}).To(a.ID()).Under(e.rootID))
	o.logInfo(ctx, "agent invoked", map[string]interface{}{"agent": a.ID(), "site_id": site.SiteID})

	req := &agent.Request{
		CorrelationID: e.id,
		ParentEventID: invokedID,
		Site:          site,
		Upstream:      upstream,
		Log:           o.log,
	}

	start := o.clock.Now()
	retries := 0
	var result *agent.Result
	outcome, err := o.retryPolicy.Do(ctx, retryHooks(o, e.id, invokedID, step.Name, &retries), func(ctx context.Context, attempt int) error {
		e.invocation.Add(1)
		res, err := invokeWithTimeout(ctx, a, req, step.Timeout)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	o.retryStats.Record(outcome, retries)

	if err != nil {
		se := stepError(step.Name, err)
		o.emitError(e.id, invokedID, se)
		o.logError(ctx, "agent step failed", map[string]interface{}{"error_kind": string(se.Kind), "error": se.Message})
		return nil, se
	}

	o.emit(trace.NewEvent(trace.KindAgentAnalysisComplete, a.ID(), e.id, map[string]any{
		"step":       step.Name,
		"site_id":    site.SiteID,
		"score":      result.Score,
		"confidence": result.Confidence,
	}).To(OrchestratorID).Under(invokedID).Took(o.clock.Now().Sub(start)))
	o.logInfo(ctx, "agent analysis complete", map[string]interface{}{"score": result.Score, "retries": retries})
	return result, nil
}

// retryHooks 每次等待前发出 agent-retry；只重试非超时失败
func retryHooks(o *Orchestrator, correlationID, parentID, step string, retries *int) retry.Hooks {
	return retry.Hooks{
		Retryable: func(err error) bool {
			return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
		},
		OnRetry: func(retry int, delay time.Duration, lastErr error) {
			*retries = retry
			o.emit(trace.NewEvent(trace.KindAgentRetry, OrchestratorID, correlationID, map[string]any{
				"step":     step,
				"retry":    retry,
				"delay_ms": delay.Milliseconds(),
				"error":    lastErr.Error(),
			}).Under(parentID))
		},
		After: o.clock.After,
	}
}

// invokeWithTimeout 限制单次调用时长，忽略ctx的智能体同样生效
func invokeWithTimeout(ctx context.Context, a agent.Agent, req *agent.Request, timeout time.Duration) (*agent.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		result *agent.Result
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := agent.Invoke(ctx, a, req)
		done <- reply{result: res, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, agent.NewErrorf(a.ID(), ctx.Err(), "no result within %v", timeout)
	}
}

func (o *Orchestrator) logInfo(ctx context.Context, message string, attributes map[string]interface{}) {
	if o.logger != nil {
		o.logger.Info(ctx, message, attributes)
	}
}

func (o *Orchestrator) logWarn(ctx context.Context, message string, attributes map[string]interface{}) {
	if o.logger != nil {
		o.logger.Warn(ctx, message, attributes)
	}
}

func (o *Orchestrator) logError(ctx context.Context, message string, attributes map[string]interface{}) {
	if o.logger != nil {
		o.logger.Error(ctx, message, attributes)
	}
}
