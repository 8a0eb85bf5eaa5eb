package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/plan"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// EvaluationResponse 单站点评估结果
type EvaluationResponse struct {
	Success          bool              `json:"success"`
	WorkflowID       string            `json:"workflow_id"`
	SiteID           string            `json:"site_id"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	AgentsInvolved   []string          `json:"agents_involved,omitempty"`
	Synthesis        *synthesis.Result `json:"synthesis,omitempty"`
	Error            *ErrorInfo        `json:"error,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// EvaluateSingle 对单个站点执行站点评估计划
func (o *Orchestrator) EvaluateSingle(ctx context.Context, site agent.Site) *EvaluationResponse {
	return o.evaluate(ctx, site, "")
}

// evaluate 执行一次评估；parentID 关联网络优化中的候选评估
func (o *Orchestrator) evaluate(ctx context.Context, site agent.Site, parentID string) *EvaluationResponse {
	start := o.clock.Now()
	id := newWorkflowID(plan.KindSiteEvaluation)
	ctx = logger.WithWorkflow(ctx, id)
	defer o.agents.Release(id)

	resp := &EvaluationResponse{WorkflowID: id, SiteID: site.SiteID}
	finish := func(err *OrchestrationError) *EvaluationResponse {
		resp.ProcessingTimeMs = o.elapsedMs(start)
		resp.Timestamp = o.clock.Now().UTC()
		if err != nil {
			resp.Error = err.Info()
			log.Printf("[orchestrator] %s failed: %v", id, err)
		}
		return resp
	}

	p, perr := o.resolve(plan.KindSiteEvaluation)
	total := 0
	if perr == nil {
		total = p.TotalSteps(1)
		resp.AgentsInvolved = o.agentIDs(p)
	}
	if err := o.registerWorkflowSteps(id, plan.KindSiteEvaluation, total); err != nil {
		return finish(err)
	}

	payload := map[string]any{
		"site_id": site.SiteID,
		"city":    site.City,
		"action":  "comprehensive_evaluation",
	}
	if parentID != "" {
		payload["parent_workflow_id"] = parentID
	}
	rootID := o.emit(trace.NewEvent(trace.KindRequestReceived, "api", id, payload).To(OrchestratorID))
	o.logInfo(ctx, "site evaluation started", map[string]interface{}{"site_id": site.SiteID})

	if perr != nil {
		o.fail(id, rootID, perr)
		return finish(perr)
	}
	if err := site.Validate(); err != nil {
		e := NewOrchestrationErrorf(KindInvalidRequest, err, "invalid site: %v", err)
		o.fail(id, rootID, e)
		return finish(e)
	}

	exec := o.newExecution(id, rootID, []agent.Site{site})
	exec.handle(plan.StepSynthesis, func(ctx context.Context, step plan.Step) (int, *OrchestrationError) {
		o.emit(trace.NewEvent(trace.KindSynthesisStarted, OrchestratorID, id, map[string]any{
			"available":   len(exec.results[0]),
			"unavailable": len(exec.failures[0]),
		}).Under(rootID))

		if dims := exec.collapsedDimensions(0); len(dims) > 0 {
			return 0, NewOrchestrationErrorf(KindSynthesisError, nil, "insufficient results to synthesize: every parallel branch failed (%v)", dims)
		}

		result, err := synthesis.Synthesize(synthesis.Input{
			WorkflowID: id,
			Site:       site,
			Results:    exec.results[0],
		}, o.synthesisWeights(p))
		if err != nil {
			kind := KindSynthesisError
			if !errors.Is(err, synthesis.ErrNoDimensions) {
				kind = KindPlanConstructionError
			}
			return 0, NewOrchestrationErrorf(kind, err, "%v", err)
		}
		resp.Synthesis = result

		o.emit(trace.NewEvent(trace.KindSynthesisComplete, OrchestratorID, id, map[string]any{
			"overall_score":          result.OverallScore,
			"recommendation":         string(result.Recommendation),
			"unavailable_dimensions": len(result.UnavailableDimensions),
		}).Under(rootID))
		return 1, nil
	})

	if err := exec.run(ctx, p.Stages()); err != nil {
		o.fail(id, rootID, err)
		return finish(err)
	}

	o.complete(id)
	resp.Success = true
	finish(nil)

	o.emit(trace.NewEvent(trace.KindResponseDelivered, OrchestratorID, id, map[string]any{
		"recommendation": string(resp.Synthesis.Recommendation),
		"score":          resp.Synthesis.OverallScore,
	}).To("api").Under(rootID).Took(time.Duration(resp.ProcessingTimeMs) * time.Millisecond))
	o.publish(TopicSiteEvaluationCompleted, id, resp.Synthesis)
	o.recordRequest(resp.ProcessingTimeMs, exec.invocation.Load())
	o.logInfo(ctx, "site evaluation complete", map[string]interface{}{
		"overall_score":      resp.Synthesis.OverallScore,
		"processing_time_ms": resp.ProcessingTimeMs,
	})
	return resp
}

// agentIDs 计划调用的智能体，按步骤顺序去重
func (o *Orchestrator) agentIDs(p *plan.Plan) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, step := range p.AgentSteps() {
		a, ok := o.agents[step.Dimension]
		if !ok || seen[a.ID()] {
			continue
		}
		seen[a.ID()] = true
		ids = append(ids, a.ID())
	}
	return ids
}
