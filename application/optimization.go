package application

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/plan"
	"github.com/XXueTu/site_orchestrator/domain/selection"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// OptimizationRequest 预算内的候选站点组合
type OptimizationRequest struct {
	CandidateSites []agent.Site `json:"candidate_sites"`
	BudgetInr      float64      `json:"budget_inr"`
	TargetSites    int          `json:"target_sites"`
	Objective      string       `json:"objective,omitempty"`
}

// SelectedSite 选中网络中的一个站点
type SelectedSite struct {
	Rank           int                      `json:"rank"`
	SiteID         string                   `json:"site_id"`
	City           string                   `json:"city"`
	WorkflowID     string                   `json:"workflow_id"`
	RankScore      float64                  `json:"rank_score"`
	OverallScore   float64                  `json:"overall_score"`
	Recommendation synthesis.Recommendation `json:"recommendation"`
	CapexInr       float64                  `json:"capex_inr"`
	NpvInr         float64                  `json:"npv_inr"`
}

// OptimizationResponse 网络优化结果
type OptimizationResponse struct {
	Success             bool                      `json:"success"`
	WorkflowID          string                    `json:"workflow_id"`
	ProcessingTimeMs    int64                     `json:"processing_time_ms"`
	Objective           selection.Objective       `json:"objective,omitempty"`
	SelectedSites       []SelectedSite            `json:"selected_sites"`
	NetworkMetrics      *selection.NetworkMetrics `json:"network_metrics,omitempty"`
	CandidatesEvaluated int                       `json:"candidates_evaluated"`
	CandidatesFailed    int                       `json:"candidates_failed"`
	Error               *ErrorInfo                `json:"error,omitempty"`
	Timestamp           time.Time                 `json:"timestamp"`
}

// OptimizeSelection 评估所有候选站点，按目标排序，
// 在预算内贪心选择网络
func (o *Orchestrator) OptimizeSelection(ctx context.Context, req OptimizationRequest) *OptimizationResponse {
	start := o.clock.Now()
	id := newWorkflowID(plan.KindNetworkOptimization)
	ctx = logger.WithWorkflow(ctx, id)
	candidates := req.CandidateSites

	resp := &OptimizationResponse{WorkflowID: id, SelectedSites: []SelectedSite{}}
	finish := func(err *OrchestrationError) *OptimizationResponse {
		resp.ProcessingTimeMs = o.elapsedMs(start)
		resp.Timestamp = o.clock.Now().UTC()
		if err != nil {
			resp.Error = err.Info()
			log.Printf("[orchestrator] %s failed: %v", id, err)
		}
		return resp
	}

	p, perr := o.resolve(plan.KindNetworkOptimization)
	total := 0
	if perr == nil {
		total = p.TotalSteps(len(candidates))
	}
	if err := o.registerWorkflowSteps(id, plan.KindNetworkOptimization, total); err != nil {
		return finish(err)
	}

	rootID := o.emit(trace.NewEvent(trace.KindRequestReceived, "api", id, map[string]any{
		"candidate_sites": len(candidates),
		"budget_inr":      req.BudgetInr,
		"target_sites":    req.TargetSites,
		"objective":       req.Objective,
	}).To(OrchestratorID))

	if perr != nil {
		o.fail(id, rootID, perr)
		return finish(perr)
	}

	objective, scorer, verr := o.validateOptimization(req)
	if verr != nil {
		o.fail(id, rootID, verr)
		return finish(verr)
	}
	resp.Objective = objective

	o.emit(trace.NewEvent(trace.KindNetworkOptimizationStarted, OrchestratorID, id, map[string]any{
		"candidate_sites": len(candidates),
		"batch_size":      o.batchSize,
		"objective":       string(objective),
	}).Under(rootID))
	o.logInfo(ctx, "network optimization started", map[string]interface{}{"candidates": len(candidates)})

	evaluations := make([]*EvaluationResponse, len(candidates))
	var ranked, selected []selection.Ranked

	exec := o.newExecution(id, rootID, candidates)
	exec.handle(plan.StepEvaluate, func(ctx context.Context, step plan.Step) (int, *OrchestrationError) {
		if err := o.evaluateBatches(ctx, id, candidates, evaluations); err != nil {
			return 0, err
		}
		evaluated := 0
		for _, ev := range evaluations {
			if ev != nil && ev.Success {
				evaluated++
			}
		}
		resp.CandidatesEvaluated = evaluated
		resp.CandidatesFailed = len(candidates) - evaluated
		return evaluated, nil
	})
	exec.handle(plan.StepRank, func(ctx context.Context, step plan.Step) (int, *OrchestrationError) {
		pool := make([]selection.Candidate, 0, len(candidates))
		for i, ev := range evaluations {
			if ev == nil || !ev.Success {
				continue
			}
			pool = append(pool, selection.Candidate{Index: i, Site: candidates[i], Evaluation: ev.Synthesis})
		}
		if len(pool) == 0 {
			return 0, NewOrchestrationError(KindSynthesisError, "no candidate site could be evaluated")
		}
		var err error
		if ranked, err = selection.Rank(pool, scorer); err != nil {
			return 0, NewOrchestrationErrorf(KindSynthesisError, err, "%v", err)
		}
		return 1, nil
	})
	exec.handle(plan.StepSelect, func(ctx context.Context, step plan.Step) (int, *OrchestrationError) {
		selected = selection.Select(ranked, req.BudgetInr, req.TargetSites)
		metrics := selection.Summarize(selected, req.BudgetInr)
		resp.NetworkMetrics = &metrics

		ids := make([]string, 0, len(selected))
		for i, r := range selected {
			ev := evaluations[r.Index]
			resp.SelectedSites = append(resp.SelectedSites, SelectedSite{
				Rank:           i + 1,
				SiteID:         r.Site.SiteID,
				City:           r.Site.City,
				WorkflowID:     ev.WorkflowID,
				RankScore:      r.RankScore,
				OverallScore:   r.Evaluation.OverallScore,
				Recommendation: r.Evaluation.Recommendation,
				CapexInr:       r.CapexInr(),
				NpvInr:         r.NpvInr(),
			})
			ids = append(ids, r.Site.SiteID)
		}
		o.emit(trace.NewEvent(trace.KindSiteSelection, OrchestratorID, id, map[string]any{
			"ranked":               len(ranked),
			"selected":             ids,
			"budget_remaining_inr": metrics.BudgetRemainingInr,
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

	o.emit(trace.NewEvent(trace.KindNetworkPlanReady, OrchestratorID, id, map[string]any{
		"sites_selected":  resp.NetworkMetrics.SitesSelected,
		"total_capex_inr": resp.NetworkMetrics.TotalCapexInr,
		"network_npv_inr": resp.NetworkMetrics.NetworkNpvInr,
		"recommendation":  resp.NetworkMetrics.Recommendation,
	}).To("api").Under(rootID).Took(time.Duration(resp.ProcessingTimeMs) * time.Millisecond))
	o.publish(TopicNetworkOptimizationCompleted, id, map[string]any{
		"workflow_id":     id,
		"selected_sites":  resp.SelectedSites,
		"network_metrics": resp.NetworkMetrics,
	})
	o.recordRequest(resp.ProcessingTimeMs, 0)
	o.logInfo(ctx, "network optimization complete", map[string]interface{}{
		"selected":           len(resp.SelectedSites),
		"processing_time_ms": resp.ProcessingTimeMs,
	})
	return resp
}

// validateOptimization 解析优化目标及其评分器
func (o *Orchestrator) validateOptimization(req OptimizationRequest) (selection.Objective, selection.Scorer, *OrchestrationError) {
	if len(req.CandidateSites) == 0 {
		return "", nil, NewOrchestrationError(KindInvalidRequest, "no candidate sites")
	}
	if req.BudgetInr <= 0 {
		return "", nil, NewOrchestrationErrorf(KindInvalidRequest, nil, "budget must be positive, got %.0f", req.BudgetInr)
	}
	if req.TargetSites <= 0 {
		return "", nil, NewOrchestrationErrorf(KindInvalidRequest, nil, "target sites must be positive, got %d", req.TargetSites)
	}

	objective := o.objective
	if req.Objective != "" {
		parsed, err := selection.ParseObjective(req.Objective)
		if err != nil {
			return "", nil, NewOrchestrationErrorf(KindInvalidRequest, err, "%v", err)
		}
		objective = parsed
	}
	scorer, err := o.scorer(objective)
	if err != nil {
		return "", nil, NewOrchestrationErrorf(KindInvalidRequest, err, "%v", err)
	}
	return objective, scorer, nil
}

// evaluateBatches 分批评估候选站点。每批内最多
// maxConcurrency 个评估同时运行，结果按索引写入。
func (o *Orchestrator) evaluateBatches(ctx context.Context, parentID string, candidates []agent.Site, out []*EvaluationResponse) *OrchestrationError {
	batches := (len(candidates) + o.batchSize - 1) / o.batchSize
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return stepError("evaluate", err)
		}

		lo := b * o.batchSize
		hi := lo + o.batchSize
		if hi > len(candidates) {
			hi = len(candidates)
		}

		var g errgroup.Group
		g.SetLimit(o.maxConcurrency)
		for i := lo; i < hi; i++ {
			i := i
			g.Go(func() error {
				out[i] = o.evaluate(ctx, candidates[i], parentID)
				return nil
			})
		}
		g.Wait()

		failed := 0
		for i := lo; i < hi; i++ {
			if !out[i].Success {
				failed++
			}
		}
		log.Printf("[orchestrator] %s: batch %d/%d evaluated, %d failed", parentID, b+1, batches, failed)
	}
	return nil
}
