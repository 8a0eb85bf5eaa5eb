package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/plan"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// 危机阈值
const (
	BottleneckThresholdDays  = 120
	EstimatedImprovementDays = 30
)

// CrisisRequest 同一城市中许可受阻的站点
type CrisisRequest struct {
	City  string       `json:"city"`
	Sites []agent.Site `json:"sites"`
}

// Bottleneck 许可周期超过阈值的站点
type Bottleneck struct {
	SiteID   string `json:"site_id"`
	Issue    string `json:"issue"`
	Days     int    `json:"days"`
	Severity string `json:"severity"`
}

// ResolutionPlan 城市级升级处理步骤
type ResolutionPlan struct {
	City                     string   `json:"city"`
	ActionItems              []string `json:"action_items"`
	EstimatedImprovementDays int      `json:"estimated_improvement_days"`
	Priority                 string   `json:"priority"`
	Owner                    string   `json:"owner"`
}

// CrisisResponse 许可危机处理结果
type CrisisResponse struct {
	Success          bool            `json:"success"`
	WorkflowID       string          `json:"workflow_id"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	SitesAnalyzed    int             `json:"sites_analyzed"`
	SitesFailed      int             `json:"sites_failed"`
	Bottlenecks      []Bottleneck    `json:"bottlenecks"`
	ResolutionPlan   *ResolutionPlan `json:"resolution_plan,omitempty"`
	Error            *ErrorInfo      `json:"error,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// HandlePermitCrisis 并行检查所有受影响站点的许可，
// 标记瓶颈并给出解决方案
func (o *Orchestrator) HandlePermitCrisis(ctx context.Context, req CrisisRequest) *CrisisResponse {
	start := o.clock.Now()
	id := newWorkflowID(plan.KindPermitCrisis)
	ctx = logger.WithWorkflow(ctx, id)
	defer o.agents.Release(id)

	city := req.City
	if city == "" && len(req.Sites) > 0 {
		city = req.Sites[0].City
	}

	resp := &CrisisResponse{WorkflowID: id, Bottlenecks: []Bottleneck{}}
	finish := func(err *OrchestrationError) *CrisisResponse {
		resp.ProcessingTimeMs = o.elapsedMs(start)
		resp.Timestamp = o.clock.Now().UTC()
		if err != nil {
			resp.Error = err.Info()
			log.Printf("[orchestrator] %s failed: %v", id, err)
		}
		return resp
	}

	p, perr := o.resolve(plan.KindPermitCrisis)
	total := 0
	if perr == nil {
		total = p.TotalSteps(len(req.Sites))
	}
	if err := o.registerWorkflowSteps(id, plan.KindPermitCrisis, total); err != nil {
		return finish(err)
	}

	rootID := o.emit(trace.NewEvent(trace.KindCrisisAlert, "permit-monitoring", id, map[string]any{
		"city":           city,
		"affected_sites": len(req.Sites),
	}).To(OrchestratorID))
	o.logWarn(ctx, "permit crisis raised", map[string]interface{}{"city": city, "sites": len(req.Sites)})

	if perr != nil {
		o.fail(id, rootID, perr)
		return finish(perr)
	}
	if len(req.Sites) == 0 {
		e := NewOrchestrationError(KindInvalidRequest, "no affected sites")
		o.fail(id, rootID, e)
		return finish(e)
	}
	for _, site := range req.Sites {
		if err := site.Validate(); err != nil {
			e := NewOrchestrationErrorf(KindInvalidRequest, err, "invalid site %s: %v", site.SiteID, err)
			o.fail(id, rootID, e)
			return finish(e)
		}
	}

	exec := o.newExecution(id, rootID, req.Sites)
	exec.handle(plan.StepAssessment, func(ctx context.Context, step plan.Step) (int, *OrchestrationError) {
		analyzed := exec.succeeded(agent.DimensionRegulatory)
		resp.SitesAnalyzed = len(analyzed)
		resp.SitesFailed = len(req.Sites) - len(analyzed)

		for _, i := range analyzed {
			days, ok := exec.results[i][agent.DimensionRegulatory].Metric(agent.MetricTimelineDays)
			if ok && days > BottleneckThresholdDays {
				resp.Bottlenecks = append(resp.Bottlenecks, Bottleneck{
					SiteID:   req.Sites[i].SiteID,
					Issue:    "Extended timeline",
					Days:     int(days),
					Severity: "High",
				})
			}
		}
		o.emit(trace.NewEvent(trace.KindCrisisAssessment, OrchestratorID, id, map[string]any{
			"analyzing":      "permit bottlenecks",
			"sites_analyzed": resp.SitesAnalyzed,
			"bottlenecks":    len(resp.Bottlenecks),
		}).Under(rootID))

		resp.ResolutionPlan = resolutionPlan(city)
		o.emit(trace.NewEvent(trace.KindCrisisResolution, OrchestratorID, id, map[string]any{
			"action_items":               len(resp.ResolutionPlan.ActionItems),
			"estimated_improvement_days": resp.ResolutionPlan.EstimatedImprovementDays,
		}).To("api").Under(rootID))
		return 1, nil
	})

	if err := exec.run(ctx, p.Stages()); err != nil {
		o.fail(id, rootID, err)
		return finish(err)
	}

	o.complete(id)
	resp.Success = true
	finish(nil)

	o.publish(TopicPermitCrisisResolved, id, map[string]any{
		"city":            city,
		"bottlenecks":     resp.Bottlenecks,
		"resolution_plan": resp.ResolutionPlan,
	})
	o.recordRequest(resp.ProcessingTimeMs, exec.invocation.Load())
	o.logInfo(ctx, "permit crisis resolution ready", map[string]interface{}{
		"bottlenecks":        len(resp.Bottlenecks),
		"processing_time_ms": resp.ProcessingTimeMs,
	})
	return resp
}

// resolutionPlan 城市标准升级方案
func resolutionPlan(city string) *ResolutionPlan {
	return &ResolutionPlan{
		City: city,
		ActionItems: []string{
			fmt.Sprintf("Escalate to %s Municipal Corporation senior management", city),
			"Engage external permit consultants for expedited processing",
			"Utilize single-window clearance system where available",
			"Submit parallel applications to multiple agencies",
			"Schedule regular follow-up meetings with agency officials",
		},
		EstimatedImprovementDays: EstimatedImprovementDays,
		Priority:                 "High",
		Owner:                    "Permit Management Team",
	}
}
