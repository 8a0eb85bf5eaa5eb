package application

import (
	"log"

	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// OrchestratorID 编排器事件和消息的来源
const OrchestratorID = "ev-charging-orchestrator-001"

// 工作流完成时发布的总线主题
const (
	TopicSiteEvaluationCompleted      = "site.evaluation.completed"
	TopicNetworkOptimizationCompleted = "network.optimization.completed"
	TopicPermitCrisisResolved         = "permit.crisis.resolved"
)

// emit 记录事件并返回ID；记录失败只打日志
func (o *Orchestrator) emit(event *trace.Event) string {
	id, err := o.log.Emit(event)
	if err != nil {
		log.Printf("[orchestrator] failed to emit %s for %s: %v", event.Kind, event.CorrelationID, err)
	}
	return id
}

// emitError 记录携带错误类型和步骤的错误事件
func (o *Orchestrator) emitError(correlationID, parentID string, e *OrchestrationError) {
	if e.reported {
		return
	}
	e.reported = true
	payload := map[string]any{
		"error_kind": string(e.Kind),
		"message":    e.Message,
	}
	if e.Step != "" {
		payload["step"] = e.Step
	}
	o.emit(trace.NewEvent(trace.KindError, OrchestratorID, correlationID, payload).Under(parentID))
}

// publish 发送完成消息，投递结果不影响工作流
func (o *Orchestrator) publish(topic, correlationID string, payload any) {
	_, err := o.bus.Publish(topic, payload,
		messaging.WithSender(OrchestratorID),
		messaging.WithCorrelationID(correlationID))
	if err != nil {
		log.Printf("[orchestrator] failed to publish %s for %s: %v", topic, correlationID, err)
	}
}
