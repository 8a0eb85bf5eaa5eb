package application

import (
	"context"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// GetWorkflowStatus 获取工作流当前快照
func (o *Orchestrator) GetWorkflowStatus(id string) (workflow.Snapshot, error) {
	snapshot, err := o.registry.Status(id)
	if err != nil {
		if workflow.IsNotFound(err) {
			return workflow.Snapshot{}, NewOrchestrationErrorf(KindNotFound, err, "workflow %s not found", id)
		}
		return workflow.Snapshot{}, err
	}
	return snapshot, nil
}

// ListWorkflows 按状态列出快照，为空时列出全部，新的在前
func (o *Orchestrator) ListWorkflows(status workflow.Status) []workflow.Snapshot {
	return o.registry.List(status)
}

// GetRecentEvents 最近的事件，设置 correlationID 时只返回该工作流
func (o *Orchestrator) GetRecentEvents(limit int, correlationID string) []*trace.Event {
	if correlationID == "" {
		return o.log.Recent(limit)
	}
	events := o.log.ByCorrelation(correlationID)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// DescribeWorkflow 工作流的可读事件链
func (o *Orchestrator) DescribeWorkflow(correlationID string) []string {
	return trace.Describe(o.log.ByCorrelation(correlationID))
}

// GetRecentMessages 主题的总线历史，为空时返回所有主题
func (o *Orchestrator) GetRecentMessages(topic string, limit int) []*messaging.Message {
	return o.bus.RecentMessages(topic, limit)
}

// GetWorkflowLogs 工作流日志，设置 step 时只返回该步骤
func (o *Orchestrator) GetWorkflowLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*logger.LogEntry, error) {
	if o.logger == nil {
		return []*logger.LogEntry{}, nil
	}
	if step != "" {
		return o.logger.GetStepLogs(ctx, correlationID, step, limit, offset)
	}
	return o.logger.GetLogs(ctx, correlationID, limit, offset)
}

// ClearHistory 清空事件日志和总线历史，工作流保留
func (o *Orchestrator) ClearHistory() {
	o.log.Clear()
	o.bus.Clear()
}

// CleanupWorkflows 从内存中清理超过 maxAge 的终态工作流
func (o *Orchestrator) CleanupWorkflows(maxAge time.Duration) int {
	return o.registry.Cleanup(maxAge)
}

// Watch 将新的追踪事件和总线消息转发给回调，
// 设置关联ID时按其过滤。返回的 stop 函数
// 取消两处订阅。
func (o *Orchestrator) Watch(correlationID string, onEvent func(*trace.Event), onMessage func(*messaging.Message)) (stop func()) {
	listenerID := o.log.AddListener(func(event *trace.Event) error {
		if correlationID == "" || event.CorrelationID == correlationID {
			onEvent(event)
		}
		return nil
	})
	subscriptionID := o.bus.Subscribe(messaging.WildcardTopic, func(msg *messaging.Message) error {
		if correlationID == "" || msg.CorrelationID == correlationID {
			onMessage(msg)
		}
		return nil
	})
	return func() {
		o.log.RemoveListener(listenerID)
		o.bus.Unsubscribe(messaging.WildcardTopic, subscriptionID)
	}
}
