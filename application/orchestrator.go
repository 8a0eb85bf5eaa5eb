// Package application 将智能体编排为站点评估、网络优化
// 和许可危机工作流
package application

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/plan"
	"github.com/XXueTu/site_orchestrator/domain/retry"
	"github.com/XXueTu/site_orchestrator/domain/selection"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// 组合评估扇出的默认值
const (
	DefaultBatchSize      = 10
	DefaultMaxConcurrency = 10
)

// 各计划类型的工作流ID前缀
var workflowPrefixes = map[plan.Kind]string{
	plan.KindSiteEvaluation:      "WF-SITE-EVAL-",
	plan.KindNetworkOptimization: "WF-NETWORK-OPT-",
	plan.KindPermitCrisis:        "WF-PERMIT-CRISIS-",
}

// Option 编排器配置选项
type Option func(*Orchestrator)

// WithClock 设置处理耗时和重试等待的时间源
func WithClock(clock agent.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRetryPolicy 重试失败的智能体步骤
func WithRetryPolicy(policy *retry.Config) Option {
	return func(o *Orchestrator) {
		if policy != nil {
			o.retryPolicy = policy
		}
	}
}

// WithBatchSize 优化时每批评估的候选数
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxConcurrency 批内并发评估数
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithObjective 设置默认目标；scorer 非空时替换
// 内置排序
func WithObjective(objective selection.Objective, scorer selection.Scorer) Option {
	return func(o *Orchestrator) {
		o.objective = objective
		if scorer != nil {
			o.scorers[objective] = scorer
		}
	}
}

// WithLogger 记录工作流日志
func WithLogger(l logger.LoggerService) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithWeights 覆盖所有计划的综合权重
func WithWeights(weights synthesis.Weights) Option {
	return func(o *Orchestrator) {
		o.weights = weights.Clone()
	}
}

// Orchestrator 在智能体集合上执行计划，并通过
// 追踪日志、消息总线和工作流注册表上报
type Orchestrator struct {
	log      trace.Log
	bus      messaging.Bus
	registry workflow.Registry
	catalog  *plan.Catalog
	agents   agent.Set

	clock          agent.Clock
	retryPolicy    *retry.Config
	retryStats     retry.Statistics
	batchSize      int
	maxConcurrency int
	objective      selection.Objective
	scorers        map[selection.Objective]selection.Scorer
	logger         logger.LoggerService
	weights        synthesis.Weights

	stats orchestratorStats
	mutex sync.RWMutex
}

type orchestratorStats struct {
	requestsProcessed  int64
	totalAgentsInvoked int64
	avgResponseTimeMs  float64
}

// NewOrchestrator 使用显式依赖创建编排器
func NewOrchestrator(log trace.Log, bus messaging.Bus, registry workflow.Registry, catalog *plan.Catalog, agents agent.Set, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:            log,
		bus:            bus,
		registry:       registry,
		catalog:        catalog,
		agents:         agents,
		clock:          agent.SystemClock{},
		retryPolicy:    retry.DefaultConfig(),
		batchSize:      DefaultBatchSize,
		maxConcurrency: DefaultMaxConcurrency,
		objective:      selection.ObjectiveBalanced,
		scorers:        make(map[selection.Objective]selection.Scorer),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// newWorkflowID WF-<KIND>-<8位十六进制>
func newWorkflowID(kind plan.Kind) string {
	prefix, ok := workflowPrefixes[kind]
	if !ok {
		prefix = "WF-"
	}
	return prefix + uuid.NewString()[:8]
}

// resolve 查找计划，类型不存在时返回 PlanConstructionError
func (o *Orchestrator) resolve(kind plan.Kind) (*plan.Plan, *OrchestrationError) {
	p, err := o.catalog.Lookup(kind)
	if err != nil {
		return nil, NewOrchestrationErrorf(KindPlanConstructionError, err, "%v", err)
	}
	for _, step := range p.AgentSteps() {
		if _, ok := o.agents[step.Dimension]; !ok {
			e := NewOrchestrationErrorf(KindPlanConstructionError, nil, "no agent serves dimension %s", step.Dimension)
			e.Step = step.Name
			return nil, e
		}
	}
	return p, nil
}

// synthesisWeights 优先选项权重，其次计划权重，最后默认值
func (o *Orchestrator) synthesisWeights(p *plan.Plan) synthesis.Weights {
	if len(o.weights) > 0 {
		return o.weights.Clone()
	}
	if w := p.Weights(); len(w) > 0 {
		return w
	}
	return synthesis.DefaultWeights()
}

// scorer 目标的自定义评分器或内置评分器
func (o *Orchestrator) scorer(objective selection.Objective) (selection.Scorer, error) {
	if s, ok := o.scorers[objective]; ok {
		return s, nil
	}
	return selection.ScorerFor(objective)
}

// recordRequest 更新计数，avg = (avg*(n-1) + t) / n
func (o *Orchestrator) recordRequest(processingMs int64, invocations int64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stats.requestsProcessed++
	o.stats.totalAgentsInvoked += invocations
	n := float64(o.stats.requestsProcessed)
	o.stats.avgResponseTimeMs = (o.stats.avgResponseTimeMs*(n-1) + float64(processingMs)) / n
}

// registerWorkflowSteps 注册工作流，注册表拒绝时返回计划错误
func (o *Orchestrator) registerWorkflowSteps(id string, kind plan.Kind, totalSteps int) *OrchestrationError {
	if _, err := o.registry.Register(id, string(kind), totalSteps); err != nil {
		return NewOrchestrationErrorf(KindPlanConstructionError, err, "register workflow: %v", err)
	}
	return nil
}

// advance 累加完成步骤；溢出记录日志并由注册表截断
func (o *Orchestrator) advance(id string, n int) {
	if n <= 0 {
		return
	}
	if err := o.registry.Advance(id, n); err != nil {
		log.Printf("[orchestrator] advance %s: %v", id, err)
	}
}

// complete 标记完成
func (o *Orchestrator) complete(id string) {
	if err := o.registry.Complete(id); err != nil {
		log.Printf("[orchestrator] complete %s: %v", id, err)
	}
}

// fail 标记失败并发出错误事件
func (o *Orchestrator) fail(id, parentID string, e *OrchestrationError) {
	o.emitError(id, parentID, e)
	if err := o.registry.Fail(id, string(e.Kind), e.Message); err != nil {
		log.Printf("[orchestrator] fail %s: %v", id, err)
	}
}

// elapsedMs 按编排器时钟计算的耗时毫秒数
func (o *Orchestrator) elapsedMs(start time.Time) int64 {
	return o.clock.Now().Sub(start).Milliseconds()
}

// OrchestratorStats 编排器请求计数
type OrchestratorStats struct {
	OrchestratorID        string   `json:"orchestrator_id"`
	RequestsProcessed     int64    `json:"requests_processed"`
	TotalAgentsInvoked    int64    `json:"total_agents_invoked"`
	AverageResponseTimeMs float64  `json:"average_response_time_ms"`
	ActiveWorkflows       int      `json:"active_workflows"`
	AvailableAgents       []string `json:"available_agents"`
}

// Statistics 编排器、注册表、总线和追踪日志的汇总视图
type Statistics struct {
	Orchestrator OrchestratorStats   `json:"orchestrator"`
	Workflows    workflow.Statistics `json:"workflows"`
	Retries      retry.Snapshot      `json:"retries"`
	Bus          messaging.Stats     `json:"bus"`
	Events       trace.Metrics       `json:"events"`
	Timestamp    time.Time           `json:"timestamp"`
}

// GetStatistics 获取统计快照
func (o *Orchestrator) GetStatistics() Statistics {
	workflows := o.registry.Statistics()

	o.mutex.RLock()
	stats := OrchestratorStats{
		OrchestratorID:        OrchestratorID,
		RequestsProcessed:     o.stats.requestsProcessed,
		TotalAgentsInvoked:    o.stats.totalAgentsInvoked,
		AverageResponseTimeMs: o.stats.avgResponseTimeMs,
		ActiveWorkflows:       workflows.ActiveWorkflows,
		AvailableAgents:       o.agents.IDs(),
	}
	o.mutex.RUnlock()

	return Statistics{
		Orchestrator: stats,
		Workflows:    workflows,
		Retries:      o.retryStats.Snapshot(),
		Bus:          o.bus.Stats(),
		Events:       o.log.Metrics(),
		Timestamp:    o.clock.Now().UTC(),
	}
}

// String 日志用简短描述
func (o *Orchestrator) String() string {
	return fmt.Sprintf("orchestrator(%d agents, plans %v)", len(o.agents), o.catalog.Kinds())
}
