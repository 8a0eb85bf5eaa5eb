package plan

import (
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// Kind 计划对应的请求类型
type Kind string

const (
	KindSiteEvaluation      Kind = "site-evaluation"
	KindNetworkOptimization Kind = "network-optimization"
	KindPermitCrisis        Kind = "permit-crisis"
)

// StepType 步骤类型
type StepType string

const (
	StepAgent      StepType = "agent"
	StepSynthesis  StepType = "synthesis"
	StepEvaluate   StepType = "evaluate"
	StepRank       StepType = "rank"
	StepSelect     StepType = "select"
	StepAssessment StepType = "assessment"
)

// Mode 阶段内步骤的执行方式
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// DefaultStepTimeout 智能体步骤的默认超时
const DefaultStepTimeout = 3 * time.Second

// Step 计划中的一个步骤
type Step struct {
	Name      string
	Type      StepType
	Dimension agent.Dimension
	Required  bool
	Timeout   time.Duration
	// PerSite 对请求中的每个站点各执行一次
	PerSite bool
}

// Count 对n个站点的请求该步骤贡献的步骤数
func (s Step) Count(sites int) int {
	if s.PerSite && sites > 1 {
		return sites
	}
	return 1
}

// Stage 有序的步骤组
type Stage struct {
	Mode  Mode
	Steps []Step
}

// Plan 某类请求的有序阶段
type Plan struct {
	kind    Kind
	stages  []Stage
	weights synthesis.Weights
}

func (p *Plan) Kind() Kind { return p.kind }

// Stages 复制阶段
func (p *Plan) Stages() []Stage {
	stages := make([]Stage, len(p.stages))
	for i, stage := range p.stages {
		stages[i] = Stage{Mode: stage.Mode, Steps: append([]Step(nil), stage.Steps...)}
	}
	return stages
}

// Weights 综合权重，不做综合的计划返回 nil
func (p *Plan) Weights() synthesis.Weights {
	if p.weights == nil {
		return nil
	}
	return p.weights.Clone()
}

// Steps 按执行顺序的所有步骤
func (p *Plan) Steps() []Step {
	var steps []Step
	for _, stage := range p.stages {
		steps = append(steps, stage.Steps...)
	}
	return steps
}

// Step 按名称查找步骤
func (p *Plan) Step(name string) (Step, bool) {
	for _, stage := range p.stages {
		for _, step := range stage.Steps {
			if step.Name == name {
				return step, true
			}
		}
	}
	return Step{}, false
}

// AgentSteps 调用专家智能体的步骤
func (p *Plan) AgentSteps() []Step {
	var steps []Step
	for _, step := range p.Steps() {
		if step.Type == StepAgent {
			steps = append(steps, step)
		}
	}
	return steps
}

// TotalSteps n个站点的请求计划的步骤总数
func (p *Plan) TotalSteps(sites int) int {
	total := 0
	for _, step := range p.Steps() {
		total += step.Count(sites)
	}
	return total
}
