package plan

import (
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// Builder 逐阶段构建计划
type Builder interface {
	AddSequential(step Step) Builder
	AddParallel(steps ...Step) Builder
	SetWeights(weights synthesis.Weights) Builder
	Build() (*Plan, error)
}

type builder struct {
	kind    Kind
	stages  []Stage
	weights synthesis.Weights
}

// NewBuilder 创建计划构建器
func NewBuilder(kind Kind) Builder {
	return &builder{kind: kind}
}

// AgentStep 以维度命名的智能体步骤
func AgentStep(dimension agent.Dimension, required bool, timeout time.Duration) Step {
	return Step{
		Name:      string(dimension),
		Type:      StepAgent,
		Dimension: dimension,
		Required:  required,
		Timeout:   timeout,
	}
}

// InternalStep 由编排器自身执行的步骤
func InternalStep(stepType StepType) Step {
	return Step{Name: string(stepType), Type: stepType, Required: true}
}

// AddSequential 添加单步骤阶段
func (b *builder) AddSequential(step Step) Builder {
	b.stages = append(b.stages, Stage{Mode: ModeSequential, Steps: []Step{step}})
	return b
}

// AddParallel 添加汇合阶段
func (b *builder) AddParallel(steps ...Step) Builder {
	b.stages = append(b.stages, Stage{Mode: ModeParallel, Steps: append([]Step(nil), steps...)})
	return b
}

// SetWeights 设置综合权重
func (b *builder) SetWeights(weights synthesis.Weights) Builder {
	b.weights = weights.Clone()
	return b
}

// Build 校验并返回计划
func (b *builder) Build() (*Plan, error) {
	p := &Plan{kind: b.kind, weights: b.weights}
	for _, stage := range b.stages {
		p.stages = append(p.stages, Stage{Mode: stage.Mode, Steps: append([]Step(nil), stage.Steps...)})
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 校验阶段结构、步骤名称和维度
func Validate(p *Plan) error {
	if p.kind == "" {
		return NewPlanError("plan kind is required")
	}
	if len(p.stages) == 0 {
		return NewPlanErrorf(ErrInvalidPlan, "plan %s has no stages", p.kind)
	}

	names := make(map[string]bool)
	synthesizes := false
	for i, stage := range p.stages {
		switch stage.Mode {
		case ModeSequential:
			if len(stage.Steps) != 1 {
				return NewPlanErrorf(ErrInvalidPlan, "plan %s stage %d: sequential stage needs exactly one step", p.kind, i)
			}
		case ModeParallel:
			if len(stage.Steps) == 0 {
				return NewPlanErrorf(ErrInvalidPlan, "plan %s stage %d: empty parallel stage", p.kind, i)
			}
		default:
			return NewPlanErrorf(ErrInvalidPlan, "plan %s stage %d: unknown mode %q", p.kind, i, stage.Mode)
		}

		for _, step := range stage.Steps {
			if step.Name == "" {
				return NewPlanErrorf(ErrInvalidPlan, "plan %s stage %d: step without a name", p.kind, i)
			}
			if names[step.Name] {
				return NewPlanErrorf(ErrInvalidPlan, "plan %s: duplicate step %s", p.kind, step.Name)
			}
			names[step.Name] = true

			switch step.Type {
			case StepAgent:
				if !step.Dimension.Valid() {
					return NewPlanErrorf(ErrInvalidPlan, "plan %s step %s: unknown dimension %q", p.kind, step.Name, step.Dimension)
				}
				if step.Timeout <= 0 {
					return NewPlanErrorf(ErrInvalidPlan, "plan %s step %s: timeout must be positive", p.kind, step.Name)
				}
			case StepSynthesis:
				synthesizes = true
			case StepEvaluate, StepRank, StepSelect, StepAssessment:
			default:
				return NewPlanErrorf(ErrInvalidPlan, "plan %s step %s: unknown type %q", p.kind, step.Name, step.Type)
			}
		}
	}

	if synthesizes {
		if len(p.weights) == 0 {
			return NewPlanErrorf(ErrInvalidPlan, "plan %s synthesizes without weights", p.kind)
		}
		if err := p.weights.Validate(); err != nil {
			return NewPlanErrorf(ErrInvalidPlan, "plan %s: %v", p.kind, err)
		}
	}
	return nil
}
