package plan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// StepOverride 单个步骤可调整的字段
type StepOverride struct {
	Timeout  string `yaml:"timeout"`
	Required *bool  `yaml:"required"`
}

// PlanOverride 单个计划的调整
type PlanOverride struct {
	Steps   map[string]StepOverride `yaml:"steps"`
	Weights map[string]float64      `yaml:"weights"`
}

// Overrides plans.yaml 的内容
//
//	plans:
//	  site-evaluation:
//	    steps:
//	      market: {timeout: 5s, required: true}
//	    weights:
//	      financial: 0.4
type Overrides struct {
	Plans map[Kind]PlanOverride `yaml:"plans"`
}

// ParseOverrides 解析YAML覆盖配置
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, NewPlanErrorf(ErrInvalidPlan, "parse plan overrides: %v", err)
	}
	return &o, nil
}

// LoadOverrides 读取 plans.yaml 文件
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan overrides %s: %w", path, err)
	}
	return ParseOverrides(data)
}

// Apply 返回应用覆盖后的新目录，并重新校验每个计划。
// 计划的权重合并到已有权重之上。
func (c *Catalog) Apply(o *Overrides) (*Catalog, error) {
	if o == nil {
		return c, nil
	}
	for kind := range o.Plans {
		if _, ok := c.plans[kind]; !ok {
			return nil, NewPlanErrorf(ErrUnknownKind, "override for unknown plan %q", kind)
		}
	}

	out := &Catalog{plans: make(map[Kind]*Plan, len(c.plans))}
	for kind, p := range c.plans {
		override, ok := o.Plans[kind]
		if !ok {
			out.plans[kind] = p
			continue
		}
		updated, err := override.apply(p)
		if err != nil {
			return nil, err
		}
		out.plans[kind] = updated
	}
	return out, nil
}

func (po PlanOverride) apply(p *Plan) (*Plan, error) {
	updated := &Plan{kind: p.kind, stages: p.Stages(), weights: p.Weights()}

	for name, so := range po.Steps {
		found := false
		for i := range updated.stages {
			for j := range updated.stages[i].Steps {
				step := &updated.stages[i].Steps[j]
				if step.Name != name {
					continue
				}
				found = true
				if so.Timeout != "" {
					d, err := time.ParseDuration(so.Timeout)
					if err != nil || d <= 0 {
						return nil, NewPlanErrorf(ErrInvalidPlan, "plan %s step %s: invalid timeout %q", p.kind, name, so.Timeout)
					}
					step.Timeout = d
				}
				if so.Required != nil {
					step.Required = *so.Required
				}
			}
		}
		if !found {
			return nil, NewPlanErrorf(ErrInvalidPlan, "plan %s has no step %q", p.kind, name)
		}
	}

	if len(po.Weights) > 0 {
		if updated.weights == nil {
			updated.weights = synthesis.Weights{}
		}
		for name, w := range po.Weights {
			d := agent.Dimension(name)
			if !d.Valid() {
				return nil, NewPlanErrorf(ErrInvalidPlan, "plan %s: unknown dimension %q in weights", p.kind, name)
			}
			updated.weights[d] = w
		}
	}

	if err := Validate(updated); err != nil {
		return nil, err
	}
	return updated, nil
}
