package plan

import (
	"sort"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// Catalog 请求类型到计划的静态映射，启动时解析
type Catalog struct {
	plans map[Kind]*Plan
}

// NewCatalog 创建目录，每种类型只能出现一次
func NewCatalog(plans ...*Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Kind]*Plan, len(plans))}
	for _, p := range plans {
		if p == nil {
			return nil, NewPlanError("nil plan")
		}
		if _, exists := c.plans[p.kind]; exists {
			return nil, NewPlanErrorf(ErrInvalidPlan, "duplicate plan for %s", p.kind)
		}
		c.plans[p.kind] = p
	}
	return c, nil
}

// Lookup 获取类型对应的计划
func (c *Catalog) Lookup(kind Kind) (*Plan, error) {
	p, ok := c.plans[kind]
	if !ok {
		return nil, NewPlanErrorf(ErrUnknownKind, "no plan for request kind %q", kind)
	}
	return p, nil
}

// Kinds 已注册类型，已排序
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.plans))
	for kind := range c.plans {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SiteEvaluation 位置，然后市场和财务汇合，然后监管，最后综合
func SiteEvaluation() *Plan {
	p, err := NewBuilder(KindSiteEvaluation).
		AddSequential(AgentStep(agent.DimensionLocation, true, DefaultStepTimeout)).
		AddParallel(
			AgentStep(agent.DimensionMarket, false, DefaultStepTimeout),
			AgentStep(agent.DimensionFinancial, false, DefaultStepTimeout),
		).
		AddSequential(AgentStep(agent.DimensionRegulatory, true, DefaultStepTimeout)).
		AddSequential(InternalStep(StepSynthesis)).
		SetWeights(synthesis.DefaultWeights()).
		Build()
	if err != nil {
		panic(err)
	}
	return p
}

// NetworkOptimization 每个候选执行一次站点评估，然后排序和选择
func NetworkOptimization() *Plan {
	evaluate := InternalStep(StepEvaluate)
	evaluate.Required = false
	evaluate.PerSite = true

	p, err := NewBuilder(KindNetworkOptimization).
		AddParallel(evaluate).
		AddSequential(InternalStep(StepRank)).
		AddSequential(InternalStep(StepSelect)).
		Build()
	if err != nil {
		panic(err)
	}
	return p
}

// PermitCrisis 对每个受影响站点做监管分析，然后评估
func PermitCrisis() *Plan {
	regulatory := AgentStep(agent.DimensionRegulatory, false, DefaultStepTimeout)
	regulatory.PerSite = true

	p, err := NewBuilder(KindPermitCrisis).
		AddParallel(regulatory).
		AddSequential(InternalStep(StepAssessment)).
		Build()
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultCatalog 内置计划
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(SiteEvaluation(), NetworkOptimization(), PermitCrisis())
	if err != nil {
		panic(err)
	}
	return c
}
