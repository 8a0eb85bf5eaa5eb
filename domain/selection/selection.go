package selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// Objective 组合优化的排序目标
type Objective string

const (
	ObjectiveMaximizeROI      Objective = "maximize-roi"
	ObjectiveMaximizeCoverage Objective = "maximize-coverage"
	ObjectiveBalanced         Objective = "balanced"
	ObjectiveScripted         Objective = "scripted"
)

// 评估缺少财务数据时的兜底值
const (
	DefaultCapexInr        = 3000000.0
	DefaultRevenueYear1Inr = 2000000.0
)

// ParseObjective 接受规范名称和下划线别名，为空时为 balanced
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ObjectiveBalanced):
		return ObjectiveBalanced, nil
	case string(ObjectiveMaximizeROI), "max_roi", "maximize_roi":
		return ObjectiveMaximizeROI, nil
	case string(ObjectiveMaximizeCoverage), "max_coverage", "maximize_coverage":
		return ObjectiveMaximizeCoverage, nil
	case string(ObjectiveScripted):
		return ObjectiveScripted, nil
	default:
		return "", fmt.Errorf("unknown optimization objective %q", s)
	}
}

// Candidate 参与预算竞争的已评估站点
type Candidate struct {
	// Index 在请求中的位置
	Index      int
	Site       agent.Site
	Evaluation *synthesis.Result
}

// Score 维度得分，不可用时为零
func (c Candidate) Score(d agent.Dimension) float64 {
	if c.Evaluation == nil {
		return 0
	}
	s, _ := c.Evaluation.Score(d)
	return s
}

// CapexInr 投资成本，未知时为 DefaultCapexInr
func (c Candidate) CapexInr() float64 {
	if c.Evaluation == nil || c.Evaluation.Financials == nil || c.Evaluation.Financials.CapexInr <= 0 {
		return DefaultCapexInr
	}
	return c.Evaluation.Financials.CapexInr
}

// RevenueYear1Inr 首年收入，未知时为 DefaultRevenueYear1Inr
func (c Candidate) RevenueYear1Inr() float64 {
	if c.Evaluation == nil || c.Evaluation.Financials == nil || c.Evaluation.Financials.RevenueYear1Inr <= 0 {
		return DefaultRevenueYear1Inr
	}
	return c.Evaluation.Financials.RevenueYear1Inr
}

// NpvInr 净现值，未知时为零
func (c Candidate) NpvInr() float64 {
	if c.Evaluation == nil {
		return 0
	}
	return c.Evaluation.NPV()
}

// Scorer 计算候选的排序得分
type Scorer interface {
	Score(c Candidate) (float64, error)
}

// ScorerFunc 函数适配为 Scorer
type ScorerFunc func(c Candidate) (float64, error)

func (f ScorerFunc) Score(c Candidate) (float64, error) { return f(c) }

// WeightedScorer 维度得分的线性组合，缺失维度按零计
func WeightedScorer(weights map[agent.Dimension]float64) Scorer {
	return ScorerFunc(func(c Candidate) (float64, error) {
		total := 0.0
		for _, d := range agent.Dimensions() {
			total += c.Score(d) * weights[d]
		}
		return total, nil
	})
}

// ScorerFor 目标的内置评分器。scripted 目标需要
// 外部评分器，这里直接拒绝。
func ScorerFor(objective Objective) (Scorer, error) {
	switch objective {
	case ObjectiveMaximizeROI:
		return WeightedScorer(map[agent.Dimension]float64{
			agent.DimensionFinancial: 0.7,
			agent.DimensionLocation:  0.3,
		}), nil
	case ObjectiveMaximizeCoverage:
		return WeightedScorer(map[agent.Dimension]float64{
			agent.DimensionLocation: 0.6,
			agent.DimensionMarket:   0.4,
		}), nil
	case ObjectiveBalanced:
		return WeightedScorer(map[agent.Dimension]float64{
			agent.DimensionLocation:   0.3,
			agent.DimensionFinancial:  0.3,
			agent.DimensionMarket:     0.2,
			agent.DimensionRegulatory: 0.2,
		}), nil
	default:
		return nil, fmt.Errorf("objective %q has no built-in scorer", objective)
	}
}

// Ranked 带排序得分的候选
type Ranked struct {
	Candidate
	RankScore float64
}

// Rank 为候选打分并按得分从高到低排序，同分保持原顺序
func Rank(candidates []Candidate, scorer Scorer) ([]Ranked, error) {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		score, err := scorer.Score(c)
		if err != nil {
			return nil, fmt.Errorf("rank %s: %w", c.Site.SiteID, err)
		}
		ranked = append(ranked, Ranked{Candidate: c, RankScore: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore > ranked[j].RankScore
	})
	return ranked, nil
}

// Select 按排序贪心选择。超出剩余预算的候选
// 直接跳过，不回溯。
func Select(ranked []Ranked, budgetInr float64, target int) []Ranked {
	selected := make([]Ranked, 0)
	remaining := budgetInr
	for _, r := range ranked {
		if len(selected) >= target || remaining <= 0 {
			break
		}
		capex := r.CapexInr()
		if capex > remaining {
			continue
		}
		selected = append(selected, r)
		remaining -= capex
	}
	return selected
}

// NetworkMetrics 选中组合的汇总视图
type NetworkMetrics struct {
	SitesSelected        int     `json:"sites_selected"`
	TotalCapexInr        float64 `json:"total_capex_inr"`
	TotalRevenueYear1Inr float64 `json:"total_revenue_year1_inr"`
	NetworkNpvInr        float64 `json:"network_npv_inr"`
	CoverageCities       int     `json:"coverage_cities"`
	AvgSiteScore         float64 `json:"avg_site_score"`
	BudgetRemainingInr   float64 `json:"budget_remaining_inr"`
	Recommendation       string  `json:"recommendation"`
}

// Summarize 计算选中组合的网络指标
func Summarize(selected []Ranked, budgetInr float64) NetworkMetrics {
	m := NetworkMetrics{SitesSelected: len(selected)}
	cities := make(map[string]bool)
	scoreSum := 0.0
	for _, r := range selected {
		m.TotalCapexInr += r.CapexInr()
		m.TotalRevenueYear1Inr += r.RevenueYear1Inr()
		m.NetworkNpvInr += r.NpvInr()
		cities[r.Site.City] = true
		scoreSum += r.RankScore
	}
	m.CoverageCities = len(cities)
	if len(selected) > 0 {
		m.AvgSiteScore = scoreSum / float64(len(selected))
	}
	m.BudgetRemainingInr = budgetInr - m.TotalCapexInr
	m.Recommendation = NetworkRecommendation(m.NetworkNpvInr, m.SitesSelected)
	return m
}

// NetworkRecommendation 根据NPV和规模给出组合结论
func NetworkRecommendation(npvInr float64, sites int) string {
	switch {
	case npvInr > 50000000 && sites >= 30:
		return "Excellent network configuration - Strong portfolio"
	case npvInr > 25000000 && sites >= 20:
		return "Good network configuration - Solid foundation"
	case npvInr > 10000000:
		return "Acceptable network - Meets minimum criteria"
	default:
		return "Weak network configuration - Consider revisions"
	}
}
