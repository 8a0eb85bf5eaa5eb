package agent

import (
	"context"
	"math"
)

const FinancialAgentID = "financial-analysis-001"

const (
	projectionYears    = 7
	discountRate       = 0.12
	yearOneUtilization = 0.60

	// PaybackBeyondHorizon 累计现金流始终无法覆盖投资时的回收期
	PaybackBeyondHorizon = 10
)

// revenueGrowth 相对首年收入的逐年增长倍数
var revenueGrowth = [projectionYears]float64{1, 1.15, 1.32, 1.52, 1.75, 2.01, 2.31}

// Financial 预测收入并计算 NPV、IRR 和回收期
type Financial struct {
	runtime Runtime
	finance FinancialSystem
}

// NewFinancial 创建财务分析智能体
func NewFinancial(finance FinancialSystem, opts ...Option) *Financial {
	return &Financial{
		runtime: NewRuntime(opts...),
		finance: finance,
	}
}

func (f *Financial) ID() string           { return FinancialAgentID }
func (f *Financial) Dimension() Dimension { return DimensionFinancial }

// Analyze 财务得分 = npv (40) + irr (40) + payback (20)
func (f *Financial) Analyze(ctx context.Context, req *Request) (*Result, error) {
	site := req.Site

	cost, err := Call(ctx, f.runtime, f.ID(), req, SystemFinancial,
		map[string]any{"site_type": site.Position(), "capacity_kw": site.CapacityKw()},
		func(ctx context.Context) (*CostEstimate, error) {
			return f.finance.CostEstimates(ctx, site)
		})
	if err != nil {
		return nil, err
	}
	if cost.CapexTotalInr <= 0 {
		return nil, NewErrorf(f.ID(), nil, "cost estimate for %s has no capex", site.SiteID)
	}

	traffic, evCount := trafficAndRegistrations(req)
	revenue := ProjectRevenue(traffic, evCount, cost.RevenuePerSessionInr)
	model := Evaluate(cost.CapexTotalInr, cost.OpexAnnualInr, revenue)
	score := FinancialScore(model)

	return &Result{
		AgentID:    f.ID(),
		Dimension:  DimensionFinancial,
		Score:      score,
		Confidence: 0.8,
		Rationale:  financialRecommendation(model),
		Metrics: map[string]any{
			"capex_land_inr":            math.Round(cost.LandCostInr),
			"capex_equipment_inr":       math.Round(cost.EquipmentCostInr),
			"capex_civil_inr":           math.Round(cost.CivilWorkInr),
			"capex_grid_connection_inr": math.Round(cost.GridConnectionInr),
			"revenue_per_session_inr":   round2(cost.RevenuePerSessionInr),
			"revenue_year7_inr":         revenue[projectionYears-1],
			"capacity_kw":               cost.CapacityKw,
		},
		Financials: &Financials{
			CapexInr:        math.Round(cost.CapexTotalInr),
			OpexAnnualInr:   math.Round(cost.OpexAnnualInr),
			NpvInr:          model.NpvInr,
			IrrPct:          model.IrrPct,
			PaybackYears:    model.PaybackYears,
			RevenueYear1Inr: revenue[0],
		},
	}, nil
}

// ProjectRevenue 七年收入预测，取整到卢比
func ProjectRevenue(traffic, evCount, revenuePerSession float64) [projectionYears]float64 {
	dailySessions := traffic * 0.15 * (evCount / 100000)
	yearOne := dailySessions * 365 * revenuePerSession * yearOneUtilization

	var projection [projectionYears]float64
	for i, growth := range revenueGrowth {
		projection[i] = math.Round(yearOne * growth)
	}
	return projection
}

// InvestmentModel 现金流模型结果
type InvestmentModel struct {
	NpvInr       float64
	IrrPct       float64
	PaybackYears int
}

// Evaluate 按 12% 折现计算 NPV、近似 IRR 和回收年份。
// IRR 为 ((Σ 净现金流 / capex)^(1/7) - 1) * 100，并非求解的收益率；
// 净现金流总和不为正时为 -100。
func Evaluate(capex, opexAnnual float64, revenue [projectionYears]float64) InvestmentModel {
	npv := -capex
	total := 0.0
	cumulative := 0.0
	payback := 0
	for year := 1; year <= projectionYears; year++ {
		net := revenue[year-1] - opexAnnual
		npv += net / math.Pow(1+discountRate, float64(year))
		total += net
		cumulative += net
		if payback == 0 && cumulative >= capex {
			payback = year
		}
	}
	if payback == 0 {
		payback = PaybackBeyondHorizon
	}

	irr := -100.0
	if total > 0 && capex > 0 {
		irr = (math.Pow(total/capex, 1.0/projectionYears) - 1) * 100
	}

	return InvestmentModel{
		NpvInr:       math.Round(npv),
		IrrPct:       round2(irr),
		PaybackYears: payback,
	}
}

// FinancialScore 将模型映射到 0..100
func FinancialScore(m InvestmentModel) float64 {
	npvScore := 0.0
	if m.NpvInr > 0 {
		npvScore = math.Min(40, m.NpvInr/10000000*40)
	}
	irrScore := 0.0
	if m.IrrPct > 0 {
		irrScore = math.Min(40, m.IrrPct/30*40)
	}
	paybackScore := math.Max(0, 20-float64(m.PaybackYears)*3)
	return round2(npvScore + irrScore + paybackScore)
}

func financialRecommendation(m InvestmentModel) string {
	switch {
	case m.NpvInr > 5000000 && m.IrrPct > 20:
		return "Highly attractive investment - Strong ROI"
	case m.NpvInr > 2000000 && m.IrrPct > 15:
		return "Good investment - Positive returns expected"
	case m.NpvInr > 0 && m.IrrPct > 12:
		return "Acceptable investment - Meets minimum thresholds"
	default:
		return "Poor investment - Below required returns"
	}
}
