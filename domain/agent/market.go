package agent

import (
	"context"
	"math"
)

const MarketAgentID = "market-intelligence-001"

// 跨智能体读取的指标键
const (
	MetricEVRegistrations = "total_ev_registrations"
	MetricDailyTraffic    = "avg_daily_traffic"
	MetricDailySessions   = "daily_sessions"
	MetricTimelineDays    = "total_days"
	MetricTotalFeesInr    = "total_fees_inr"
)

// 位置步骤不可用时的默认值
const (
	defaultDailyTraffic    = 10000
	defaultEVRegistrations = 20000
)

// Market 评估竞争、需求和增长
type Market struct {
	runtime     Runtime
	competitors CompetitorDatabase
}

// NewMarket 创建市场情报智能体
func NewMarket(competitors CompetitorDatabase, opts ...Option) *Market {
	return &Market{
		runtime:     NewRuntime(opts...),
		competitors: competitors,
	}
}

func (m *Market) ID() string           { return MarketAgentID }
func (m *Market) Dimension() Dimension { return DimensionMarket }

// Analyze 市场得分 = competition (40) + demand (40) + growth (20)
func (m *Market) Analyze(ctx context.Context, req *Request) (*Result, error) {
	site := req.Site

	scan, err := Call(ctx, m.runtime, m.ID(), req, SystemCompetitor,
		map[string]any{"query": "nearby_competitors", "radius_km": 5.0},
		func(ctx context.Context) (*CompetitorScan, error) {
			return m.competitors.NearbyCompetitors(ctx, site, 5)
		})
	if err != nil {
		return nil, err
	}

	pricing, err := Call(ctx, m.runtime, m.ID(), req, SystemCompetitor,
		map[string]any{"query": "pricing_intelligence", "city": site.City},
		func(ctx context.Context) (*PricingIntelligence, error) {
			return m.competitors.PricingIntelligence(ctx, site.City)
		})
	if err != nil {
		return nil, err
	}

	traffic, evCount := trafficAndRegistrations(req)
	sessions := forecastSessions(traffic, evCount, scan.CompetitorsFound)

	competitionScore := math.Max(0, 40-float64(scan.CompetitorsFound)*12)
	demandScore := math.Min(40, sessions/100*40)
	growthScore := math.Min(20, pricing.DemandGrowthPct/50*20)
	score := round2(competitionScore + demandScore + growthScore)

	return &Result{
		AgentID:    m.ID(),
		Dimension:  DimensionMarket,
		Score:      score,
		Confidence: round2(pricing.ForecastConfidence),
		Rationale:  marketRecommendation(scan.CompetitorsFound, sessions),
		Metrics: map[string]any{
			"competitors_found":   scan.CompetitorsFound,
			"market_saturation":   scan.MarketSaturation,
			MetricDailySessions:   sessions,
			"daily_revenue_inr":   math.Round(sessions * 250),
			"annual_sessions":     math.Round(sessions * 365),
			"growth_rate_yoy_pct": round2(pricing.DemandGrowthPct),
			"avg_price_inr_kwh":   round2(pricing.AvgPriceInrKwh),
			"competition_score":   round2(competitionScore),
			"demand_score":        round2(demandScore),
			"growth_score":        round2(growthScore),
			"location_available":  hasLocation(req),
		},
	}, nil
}

// forecastSessions 扣除竞争分流后的日充电次数，最低 20
func forecastSessions(traffic, evCount float64, competitors int) float64 {
	capture := 1.0 - float64(competitors)*0.15
	sessions := traffic * 0.15 * (evCount / 100000) * capture
	return math.Round(math.Max(20, sessions))
}

// trafficAndRegistrations 读取位置步骤的输入，缺失时使用默认值
func trafficAndRegistrations(req *Request) (traffic, evCount float64) {
	traffic, evCount = defaultDailyTraffic, defaultEVRegistrations
	location, ok := req.UpstreamResult(DimensionLocation)
	if !ok {
		return traffic, evCount
	}
	if v, ok := location.Metric(MetricDailyTraffic); ok {
		traffic = v
	}
	if v, ok := location.Metric(MetricEVRegistrations); ok {
		evCount = v
	}
	return traffic, evCount
}

func hasLocation(req *Request) bool {
	_, ok := req.UpstreamResult(DimensionLocation)
	return ok
}

func marketRecommendation(competitors int, sessions float64) string {
	switch {
	case competitors == 0 && sessions > 80:
		return "Excellent market opportunity - First mover advantage"
	case competitors <= 1 && sessions > 60:
		return "Strong market potential - Good demand with low competition"
	case competitors <= 2 && sessions > 40:
		return "Moderate market - Sufficient demand despite competition"
	default:
		return "Challenging market - High competition or low demand"
	}
}
