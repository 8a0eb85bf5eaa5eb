package agent

import (
	"context"
	"math"
	"sync"
)

const GeographicAgentID = "geographic-intelligence-001"

// Geographic 根据车辆注册、人口和交通评估位置
type Geographic struct {
	runtime  Runtime
	vehicles VehicleRegistry
	census   CensusDatabase
	traffic  TrafficSystem

	// 人口数据缓存，按关联ID和城市索引
	cache map[string]map[string]*Demographics
	mutex sync.Mutex
}

// NewGeographic 创建地理情报智能体
func NewGeographic(vehicles VehicleRegistry, census CensusDatabase, traffic TrafficSystem, opts ...Option) *Geographic {
	return &Geographic{
		runtime:  NewRuntime(opts...),
		vehicles: vehicles,
		census:   census,
		traffic:  traffic,
		cache:    make(map[string]map[string]*Demographics),
	}
}

func (g *Geographic) ID() string           { return GeographicAgentID }
func (g *Geographic) Dimension() Dimension { return DimensionLocation }

// Analyze 位置得分 = ev adoption (30) + demographics (30) + traffic (25) + infrastructure (15)
func (g *Geographic) Analyze(ctx context.Context, req *Request) (*Result, error) {
	site := req.Site

	ev, err := Call(ctx, g.runtime, g.ID(), req, SystemVAHAN, map[string]any{"city": site.City},
		func(ctx context.Context) (*EVRegistrations, error) {
			return g.vehicles.EVRegistrations(ctx, site.City, site.State)
		})
	if err != nil {
		return nil, err
	}

	demographics, err := g.demographics(ctx, req)
	if err != nil {
		return nil, err
	}

	traffic, err := Call(ctx, g.runtime, g.ID(), req, SystemTraffic,
		map[string]any{"latitude": site.Latitude, "longitude": site.Longitude},
		func(ctx context.Context) (*TrafficData, error) {
			return g.traffic.TrafficData(ctx, site)
		})
	if err != nil {
		return nil, err
	}

	penetration := 0.0
	if demographics.TotalPopulation > 0 {
		penetration = float64(ev.TotalEVRegistrations) / float64(demographics.TotalPopulation) * 100
	}
	evScore := math.Min(30, penetration*10)
	demoScore := math.Min(30, demographics.AvgHouseholdIncome/1500000*30)
	trafficScore := math.Min(25, float64(traffic.AvgDailyTraffic)/10000*25)
	infraScore := 5.0
	if site.HasGridConnection() {
		infraScore = 15
	}
	score := round2(evScore + demoScore + trafficScore + infraScore)

	return &Result{
		AgentID:    g.ID(),
		Dimension:  DimensionLocation,
		Score:      score,
		Confidence: 0.9,
		Rationale:  locationRecommendation(score),
		Metrics: map[string]any{
			MetricEVRegistrations:     ev.TotalEVRegistrations,
			"ev_growth_rate_yoy_pct":  round2(ev.GrowthRatePct),
			"total_population":        demographics.TotalPopulation,
			"avg_household_income":    demographics.AvgHouseholdIncome,
			MetricDailyTraffic:        traffic.AvgDailyTraffic,
			"congestion_level":        traffic.CongestionLevel,
			"ev_penetration_pct":      round2(penetration),
			"ev_adoption_score":       round2(evScore),
			"demographics_score":      round2(demoScore),
			"traffic_score":           round2(trafficScore),
			"infrastructure_score":    infraScore,
			"grid_connection_present": site.HasGridConnection(),
		},
	}, nil
}

// demographics 每个关联ID和城市只查询一次人口普查
func (g *Geographic) demographics(ctx context.Context, req *Request) (*Demographics, error) {
	city := req.Site.City

	g.mutex.Lock()
	cached, ok := g.cache[req.CorrelationID][city]
	g.mutex.Unlock()
	if ok {
		return cached, nil
	}

	demographics, err := Call(ctx, g.runtime, g.ID(), req, SystemCensus, map[string]any{"city": city},
		func(ctx context.Context) (*Demographics, error) {
			return g.census.Demographics(ctx, city)
		})
	if err != nil {
		return nil, err
	}

	g.mutex.Lock()
	if g.cache[req.CorrelationID] == nil {
		g.cache[req.CorrelationID] = make(map[string]*Demographics)
	}
	g.cache[req.CorrelationID][city] = demographics
	g.mutex.Unlock()
	return demographics, nil
}

// Release 清理已结束工作流的缓存
func (g *Geographic) Release(correlationID string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.cache, correlationID)
}

// cachedWorkflows 缓存了人口数据的工作流数
func (g *Geographic) cachedWorkflows() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.cache)
}

func locationRecommendation(score float64) string {
	switch {
	case score >= 80:
		return "Excellent location - Priority for deployment"
	case score >= 65:
		return "Good location - Recommended for network"
	case score >= 50:
		return "Acceptable location - Consider for Phase 2"
	default:
		return "Poor location - Not recommended"
	}
}
