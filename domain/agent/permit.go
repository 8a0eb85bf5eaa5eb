package agent

import (
	"context"
	"math"
)

const PermitAgentID = "permit-management-001"

// PermitTimeline 汇总的许可进度
type PermitTimeline struct {
	TotalDays        int     `json:"total_days"`
	CriticalPathDays int     `json:"critical_path_days"`
	TotalFeesInr     float64 `json:"total_fees_inr"`
	Expedited        bool    `json:"expedited_available"`
	ExpeditedDays    int     `json:"expedited_days,omitempty"`
}

// Permit 根据用地许可、周期和费用评估监管难度
type Permit struct {
	runtime   Runtime
	municipal MunicipalPortal
	grid      GridMonitor
}

// NewPermit 创建许可管理智能体
func NewPermit(municipal MunicipalPortal, grid GridMonitor, opts ...Option) *Permit {
	return &Permit{
		runtime:   NewRuntime(opts...),
		municipal: municipal,
		grid:      grid,
	}
}

func (p *Permit) ID() string           { return PermitAgentID }
func (p *Permit) Dimension() Dimension { return DimensionRegulatory }

// Analyze 监管得分 = 50 + clearance (25) + timeline (15/10/5) + fees (10/5)，上限 100
func (p *Permit) Analyze(ctx context.Context, req *Request) (*Result, error) {
	site := req.Site
	portal := MunicipalSystem(site.City)

	clearance, err := Call(ctx, p.runtime, p.ID(), req, portal,
		map[string]any{"checking": "land use clearance"},
		func(ctx context.Context) (*LandClearance, error) {
			return p.municipal.LandUseClearance(ctx, site)
		})
	if err != nil {
		return nil, err
	}

	schedule, err := Call(ctx, p.runtime, p.ID(), req, portal,
		map[string]any{"checking": "permit schedule"},
		func(ctx context.Context) (*PermitSchedule, error) {
			return p.municipal.PermitSchedule(ctx, site)
		})
	if err != nil {
		return nil, err
	}
	if len(schedule.Permits) == 0 {
		return nil, NewErrorf(p.ID(), nil, "no permit schedule for %s", site.SiteID)
	}

	grid, err := Call(ctx, p.runtime, p.ID(), req, SystemGrid,
		map[string]any{"state": site.State},
		func(ctx context.Context) (*GridCapacity, error) {
			return p.grid.GridCapacity(ctx, site)
		})
	if err != nil {
		return nil, err
	}

	timeline := EstimateTimeline(schedule)
	score := RegulatoryScore(clearance.ClearanceAvailable, timeline)

	return &Result{
		AgentID:    p.ID(),
		Dimension:  DimensionRegulatory,
		Score:      score,
		Confidence: 0.85,
		Rationale:  permitRecommendation(timeline.TotalDays),
		Metrics: map[string]any{
			MetricTimelineDays:     timeline.TotalDays,
			MetricTotalFeesInr:     timeline.TotalFeesInr,
			"critical_path_days":   timeline.CriticalPathDays,
			"expedited_available":  timeline.Expedited,
			"expedited_days":       timeline.ExpeditedDays,
			"clearance_available":  clearance.ClearanceAvailable,
			"land_use_zone":        clearance.LandUseZone,
			"required_permits":     len(schedule.Permits),
			"permits":              schedule.Permits,
			"grid_available":       grid.GridAvailable,
			"grid_capacity_kw":     grid.AvailableCapacityKw,
			"grid_connection_days": grid.ConnectionTimelineDays,
			"grid_utility":         grid.Utility,
			"municipal_portal":     clearance.Portal,
		},
	}, nil
}

// EstimateTimeline 最慢许可的关键路径加协调开销
func EstimateTimeline(schedule *PermitSchedule) PermitTimeline {
	timeline := PermitTimeline{Expedited: schedule.ExpeditedAvailable}
	for _, permit := range schedule.Permits {
		if permit.EstimatedDays > timeline.CriticalPathDays {
			timeline.CriticalPathDays = permit.EstimatedDays
		}
		timeline.TotalFeesInr += permit.FeesInr
	}
	timeline.TotalDays = timeline.CriticalPathDays + schedule.CoordinationOverheadDays
	timeline.TotalFeesInr = math.Round(timeline.TotalFeesInr)
	if timeline.Expedited {
		timeline.ExpeditedDays = int(float64(timeline.TotalDays) * 0.7)
	}
	return timeline
}

// RegulatoryScore 将用地许可、周期和费用映射到 0..100
func RegulatoryScore(clearance bool, timeline PermitTimeline) float64 {
	score := 50.0
	if clearance {
		score += 25
	}
	switch {
	case timeline.TotalDays < 90:
		score += 15
	case timeline.TotalDays < 120:
		score += 10
	case timeline.TotalDays < 150:
		score += 5
	}
	switch {
	case timeline.TotalFeesInr < 1000000:
		score += 10
	case timeline.TotalFeesInr < 2000000:
		score += 5
	}
	return math.Min(100, score)
}

func permitRecommendation(days int) string {
	switch {
	case days < 90:
		return "Fast-track regulatory path - Minimal delays expected"
	case days < 120:
		return "Standard regulatory timeline - Manageable approval process"
	case days < 150:
		return "Extended timeline - Consider parallel processing"
	default:
		return "Complex regulatory environment - Significant delays likely"
	}
}
