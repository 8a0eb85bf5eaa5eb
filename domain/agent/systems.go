package agent

import "context"

// 追踪事件中出现的外部系统名称
const (
	SystemVAHAN      = "VAHAN_API"
	SystemCensus     = "Census_DB"
	SystemTraffic    = "Traffic_API"
	SystemCompetitor = "Competitor_DB"
	SystemFinancial  = "Financial_System"
	SystemGrid       = "Grid_Monitoring"
	SystemMunicipal  = "Municipal_Portal"
)

// MunicipalSystem 城市门户名称，例如 Pune_Municipal
func MunicipalSystem(city string) string {
	return city + "_Municipal"
}

// EVRegistrations 城市车辆注册数据
type EVRegistrations struct {
	City                    string  `json:"city"`
	State                   string  `json:"state"`
	TotalEVRegistrations    int     `json:"total_ev_registrations"`
	MonthlyNewRegistrations int     `json:"monthly_new_registrations"`
	GrowthRatePct           float64 `json:"growth_rate_yoy_pct"`
}

// Demographics 城市人口普查数据
type Demographics struct {
	City               string  `json:"city"`
	TotalPopulation    int     `json:"total_population"`
	Households         int     `json:"households"`
	AvgHouseholdIncome float64 `json:"avg_household_income_inr"`
}

// TrafficData 位置附近的交通统计
type TrafficData struct {
	AvgDailyTraffic int     `json:"avg_daily_traffic"`
	PeakHourFactor  float64 `json:"peak_hour_factor"`
	CongestionLevel string  `json:"congestion_level"`
}

// CompetitorStation 竞争充电站
type CompetitorStation struct {
	Operator       string  `json:"operator"`
	DistanceKm     float64 `json:"distance_km"`
	Chargers       int     `json:"chargers"`
	PriceInrKwh    float64 `json:"price_inr_kwh"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// CompetitorScan 站点周边的充电站
type CompetitorScan struct {
	RadiusKm         float64             `json:"radius_km"`
	CompetitorsFound int                 `json:"competitors_found"`
	Stations         []CompetitorStation `json:"stations"`
	MarketSaturation string              `json:"market_saturation"`
}

// PricingIntelligence 城市定价和需求展望
type PricingIntelligence struct {
	City               string  `json:"city"`
	AvgPriceInrKwh     float64 `json:"avg_price_inr_kwh"`
	MinPriceInrKwh     float64 `json:"min_price_inr_kwh"`
	MaxPriceInrKwh     float64 `json:"max_price_inr_kwh"`
	PeakHourPremium    float64 `json:"peak_hour_premium"`
	DemandGrowthPct    float64 `json:"demand_growth_yoy_pct"`
	ForecastConfidence float64 `json:"forecast_confidence"`
}

// CostEstimate 投资和运营成本估算
type CostEstimate struct {
	SiteType             string  `json:"site_type"`
	CapacityKw           float64 `json:"capacity_kw"`
	LandCostInr          float64 `json:"land_cost_inr"`
	EquipmentCostInr     float64 `json:"equipment_cost_inr"`
	CivilWorkInr         float64 `json:"civil_work_inr"`
	GridConnectionInr    float64 `json:"grid_connection_inr"`
	CapexTotalInr        float64 `json:"capex_total_inr"`
	OpexAnnualInr        float64 `json:"opex_annual_inr"`
	RevenuePerSessionInr float64 `json:"revenue_per_session_inr"`
}

// LandClearance 市政用地答复
type LandClearance struct {
	ClearanceAvailable    bool     `json:"clearance_available"`
	LandUseZone           string   `json:"land_use_zone"`
	AdditionalPermits     []string `json:"additional_permits"`
	EstimatedApprovalDays int      `json:"estimated_approval_days"`
	FeesEstimatedInr      float64  `json:"fees_estimated_inr"`
	Portal                string   `json:"portal"`
}

// PermitRequirement 站点需要的单项许可
type PermitRequirement struct {
	Type          string  `json:"type"`
	Agency        string  `json:"agency"`
	EstimatedDays int     `json:"estimated_days"`
	FeesInr       float64 `json:"fees_inr"`
	Priority      string  `json:"priority"`
}

// PermitSchedule 许可列表及关键路径之上的协调开销
type PermitSchedule struct {
	Permits                  []PermitRequirement `json:"permits"`
	CoordinationOverheadDays int                 `json:"coordination_overhead_days"`
	ExpeditedAvailable       bool                `json:"expedited_available"`
}

// GridCapacity 位置的电网容量
type GridCapacity struct {
	GridAvailable          bool    `json:"grid_available"`
	AvailableCapacityKw    float64 `json:"available_capacity_kw"`
	TransformerProximityKm float64 `json:"transformer_proximity_km"`
	VoltageLevel           string  `json:"voltage_level"`
	ConnectionCostInr      float64 `json:"connection_cost_inr"`
	ConnectionTimelineDays int     `json:"connection_timeline_days"`
	Utility                string  `json:"utility"`
}

// VehicleRegistry VAHAN 车辆注册
type VehicleRegistry interface {
	EVRegistrations(ctx context.Context, city, state string) (*EVRegistrations, error)
}

// CensusDatabase 人口数据
type CensusDatabase interface {
	Demographics(ctx context.Context, city string) (*Demographics, error)
}

// TrafficSystem 交通分析
type TrafficSystem interface {
	TrafficData(ctx context.Context, site Site) (*TrafficData, error)
}

// CompetitorDatabase 竞品情报
type CompetitorDatabase interface {
	NearbyCompetitors(ctx context.Context, site Site, radiusKm float64) (*CompetitorScan, error)
	PricingIntelligence(ctx context.Context, city string) (*PricingIntelligence, error)
}

// FinancialSystem 成本估算
type FinancialSystem interface {
	CostEstimates(ctx context.Context, site Site) (*CostEstimate, error)
}

// MunicipalPortal 用地和许可数据
type MunicipalPortal interface {
	LandUseClearance(ctx context.Context, site Site) (*LandClearance, error)
	PermitSchedule(ctx context.Context, site Site) (*PermitSchedule, error)
}

// GridMonitor 电网容量数据
type GridMonitor interface {
	GridCapacity(ctx context.Context, site Site) (*GridCapacity, error)
}
