package external

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

var evRegistrations = map[string]int{
	"Mumbai":    45000,
	"Delhi":     38000,
	"Bengaluru": 52000,
	"Hyderabad": 28000,
	"Pune":      22000,
	"Chennai":   25000,
	"Ahmedabad": 18000,
}

var cityPopulation = map[string]int{
	"Mumbai":    12442373,
	"Delhi":     11034555,
	"Bengaluru": 8443675,
	"Hyderabad": 6809970,
	"Chennai":   7088000,
	"Pune":      3124458,
	"Ahmedabad": 5577940,
}

var stateUtilities = map[string]string{
	"Maharashtra": "MSEDCL",
	"Karnataka":   "BESCOM",
	"Delhi":       "BSES",
	"Tamil Nadu":  "TANGEDCO",
	"Telangana":   "TSSPDCL",
	"Gujarat":     "DGVCL",
}

var operators = []string{
	"Tata Power EZ Charge",
	"Fortum Charge & Drive",
	"Ather Grid",
	"Magenta ChargeGrid",
	"ChargeZone",
}

var (
	landUseZones     = []string{"Commercial", "Mixed Use", "Industrial", "Residential"}
	congestionLevels = []string{"Low", "Medium", "High"}
	voltageLevels    = []string{"11kV", "33kV", "66kV"}
	gridCapacities   = []float64{250, 500, 750, 1000, 1500}
	additionalSets   = [][]string{
		{"Building Permit", "Fire Safety NOC"},
		{"Environmental Clearance"},
		{"Traffic Impact Assessment"},
	}
)

// Systems simulated external systems. Answers are a pure function of the
// query key (site id or city), so repeated runs agree.
type Systems struct{}

// NewSystems creates the simulated systems
func NewSystems() *Systems {
	return &Systems{}
}

// source deterministic PCG stream for a query key
func source(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func between(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// EVRegistrations VAHAN registrations for a city
func (s *Systems) EVRegistrations(ctx context.Context, city, state string) (*agent.EVRegistrations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemVAHAN, city)
	total, ok := evRegistrations[city]
	if !ok {
		total = between(r, 8000, 20000)
	}
	return &agent.EVRegistrations{
		City:                    city,
		State:                   state,
		TotalEVRegistrations:    total,
		MonthlyNewRegistrations: int(float64(total) * 0.035),
		GrowthRatePct:           uniform(r, 25, 45),
	}, nil
}

// Demographics census data for a city
func (s *Systems) Demographics(ctx context.Context, city string) (*agent.Demographics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemCensus, city)
	population, ok := cityPopulation[city]
	if !ok {
		population = between(r, 500000, 2000000)
	}
	return &agent.Demographics{
		City:               city,
		TotalPopulation:    population,
		Households:         int(float64(population) / 4.5),
		AvgHouseholdIncome: float64(between(r, 600000, 1200000)),
	}, nil
}

// TrafficData traffic near a site
func (s *Systems) TrafficData(ctx context.Context, site agent.Site) (*agent.TrafficData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemTraffic, site.SiteID)
	return &agent.TrafficData{
		AvgDailyTraffic: between(r, 8000, 25000),
		PeakHourFactor:  uniform(r, 1.8, 2.5),
		CongestionLevel: pick(r, congestionLevels),
	}, nil
}

// NearbyCompetitors competing stations around a site
func (s *Systems) NearbyCompetitors(ctx context.Context, site agent.Site, radiusKm float64) (*agent.CompetitorScan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemCompetitor, "nearby", site.SiteID)
	found := between(r, 0, 3)

	scan := &agent.CompetitorScan{
		RadiusKm:         radiusKm,
		CompetitorsFound: found,
		Stations:         make([]agent.CompetitorStation, 0, found),
	}
	for i := 0; i < found; i++ {
		scan.Stations = append(scan.Stations, agent.CompetitorStation{
			Operator:       pick(r, operators),
			DistanceKm:     math.Min(radiusKm, uniform(r, 0.5, 5.0)),
			Chargers:       between(r, 2, 8),
			PriceInrKwh:    uniform(r, 16, 22),
			UtilizationPct: uniform(r, 45, 85),
		})
	}
	switch {
	case found == 0:
		scan.MarketSaturation = "Low"
	case found <= 2:
		scan.MarketSaturation = "Medium"
	default:
		scan.MarketSaturation = "High"
	}
	return scan, nil
}

// PricingIntelligence city pricing and demand outlook
func (s *Systems) PricingIntelligence(ctx context.Context, city string) (*agent.PricingIntelligence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemCompetitor, "pricing", city)
	return &agent.PricingIntelligence{
		City:               city,
		AvgPriceInrKwh:     uniform(r, 17, 21),
		MinPriceInrKwh:     uniform(r, 15, 17),
		MaxPriceInrKwh:     uniform(r, 22, 26),
		PeakHourPremium:    uniform(r, 1.15, 1.35),
		DemandGrowthPct:    uniform(r, 20, 40),
		ForecastConfidence: uniform(r, 0.75, 0.92),
	}, nil
}

// CostEstimates capex and opex for a site
func (s *Systems) CostEstimates(ctx context.Context, site agent.Site) (*agent.CostEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemFinancial, site.SiteID)
	capacity := site.CapacityKw()

	land := uniform(r, 5000000, 15000000)
	equipment := capacity * uniform(r, 25000, 35000)
	civil := uniform(r, 800000, 1500000)
	grid := uniform(r, 500000, 2000000)

	return &agent.CostEstimate{
		SiteType:             site.Position(),
		CapacityKw:           capacity,
		LandCostInr:          land,
		EquipmentCostInr:     equipment,
		CivilWorkInr:         civil,
		GridConnectionInr:    grid,
		CapexTotalInr:        land + equipment + civil + grid,
		OpexAnnualInr:        uniform(r, 850000, 1700000),
		RevenuePerSessionInr: uniform(r, 200, 300),
	}, nil
}

// LandUseClearance municipal land use check
func (s *Systems) LandUseClearance(ctx context.Context, site agent.Site) (*agent.LandClearance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemMunicipal, "clearance", site.SiteID)
	return &agent.LandClearance{
		ClearanceAvailable:    r.Float64() > 0.15,
		LandUseZone:           pick(r, landUseZones),
		AdditionalPermits:     pick(r, additionalSets),
		EstimatedApprovalDays: between(r, 30, 90),
		FeesEstimatedInr:      float64(between(r, 25000, 75000)),
		Portal:                fmt.Sprintf("%s Municipal Corporation", site.City),
	}, nil
}

// PermitSchedule permits required for a site
func (s *Systems) PermitSchedule(ctx context.Context, site agent.Site) (*agent.PermitSchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemMunicipal, "permits", site.SiteID)
	state := site.State
	if state == "" {
		state = "State"
	}

	permit := func(kind, agency string, minDays, maxDays, minFee, maxFee int, priority string) agent.PermitRequirement {
		return agent.PermitRequirement{
			Type:          kind,
			Agency:        agency,
			EstimatedDays: between(r, minDays, maxDays),
			FeesInr:       float64(between(r, minFee, maxFee)),
			Priority:      priority,
		}
	}

	return &agent.PermitSchedule{
		Permits: []agent.PermitRequirement{
			permit("Land Use Clearance", site.City+" Municipal Corporation", 30, 60, 15000, 40000, "High"),
			permit("Building Permit", site.City+" Building Department", 40, 75, 25000, 60000, "High"),
			permit("Fire Safety NOC", state+" Fire Services", 20, 45, 10000, 25000, "High"),
			permit("Electrical Safety Certificate", "Chief Electrical Inspector", 15, 30, 8000, 20000, "Medium"),
			permit("Environmental Clearance", state+" Pollution Control Board", 50, 90, 30000, 70000, "Medium"),
			permit("Grid Connection Approval", state+" Electricity Distribution Company", 30, 60, 500000, 1500000, "High"),
		},
		CoordinationOverheadDays: between(r, 20, 40),
		ExpeditedAvailable:       r.IntN(2) == 0,
	}, nil
}

// GridCapacity utility grid check for a site
func (s *Systems) GridCapacity(ctx context.Context, site agent.Site) (*agent.GridCapacity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := source(agent.SystemGrid, site.SiteID)
	utility, ok := stateUtilities[site.State]
	if !ok {
		utility = "State Electricity Board"
	}
	return &agent.GridCapacity{
		GridAvailable:          r.Float64() > 0.1,
		AvailableCapacityKw:    pick(r, gridCapacities),
		TransformerProximityKm: uniform(r, 0.1, 2.5),
		VoltageLevel:           pick(r, voltageLevels),
		ConnectionCostInr:      float64(between(r, 500000, 2000000)),
		ConnectionTimelineDays: between(r, 45, 120),
		Utility:                utility,
	}, nil
}
