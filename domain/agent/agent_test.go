package agent

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// stubSystems 所有外部查询返回固定数据
type stubSystems struct {
	evs          int
	population   int
	income       float64
	traffic      int
	competitors  int
	growth       float64
	capex        float64
	opex         float64
	perSession   float64
	clearance    bool
	permitDays   []int
	overhead     int
	feePerPermit float64
	censusCalls  int
}

func (s *stubSystems) EVRegistrations(ctx context.Context, city, state string) (*EVRegistrations, error) {
	return &EVRegistrations{City: city, State: state, TotalEVRegistrations: s.evs}, nil
}

func (s *stubSystems) Demographics(ctx context.Context, city string) (*Demographics, error) {
	s.censusCalls++
	return &Demographics{City: city, TotalPopulation: s.population, AvgHouseholdIncome: s.income}, nil
}

func (s *stubSystems) TrafficData(ctx context.Context, site Site) (*TrafficData, error) {
	return &TrafficData{AvgDailyTraffic: s.traffic}, nil
}

func (s *stubSystems) NearbyCompetitors(ctx context.Context, site Site, radiusKm float64) (*CompetitorScan, error) {
	return &CompetitorScan{RadiusKm: radiusKm, CompetitorsFound: s.competitors}, nil
}

func (s *stubSystems) PricingIntelligence(ctx context.Context, city string) (*PricingIntelligence, error) {
	return &PricingIntelligence{City: city, DemandGrowthPct: s.growth, ForecastConfidence: 0.8}, nil
}

func (s *stubSystems) CostEstimates(ctx context.Context, site Site) (*CostEstimate, error) {
	return &CostEstimate{CapexTotalInr: s.capex, OpexAnnualInr: s.opex, RevenuePerSessionInr: s.perSession}, nil
}

func (s *stubSystems) LandUseClearance(ctx context.Context, site Site) (*LandClearance, error) {
	return &LandClearance{ClearanceAvailable: s.clearance}, nil
}

func (s *stubSystems) PermitSchedule(ctx context.Context, site Site) (*PermitSchedule, error) {
	schedule := &PermitSchedule{CoordinationOverheadDays: s.overhead}
	for _, days := range s.permitDays {
		schedule.Permits = append(schedule.Permits, PermitRequirement{EstimatedDays: days, FeesInr: s.feePerPermit})
	}
	return schedule, nil
}

func (s *stubSystems) GridCapacity(ctx context.Context, site Site) (*GridCapacity, error) {
	return &GridCapacity{GridAvailable: true}, nil
}

func testSite() Site {
	return Site{SiteID: "SITE-PUNE-001", City: "Pune", State: "Maharashtra", Latitude: 18.52, Longitude: 73.85}
}

func TestGeographicScore(t *testing.T) {
	systems := &stubSystems{evs: 30000, population: 1000000, income: 750000, traffic: 8000}
	geo := NewGeographic(systems, systems, systems)

	l := trace.NewLog()
	req := &Request{CorrelationID: "WF-1", ParentEventID: "evt_parent", Site: testSite(), Log: l}
	result, err := Invoke(context.Background(), geo, req)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	// ev 30 + demographics 15 + traffic 20 + infrastructure 15
	if result.Score != 80 {
		t.Errorf("expected location score 80, got %v", result.Score)
	}
	if v, _ := result.Metric(MetricDailyTraffic); v != 8000 {
		t.Errorf("traffic metric not exposed: %v", result.Metrics)
	}

	events := l.ByCorrelation("WF-1")
	if len(events) != 6 {
		t.Fatalf("expected 3 query/response pairs, got %d events", len(events))
	}
	for i, e := range events {
		if e.ParentID != "evt_parent" {
			t.Errorf("event %d not under the agent-invoked event", i)
		}
		want := trace.KindExternalQuery
		if i%2 == 1 {
			want = trace.KindExternalResponse
			if e.ProcessingTimeMs == nil {
				t.Errorf("response %d has no processing time", i)
			}
		}
		if e.Kind != want {
			t.Errorf("event %d: expected %s, got %s", i, want, e.Kind)
		}
	}
	if events[0].Target != SystemVAHAN || events[1].Source != SystemVAHAN {
		t.Errorf("unexpected VAHAN routing: %s -> %s", events[0].Source, events[0].Target)
	}
}

func TestGeographicCacheIsScopedToCorrelation(t *testing.T) {
	systems := &stubSystems{evs: 1000, population: 100000, income: 500000, traffic: 5000}
	geo := NewGeographic(systems, systems, systems)

	for i := 0; i < 2; i++ {
		if _, err := geo.Analyze(context.Background(), &Request{CorrelationID: "WF-A", Site: testSite()}); err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
	}
	if systems.censusCalls != 1 {
		t.Errorf("expected one census call for WF-A, got %d", systems.censusCalls)
	}

	geo.Analyze(context.Background(), &Request{CorrelationID: "WF-B", Site: testSite()})
	if systems.censusCalls != 2 {
		t.Errorf("another workflow must not reuse WF-A's cache")
	}

	Set{DimensionLocation: geo}.Release("WF-A")
	geo.Release("WF-B")
	if geo.cachedWorkflows() != 0 {
		t.Errorf("release should drop cached workflows")
	}
}

func TestMarketScoreUsesLocationResult(t *testing.T) {
	systems := &stubSystems{competitors: 1, growth: 25}
	market := NewMarket(systems)

	location := &Result{
		AgentID:   GeographicAgentID,
		Dimension: DimensionLocation,
		Metrics:   map[string]any{MetricDailyTraffic: 20000, MetricEVRegistrations: 50000},
	}
	req := &Request{CorrelationID: "WF-1", Site: testSite(), Upstream: map[Dimension]*Result{DimensionLocation: location}}
	result, err := Invoke(context.Background(), market, req)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	// competition 28 + demand 40 (1275 sessions) + growth 10
	if result.Score != 78 {
		t.Errorf("expected market score 78, got %v", result.Score)
	}
	if v, _ := result.Metric(MetricDailySessions); v != 1275 {
		t.Errorf("expected 1275 daily sessions, got %v", v)
	}
}

func TestMarketSessionFloor(t *testing.T) {
	if got := forecastSessions(100, 1000, 3); got != 20 {
		t.Errorf("expected floor of 20 sessions, got %v", got)
	}
}

func TestFinancialModel(t *testing.T) {
	flat := [projectionYears]float64{1e6, 1e6, 1e6, 1e6, 1e6, 1e6, 1e6}

	strong := Evaluate(1e6, 0, flat)
	if strong.PaybackYears != 1 {
		t.Errorf("expected payback in year 1, got %d", strong.PaybackYears)
	}
	if math.Abs(strong.IrrPct-32.05) > 0.01 {
		t.Errorf("expected IRR approximation 32.05, got %v", strong.IrrPct)
	}
	if strong.NpvInr != 3563757 {
		t.Errorf("expected NPV 3563757, got %v", strong.NpvInr)
	}
	if score := FinancialScore(strong); score < 71.2 || score > 71.3 {
		t.Errorf("expected score near 71.26, got %v", score)
	}

	weak := Evaluate(1e7, 0, flat)
	if weak.PaybackYears != PaybackBeyondHorizon {
		t.Errorf("expected payback sentinel %d, got %d", PaybackBeyondHorizon, weak.PaybackYears)
	}
	if FinancialScore(weak) != 0 {
		t.Errorf("expected zero score for an unrecovered investment, got %v", FinancialScore(weak))
	}

	losing := Evaluate(1e6, 2e6, flat)
	if losing.IrrPct != -100 {
		t.Errorf("expected IRR floor for negative cash flow, got %v", losing.IrrPct)
	}
}

func TestFinancialAgentReportsFinancials(t *testing.T) {
	systems := &stubSystems{capex: 8e6, opex: 1e6, perSession: 250}
	financial := NewFinancial(systems)

	result, err := Invoke(context.Background(), financial, &Request{CorrelationID: "WF-1", Site: testSite()})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if result.Financials == nil || result.Financials.CapexInr != 8e6 {
		t.Fatalf("expected financials with capex, got %+v", result.Financials)
	}
	// 默认值：10000 交通量，20000 辆电动车 -> 300 次/天
	if result.Financials.RevenueYear1Inr != math.Round(300*365*250*0.6) {
		t.Errorf("unexpected year one revenue %v", result.Financials.RevenueYear1Inr)
	}
}

func TestPermitScore(t *testing.T) {
	systems := &stubSystems{clearance: true, permitDays: []int{30, 60, 45}, overhead: 25, feePerPermit: 200000}
	permit := NewPermit(systems, systems)

	result, err := Invoke(context.Background(), permit, &Request{CorrelationID: "WF-1", Site: testSite()})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	// 50 + 25 clearance + 15 (85 days) + 10 (600k fees)
	if result.Score != 100 {
		t.Errorf("expected regulatory score 100, got %v", result.Score)
	}
	if v, _ := result.Metric(MetricTimelineDays); v != 85 {
		t.Errorf("expected 85 day timeline, got %v", v)
	}

	slow := PermitTimeline{TotalDays: 160, TotalFeesInr: 2500000}
	if got := RegulatoryScore(false, slow); got != 50 {
		t.Errorf("expected base score 50, got %v", got)
	}
}

func TestInvokeConvertsFailures(t *testing.T) {
	req := &Request{CorrelationID: "WF-1", Site: testSite()}

	panicking := Func("p", DimensionMarket, func(ctx context.Context, req *Request) (*Result, error) {
		panic("boom")
	})
	if _, err := Invoke(context.Background(), panicking, req); !IsAgentError(err) {
		t.Errorf("expected agent error from panic, got %v", err)
	}

	invalid := Func("i", DimensionMarket, func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{AgentID: "i", Dimension: DimensionMarket, Score: 50, Confidence: 1.5}, nil
	})
	if _, err := Invoke(context.Background(), invalid, req); !IsAgentError(err) {
		t.Errorf("expected agent error for confidence 1.5, got %v", err)
	}

	mismatched := Func("m", DimensionMarket, func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{AgentID: "m", Dimension: DimensionFinancial, Score: 50, Confidence: 1}, nil
	})
	if _, err := Invoke(context.Background(), mismatched, req); !IsAgentError(err) {
		t.Errorf("expected agent error for wrong dimension, got %v", err)
	}

	plain := Func("e", DimensionMarket, func(ctx context.Context, req *Request) (*Result, error) {
		return nil, context.DeadlineExceeded
	})
	_, err := Invoke(context.Background(), plain, req)
	if !IsAgentError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestCallHonoursCancellation(t *testing.T) {
	systems := &stubSystems{evs: 1, population: 1, traffic: 1}
	geo := NewGeographic(systems, systems, systems, WithLatency(FixedLatency(time.Hour)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := geo.Analyze(ctx, &Request{CorrelationID: "WF-1", Site: testSite()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("call did not return promptly after the deadline")
	}
}

func TestNewSetRejectsDuplicateDimension(t *testing.T) {
	noop := func(ctx context.Context, req *Request) (*Result, error) { return nil, nil }
	if _, err := NewSet(Func("a", DimensionMarket, noop), Func("b", DimensionMarket, noop)); err == nil {
		t.Error("expected duplicate dimension error")
	}
	set, err := NewSet(Func("a", DimensionMarket, noop), Func("b", DimensionLocation, noop))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := set.IDs(); len(ids) != 2 || ids[0] != "b" {
		t.Errorf("expected ids in dimension order, got %v", ids)
	}
}
