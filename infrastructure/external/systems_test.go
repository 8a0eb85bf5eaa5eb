package external

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

func TestAnswersAreDeterministicPerSite(t *testing.T) {
	s := NewSystems()
	ctx := context.Background()
	site := agent.Site{SiteID: "SITE-BLR-014", City: "Bengaluru", State: "Karnataka"}

	first, _ := s.CostEstimates(ctx, site)
	second, _ := s.CostEstimates(ctx, site)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cost estimates differ between calls: %+v vs %+v", first, second)
	}

	other, _ := s.CostEstimates(ctx, agent.Site{SiteID: "SITE-BLR-015", City: "Bengaluru"})
	if other.CapexTotalInr == first.CapexTotalInr {
		t.Error("different sites should not share cost draws")
	}

	a, _ := s.PermitSchedule(ctx, site)
	b, _ := s.PermitSchedule(ctx, site)
	if !reflect.DeepEqual(a, b) {
		t.Error("permit schedule should be stable for a site")
	}
	if len(a.Permits) != 6 {
		t.Errorf("expected 6 permits, got %d", len(a.Permits))
	}
}

func TestKnownCityTables(t *testing.T) {
	s := NewSystems()
	ctx := context.Background()

	ev, _ := s.EVRegistrations(ctx, "Mumbai", "Maharashtra")
	if ev.TotalEVRegistrations != 45000 {
		t.Errorf("expected Mumbai registrations 45000, got %d", ev.TotalEVRegistrations)
	}
	demo, _ := s.Demographics(ctx, "Pune")
	if demo.TotalPopulation != 3124458 {
		t.Errorf("expected Pune population 3124458, got %d", demo.TotalPopulation)
	}
	if demo.AvgHouseholdIncome < 600000 || demo.AvgHouseholdIncome > 1200000 {
		t.Errorf("income out of range: %v", demo.AvgHouseholdIncome)
	}

	grid, _ := s.GridCapacity(ctx, agent.Site{SiteID: "S", State: "Karnataka"})
	if grid.Utility != "BESCOM" {
		t.Errorf("expected BESCOM, got %s", grid.Utility)
	}
}

func TestCompetitorScanRanges(t *testing.T) {
	s := NewSystems()
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		scan, err := s.NearbyCompetitors(context.Background(), agent.Site{SiteID: id}, 5)
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if scan.CompetitorsFound < 0 || scan.CompetitorsFound > 3 || len(scan.Stations) != scan.CompetitorsFound {
			t.Errorf("inconsistent scan for %s: %+v", id, scan)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSystems().TrafficData(ctx, agent.Site{SiteID: "S"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRangeLatencyScaling(t *testing.T) {
	l := NewRangeLatency(0.1)
	lo, hi := l.Bounds(agent.MunicipalSystem("Pune"))
	if lo != 50*time.Millisecond || hi != 100*time.Millisecond {
		t.Errorf("unexpected municipal bounds %v..%v", lo, hi)
	}
	for i := 0; i < 50; i++ {
		d := l.Delay(agent.SystemVAHAN)
		if d < 30*time.Millisecond || d > 80*time.Millisecond {
			t.Fatalf("VAHAN delay %v outside the scaled range", d)
		}
	}
	if NewRangeLatency(0).scale != DefaultLatencyScale {
		t.Error("non-positive scale should use the default")
	}
}
