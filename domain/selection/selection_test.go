package selection

import (
	"errors"
	"math"
	"testing"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

func candidate(index int, city string, capex, npv float64, scores map[agent.Dimension]float64) Candidate {
	return Candidate{
		Index: index,
		Site:  agent.Site{SiteID: city + "-" + string(rune('A'+index)), City: city},
		Evaluation: &synthesis.Result{
			Scores:     scores,
			Financials: &agent.Financials{CapexInr: capex, NpvInr: npv},
		},
	}
}

func TestGreedySelectionSkipsAndContinues(t *testing.T) {
	costs := []float64{4000000, 3000000, 3000000, 5000000, 2000000}
	ranked := make([]Ranked, len(costs))
	for i, capex := range costs {
		ranked[i] = Ranked{Candidate: candidate(i, "Pune", capex, 1000000, nil), RankScore: float64(100 - i)}
	}

	selected := Select(ranked, 10000000, 10)
	if len(selected) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(selected))
	}
	for i, want := range []int{0, 1, 2} {
		if selected[i].Index != want {
			t.Errorf("position %d: expected candidate %d, got %d", i, want, selected[i].Index)
		}
	}

	m := Summarize(selected, 10000000)
	if m.TotalCapexInr != 10000000 || m.BudgetRemainingInr != 0 {
		t.Errorf("unexpected capex/remaining: %+v", m)
	}
}

func TestSelectSkipsOversizedCandidate(t *testing.T) {
	costs := []float64{4000000, 7000000, 2000000}
	ranked := make([]Ranked, len(costs))
	for i, capex := range costs {
		ranked[i] = Ranked{Candidate: candidate(i, "Pune", capex, 0, nil)}
	}
	selected := Select(ranked, 8000000, 5)
	if len(selected) != 2 || selected[0].Index != 0 || selected[1].Index != 2 {
		t.Fatalf("expected candidates 0 and 2, got %+v", selected)
	}
}

func TestSelectStopsAtTarget(t *testing.T) {
	ranked := make([]Ranked, 5)
	for i := range ranked {
		ranked[i] = Ranked{Candidate: candidate(i, "Pune", 1000000, 0, nil)}
	}
	if got := len(Select(ranked, 100000000, 2)); got != 2 {
		t.Errorf("expected 2 selected, got %d", got)
	}
	if got := len(Select(ranked, 0, 5)); got != 0 {
		t.Errorf("zero budget should select nothing, got %d", got)
	}
}

func TestRankIsStableAndObjectiveAware(t *testing.T) {
	strongFinance := map[agent.Dimension]float64{agent.DimensionFinancial: 90, agent.DimensionLocation: 50}
	strongLocation := map[agent.Dimension]float64{agent.DimensionLocation: 95, agent.DimensionMarket: 85}

	cands := []Candidate{
		candidate(0, "Pune", 0, 0, strongLocation),
		candidate(1, "Mumbai", 0, 0, strongFinance),
		candidate(2, "Delhi", 0, 0, strongFinance),
	}

	roi, _ := ScorerFor(ObjectiveMaximizeROI)
	ranked, err := Rank(cands, roi)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if ranked[0].Index != 1 || ranked[1].Index != 2 || ranked[2].Index != 0 {
		t.Errorf("roi ranking should keep arrival order on ties: %d %d %d", ranked[0].Index, ranked[1].Index, ranked[2].Index)
	}
	if math.Abs(ranked[0].RankScore-78) > 1e-9 {
		t.Errorf("unexpected rank score %v", ranked[0].RankScore)
	}

	coverage, _ := ScorerFor(ObjectiveMaximizeCoverage)
	ranked, _ = Rank(cands, coverage)
	if ranked[0].Index != 0 {
		t.Errorf("coverage ranking should favour location, got %d", ranked[0].Index)
	}
}

func TestRankPropagatesScorerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Rank([]Candidate{candidate(0, "Pune", 0, 0, nil)}, ScorerFunc(func(Candidate) (float64, error) { return 0, boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("expected scorer error, got %v", err)
	}
}

func TestParseObjectiveAliases(t *testing.T) {
	cases := map[string]Objective{
		"":                  ObjectiveBalanced,
		"max_roi":           ObjectiveMaximizeROI,
		"maximize-coverage": ObjectiveMaximizeCoverage,
		"max_coverage":      ObjectiveMaximizeCoverage,
		"scripted":          ObjectiveScripted,
	}
	for in, want := range cases {
		if got, err := ParseObjective(in); err != nil || got != want {
			t.Errorf("ParseObjective(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseObjective("maximize-happiness"); err == nil {
		t.Error("unknown objective should fail")
	}
	if _, err := ScorerFor(ObjectiveScripted); err == nil {
		t.Error("scripted objective needs an external scorer")
	}
}

func TestSummarizeDefaultsAndRecommendation(t *testing.T) {
	selected := []Ranked{
		{Candidate: Candidate{Site: agent.Site{City: "Pune"}}, RankScore: 70},
		{Candidate: candidate(1, "Mumbai", 5000000, 12000000, nil), RankScore: 80},
		{Candidate: candidate(2, "Mumbai", 4000000, 3000000, nil), RankScore: 60},
	}
	m := Summarize(selected, 20000000)
	if m.TotalCapexInr != 12000000 {
		t.Errorf("expected default capex to be applied, got %v", m.TotalCapexInr)
	}
	if m.TotalRevenueYear1Inr != 6000000 {
		t.Errorf("expected default revenue, got %v", m.TotalRevenueYear1Inr)
	}
	if m.NetworkNpvInr != 15000000 || m.CoverageCities != 2 || m.AvgSiteScore != 70 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.Recommendation != "Acceptable network - Meets minimum criteria" {
		t.Errorf("unexpected recommendation %q", m.Recommendation)
	}

	if got := NetworkRecommendation(60000000, 30); got != "Excellent network configuration - Strong portfolio" {
		t.Errorf("unexpected %q", got)
	}
	if got := NetworkRecommendation(30000000, 19); got != "Acceptable network - Meets minimum criteria" {
		t.Errorf("unexpected %q", got)
	}
	if got := NetworkRecommendation(5000000, 40); got != "Weak network configuration - Consider revisions" {
		t.Errorf("unexpected %q", got)
	}
}
