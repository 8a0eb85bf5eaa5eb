package synthesis

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

func result(d agent.Dimension, score float64) *agent.Result {
	return &agent.Result{AgentID: string(d) + "-agent", Dimension: d, Score: score, Confidence: 0.8, Rationale: "ok"}
}

func withNPV(r *agent.Result, npv float64) *agent.Result {
	r.Financials = &agent.Financials{NpvInr: npv, IrrPct: 21.5, PaybackYears: 4}
	return r
}

func allResults(loc, mkt, fin, reg, npv float64) map[agent.Dimension]*agent.Result {
	return map[agent.Dimension]*agent.Result{
		agent.DimensionLocation:   result(agent.DimensionLocation, loc),
		agent.DimensionMarket:     result(agent.DimensionMarket, mkt),
		agent.DimensionFinancial:  withNPV(result(agent.DimensionFinancial, fin), npv),
		agent.DimensionRegulatory: result(agent.DimensionRegulatory, reg),
	}
}

func TestWeightedScoreAndLadder(t *testing.T) {
	site := agent.Site{SiteID: "SITE-PUN-001", City: "Pune"}

	res, err := Synthesize(Input{WorkflowID: "WF-1", Site: site, Results: allResults(85, 70, 80, 70, 1500000)}, DefaultWeights())
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if res.OverallScore != 76.75 {
		t.Errorf("expected 76.75, got %v", res.OverallScore)
	}
	if res.Recommendation != RecommendationConsider || res.Priority != PriorityLow {
		t.Errorf("NPV below 2M should only reach consider, got %s/%s", res.Recommendation, res.Priority)
	}

	res, _ = Synthesize(Input{Site: site, Results: allResults(85, 80, 90, 40, 2000000)}, DefaultWeights())
	if res.OverallScore != 76.25 || res.Recommendation != RecommendationConsider {
		t.Errorf("expected 76.25/consider, got %v/%s", res.OverallScore, res.Recommendation)
	}

	res, _ = Synthesize(Input{Site: site, Results: allResults(85, 70, 80, 70, 3000000)}, DefaultWeights())
	if res.Recommendation != RecommendationSelect || res.Priority != PriorityMedium {
		t.Errorf("expected select/Medium, got %s/%s", res.Recommendation, res.Priority)
	}

	res, _ = Synthesize(Input{Site: site, Results: allResults(90, 85, 85, 80, 6000000)}, DefaultWeights())
	if res.Recommendation != RecommendationStrongSelect || res.Priority != PriorityHigh {
		t.Errorf("expected strong_select/High, got %s/%s", res.Recommendation, res.Priority)
	}

	res, _ = Synthesize(Input{Site: site, Results: allResults(30, 40, 20, 50, 0)}, DefaultWeights())
	if res.Recommendation != RecommendationReject || res.Priority != PriorityNone {
		t.Errorf("expected reject/None, got %s/%s", res.Recommendation, res.Priority)
	}
}

func TestRecommendBoundaries(t *testing.T) {
	cases := []struct {
		score, npv float64
		want       Recommendation
	}{
		{80, 5000001, RecommendationStrongSelect},
		{80, 5000000, RecommendationSelect},
		{65, 2000000, RecommendationConsider},
		{50, 0, RecommendationConsider},
		{49.99, 9e9, RecommendationReject},
	}
	for _, c := range cases {
		if got, _ := Recommend(c.score, c.npv); got != c.want {
			t.Errorf("Recommend(%v, %v) = %s, want %s", c.score, c.npv, got, c.want)
		}
	}
}

func TestMissingDimensionIsReweighted(t *testing.T) {
	results := allResults(85, 0, 90, 40, 6000000)
	delete(results, agent.DimensionMarket)
	results[agent.DimensionRegulatory].Metrics = map[string]any{agent.MetricTimelineDays: 160}

	res, err := Synthesize(Input{Site: agent.Site{SiteID: "S"}, Results: results}, DefaultWeights())
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if math.Abs(res.OverallScore-75) > 1e-9 {
		t.Errorf("expected reweighted score 75, got %v", res.OverallScore)
	}
	if len(res.UnavailableDimensions) != 1 || res.UnavailableDimensions[0] != agent.DimensionMarket {
		t.Errorf("expected market unavailable, got %v", res.UnavailableDimensions)
	}
	if _, ok := res.Score(agent.DimensionMarket); ok {
		t.Error("unavailable dimension should have no score")
	}

	joined := strings.Join(res.KeyInsights, "\n")
	for _, want := range []string{"Excellent location", "High ROI: NPV INR 6,000,000", "Regulatory concern: 160 days", "market analysis unavailable"} {
		if !strings.Contains(joined, want) {
			t.Errorf("insights missing %q: %v", want, res.KeyInsights)
		}
	}
}

func TestMissingFinancialCountsAsZeroNPV(t *testing.T) {
	results := allResults(90, 90, 0, 90, 0)
	delete(results, agent.DimensionFinancial)

	res, err := Synthesize(Input{Site: agent.Site{SiteID: "S"}, Results: results}, DefaultWeights())
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if res.OverallScore != 90 || res.NPV() != 0 {
		t.Errorf("unexpected score %v npv %v", res.OverallScore, res.NPV())
	}
	if res.Recommendation != RecommendationConsider {
		t.Errorf("high score without financials should be consider, got %s", res.Recommendation)
	}
}

func TestNoDimensions(t *testing.T) {
	_, err := Synthesize(Input{Site: agent.Site{SiteID: "S"}}, DefaultWeights())
	if !errors.Is(err, ErrNoDimensions) {
		t.Fatalf("expected ErrNoDimensions, got %v", err)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
	if err := (Weights{"weather": 1}).Validate(); err == nil {
		t.Error("unknown dimension should be rejected")
	}
	if err := (Weights{agent.DimensionMarket: -1, agent.DimensionLocation: 2}).Validate(); err == nil {
		t.Error("negative weight should be rejected")
	}
	if err := (Weights{agent.DimensionMarket: 0}).Validate(); err == nil {
		t.Error("all-zero weights should be rejected")
	}
}

func TestGroupThousands(t *testing.T) {
	for in, want := range map[float64]string{0: "0", 999: "999", 1000: "1,000", 12345678.4: "12,345,678", -2500000: "-2,500,000"} {
		if got := groupThousands(in); got != want {
			t.Errorf("groupThousands(%v) = %s, want %s", in, got, want)
		}
	}
}
