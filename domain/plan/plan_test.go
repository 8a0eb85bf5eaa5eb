package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

func TestSiteEvaluationShape(t *testing.T) {
	p := SiteEvaluation()

	stages := p.Stages()
	if len(stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(stages))
	}
	if stages[1].Mode != ModeParallel || len(stages[1].Steps) != 2 {
		t.Errorf("second stage should join market and financial: %+v", stages[1])
	}
	if p.TotalSteps(1) != 5 {
		t.Errorf("expected 5 steps including synthesis, got %d", p.TotalSteps(1))
	}

	loc, _ := p.Step("location")
	mkt, _ := p.Step("market")
	reg, _ := p.Step("regulatory")
	if !loc.Required || mkt.Required || !reg.Required {
		t.Errorf("unexpected required flags: location=%v market=%v regulatory=%v", loc.Required, mkt.Required, reg.Required)
	}
	if loc.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", loc.Timeout)
	}
	if len(p.AgentSteps()) != 4 {
		t.Errorf("expected 4 agent steps, got %d", len(p.AgentSteps()))
	}
}

func TestFanOutTotals(t *testing.T) {
	if got := NetworkOptimization().TotalSteps(12); got != 14 {
		t.Errorf("network optimization over 12 candidates: expected 14 steps, got %d", got)
	}
	if got := PermitCrisis().TotalSteps(3); got != 4 {
		t.Errorf("permit crisis over 3 sites: expected 4 steps, got %d", got)
	}
	if got := PermitCrisis().TotalSteps(0); got != 2 {
		t.Errorf("empty fan-out should still count once, got %d", got)
	}
}

func TestLookupUnknownKind(t *testing.T) {
	c := DefaultCatalog()
	if _, err := c.Lookup(KindSiteEvaluation); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	_, err := c.Lookup("weather-forecast")
	if !IsPlanError(err) || !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind plan error, got %v", err)
	}
	if len(c.Kinds()) != 3 {
		t.Errorf("expected 3 kinds, got %v", c.Kinds())
	}
}

func TestBuilderValidation(t *testing.T) {
	cases := map[string]Builder{
		"no stages": NewBuilder("x"),
		"bad dimension": NewBuilder("x").
			AddSequential(AgentStep("weather", true, time.Second)),
		"zero timeout": NewBuilder("x").
			AddSequential(AgentStep(agent.DimensionMarket, true, 0)),
		"duplicate step": NewBuilder("x").
			AddParallel(AgentStep(agent.DimensionMarket, true, time.Second), AgentStep(agent.DimensionMarket, false, time.Second)),
		"synthesis without weights": NewBuilder("x").
			AddSequential(AgentStep(agent.DimensionMarket, true, time.Second)).
			AddSequential(InternalStep(StepSynthesis)),
	}
	for name, b := range cases {
		if _, err := b.Build(); !IsPlanError(err) {
			t.Errorf("%s: expected plan error, got %v", name, err)
		}
	}

	if _, err := NewCatalog(SiteEvaluation(), SiteEvaluation()); err == nil {
		t.Error("duplicate kinds should be rejected")
	}
}

func TestApplyOverrides(t *testing.T) {
	o, err := ParseOverrides([]byte(`
plans:
  site-evaluation:
    steps:
      market:
        timeout: 5s
        required: true
    weights:
      financial: 0.5
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	base := DefaultCatalog()
	c, err := base.Apply(o)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	p, _ := c.Lookup(KindSiteEvaluation)
	mkt, _ := p.Step("market")
	if mkt.Timeout != 5*time.Second || !mkt.Required {
		t.Errorf("market override not applied: %+v", mkt)
	}
	if w := p.Weights()[agent.DimensionFinancial]; w != 0.5 {
		t.Errorf("expected financial weight 0.5, got %v", w)
	}
	if w := p.Weights()[agent.DimensionLocation]; w != 0.25 {
		t.Errorf("untouched weights should remain, got %v", w)
	}

	orig, _ := base.Lookup(KindSiteEvaluation)
	if step, _ := orig.Step("market"); step.Required {
		t.Error("apply must not mutate the source catalog")
	}
}

func TestApplyRejectsUnknowns(t *testing.T) {
	bad := []string{
		"plans:\n  site-evaluation:\n    weights:\n      weather: 0.3\n",
		"plans:\n  site-evaluation:\n    steps:\n      weather: {timeout: 1s}\n",
		"plans:\n  site-evaluation:\n    steps:\n      market: {timeout: soon}\n",
		"plans:\n  lunar-survey: {}\n",
	}
	for _, doc := range bad {
		o, err := ParseOverrides([]byte(doc))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if _, err := DefaultCatalog().Apply(o); !IsPlanError(err) {
			t.Errorf("expected plan error for %q, got %v", doc, err)
		}
	}
}

func TestLoadOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte("plans:\n  permit-crisis:\n    steps:\n      regulatory: {timeout: 10s}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	c, err := DefaultCatalog().Apply(o)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	p, _ := c.Lookup(KindPermitCrisis)
	if step, _ := p.Step("regulatory"); step.Timeout != 10*time.Second || !step.PerSite {
		t.Errorf("unexpected regulatory step %+v", step)
	}
	if w := p.Weights(); w != nil {
		t.Errorf("permit crisis should carry no weights, got %v", w)
	}
}
