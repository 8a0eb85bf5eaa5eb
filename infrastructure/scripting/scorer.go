// Package scripting runs user supplied Lua ranking functions for the scripted
// optimization objective.
package scripting

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/selection"
)

// DefaultCallTimeout upper bound of a single rank() call
const DefaultCallTimeout = 100 * time.Millisecond

// Scorer implements selection.Scorer with a Lua rank(s) function.
// A Lua state is not safe for concurrent use, calls are serialized.
type Scorer struct {
	mu      sync.Mutex
	state   *lua.LState
	rank    lua.LValue
	timeout time.Duration
}

// Option configures a Scorer
type Option func(*Scorer)

// WithCallTimeout bounds each rank() call
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// LoadScorer reads a script from path
func LoadScorer(path string, opts ...Option) (*Scorer, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return NewScorer(string(script), opts...)
}

// NewScorer loads a script that must define a global rank(s) function
func NewScorer(script string, opts ...Option) (*Scorer, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	rank := L.GetGlobal("rank")
	if rank.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("script must define a 'rank' function")
	}

	s := &Scorer{state: L, rank: rank, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// openSafeLibs base, table, string and math without file, os or io access
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	if math, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(math, "random", lua.LNil)
		L.SetField(math, "randomseed", lua.LNil)
	}
}

// Score calls rank(s) where s carries the candidate's scores and economics
func (s *Scorer) Score(c selection.Candidate) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.state.SetContext(ctx)
	defer s.state.RemoveContext()

	s.state.Push(s.rank)
	s.state.Push(s.candidateTable(c))
	if err := s.state.PCall(1, 1, nil); err != nil {
		return 0, fmt.Errorf("rank %s: %w", c.Site.SiteID, err)
	}
	ret := s.state.Get(-1)
	s.state.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("rank %s: expected a number, got %s", c.Site.SiteID, ret.Type())
	}
	return float64(n), nil
}

func (s *Scorer) candidateTable(c selection.Candidate) *lua.LTable {
	L := s.state
	t := L.NewTable()
	L.SetField(t, "index", lua.LNumber(c.Index))
	L.SetField(t, "site_id", lua.LString(c.Site.SiteID))
	L.SetField(t, "city", lua.LString(c.Site.City))
	L.SetField(t, "state", lua.LString(c.Site.State))
	L.SetField(t, "network_position", lua.LString(c.Site.Position()))
	for _, d := range agent.Dimensions() {
		L.SetField(t, string(d), lua.LNumber(c.Score(d)))
	}
	if c.Evaluation != nil {
		L.SetField(t, "overall_score", lua.LNumber(c.Evaluation.OverallScore))
	}
	L.SetField(t, "capex_inr", lua.LNumber(c.CapexInr()))
	L.SetField(t, "revenue_year1_inr", lua.LNumber(c.RevenueYear1Inr()))
	L.SetField(t, "npv_inr", lua.LNumber(c.NpvInr()))
	return t
}

// Close releases the Lua state
func (s *Scorer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
}

var _ selection.Scorer = (*Scorer)(nil)
