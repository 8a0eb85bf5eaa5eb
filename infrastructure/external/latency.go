package external

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

// DefaultLatencyScale production pacing relative to the documented ranges
const DefaultLatencyScale = 0.1

type latencyRange struct {
	min time.Duration
	max time.Duration
}

// documented response time ranges per external system
var latencyRanges = map[string]latencyRange{
	agent.SystemVAHAN:      {300 * time.Millisecond, 800 * time.Millisecond},
	agent.SystemCensus:     {300 * time.Millisecond, 600 * time.Millisecond},
	agent.SystemMunicipal:  {500 * time.Millisecond, 1000 * time.Millisecond},
	agent.SystemGrid:       {400 * time.Millisecond, 800 * time.Millisecond},
	agent.SystemCompetitor: {300 * time.Millisecond, 700 * time.Millisecond},
	agent.SystemTraffic:    {400 * time.Millisecond, 900 * time.Millisecond},
	agent.SystemFinancial:  {300 * time.Millisecond, 600 * time.Millisecond},
}

// fallback for systems without a documented range
var defaultRange = latencyRange{200 * time.Millisecond, 500 * time.Millisecond}

// RangeLatency draws a uniform delay from the system's range, scaled
type RangeLatency struct {
	scale float64
}

// NewRangeLatency creates a range latency provider; scale <= 0 uses DefaultLatencyScale
func NewRangeLatency(scale float64) *RangeLatency {
	if scale <= 0 {
		scale = DefaultLatencyScale
	}
	return &RangeLatency{scale: scale}
}

// Delay implements agent.LatencyProvider
func (l *RangeLatency) Delay(system string) time.Duration {
	r := rangeFor(system)
	span := float64(r.max - r.min)
	d := float64(r.min) + rand.Float64()*span
	return time.Duration(d * l.scale)
}

// Bounds scaled range for a system
func (l *RangeLatency) Bounds(system string) (time.Duration, time.Duration) {
	r := rangeFor(system)
	return time.Duration(float64(r.min) * l.scale), time.Duration(float64(r.max) * l.scale)
}

func rangeFor(system string) latencyRange {
	if strings.HasSuffix(system, "_Municipal") {
		system = agent.SystemMunicipal
	}
	if r, ok := latencyRanges[system]; ok {
		return r
	}
	return defaultRange
}
