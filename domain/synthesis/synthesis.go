package synthesis

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/XXueTu/site_orchestrator/domain/agent"
)

// Recommendation 站点评估的分类结论
type Recommendation string

const (
	RecommendationStrongSelect Recommendation = "strong_select"
	RecommendationSelect       Recommendation = "select"
	RecommendationConsider     Recommendation = "consider"
	RecommendationReject       Recommendation = "reject"
)

// Priority 与结论配套的部署优先级
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
	PriorityNone   Priority = "None"
)

// 结论阶梯阈值
const (
	StrongSelectScore = 80.0
	StrongSelectNPV   = 5000000.0
	SelectScore       = 65.0
	SelectNPV         = 2000000.0
	ConsiderScore     = 50.0
)

// 洞察阈值
const (
	excellentLocation = 80.0
	strongMarket      = 75.0
	highROI           = 5000000.0
	regulatoryConcern = 60.0
)

// ErrNoDimensions 所有加权维度都不可用
var ErrNoDimensions = errors.New("no scored dimension available for synthesis")

// Weights 综合得分的维度权重
type Weights map[agent.Dimension]float64

// DefaultWeights 站点评估权重 25/25/30/20
func DefaultWeights() Weights {
	return Weights{
		agent.DimensionLocation:   0.25,
		agent.DimensionMarket:     0.25,
		agent.DimensionFinancial:  0.30,
		agent.DimensionRegulatory: 0.20,
	}
}

// Validate 拒绝未知维度、负权重以及全零
func (w Weights) Validate() error {
	total := 0.0
	for d, weight := range w {
		if !d.Valid() {
			return fmt.Errorf("unknown dimension %q in weights", d)
		}
		if weight < 0 || math.IsNaN(weight) {
			return fmt.Errorf("weight for %s must be non-negative", d)
		}
		total += weight
	}
	if total <= 0 {
		return fmt.Errorf("weights must not all be zero")
	}
	return nil
}

// Clone 复制权重
func (w Weights) Clone() Weights {
	c := make(Weights, len(w))
	for d, weight := range w {
		c[d] = weight
	}
	return c
}

// Input 工作流的成功智能体结果
type Input struct {
	WorkflowID string
	Site       agent.Site
	Results    map[agent.Dimension]*agent.Result
}

// Result 统一的站点评估
type Result struct {
	WorkflowID            string                            `json:"workflow_id"`
	SiteID                string                            `json:"site_id"`
	City                  string                            `json:"city"`
	OverallScore          float64                           `json:"overall_score"`
	Recommendation        Recommendation                    `json:"recommendation"`
	Priority              Priority                          `json:"priority"`
	Scores                map[agent.Dimension]float64       `json:"scores"`
	UnavailableDimensions []agent.Dimension                 `json:"unavailable_dimensions"`
	Financials            *agent.Financials                 `json:"financials,omitempty"`
	KeyInsights           []string                          `json:"key_insights"`
	AgentResults          map[agent.Dimension]*agent.Result `json:"agent_results"`
}

// Score 获取维度得分及是否可用
func (r *Result) Score(d agent.Dimension) (float64, bool) {
	s, ok := r.Scores[d]
	return s, ok
}

// NPV 上报的NPV，财务维度不可用时为零
func (r *Result) NPV() float64 {
	if r.Financials == nil {
		return 0
	}
	return r.Financials.NpvInr
}

// Synthesize 将智能体结果合并为一个评分结论。
// 不可用维度的权重按比例分配给可用维度。
func Synthesize(in Input, weights Weights) (*Result, error) {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}

	result := &Result{
		WorkflowID:            in.WorkflowID,
		SiteID:                in.Site.SiteID,
		City:                  in.Site.City,
		Scores:                make(map[agent.Dimension]float64),
		UnavailableDimensions: []agent.Dimension{},
		KeyInsights:           []string{},
		AgentResults:          make(map[agent.Dimension]*agent.Result),
	}

	weighted, totalWeight := 0.0, 0.0
	for _, d := range agent.Dimensions() {
		weight, planned := weights[d]
		if !planned {
			continue
		}
		res, ok := in.Results[d]
		if !ok || res == nil {
			result.UnavailableDimensions = append(result.UnavailableDimensions, d)
			continue
		}
		result.Scores[d] = res.Score
		result.AgentResults[d] = res
		weighted += res.Score * weight
		totalWeight += weight
	}
	if totalWeight <= 0 {
		return nil, ErrNoDimensions
	}

	if fin, ok := in.Results[agent.DimensionFinancial]; ok && fin != nil && fin.Financials != nil {
		financials := *fin.Financials
		result.Financials = &financials
	}

	result.OverallScore = math.Round(weighted/totalWeight*100) / 100
	result.Recommendation, result.Priority = Recommend(result.OverallScore, result.NPV())
	result.KeyInsights = insights(result)
	return result, nil
}

// Recommend 应用得分和NPV阶梯
func Recommend(score, npv float64) (Recommendation, Priority) {
	switch {
	case score >= StrongSelectScore && npv > StrongSelectNPV:
		return RecommendationStrongSelect, PriorityHigh
	case score >= SelectScore && npv > SelectNPV:
		return RecommendationSelect, PriorityMedium
	case score >= ConsiderScore:
		return RecommendationConsider, PriorityLow
	default:
		return RecommendationReject, PriorityNone
	}
}

func insights(r *Result) []string {
	out := []string{}

	if s, ok := r.Score(agent.DimensionLocation); ok && s > excellentLocation {
		out = append(out, "Excellent location: "+r.AgentResults[agent.DimensionLocation].Rationale)
	}
	if s, ok := r.Score(agent.DimensionMarket); ok && s > strongMarket {
		out = append(out, "Strong market: "+r.AgentResults[agent.DimensionMarket].Rationale)
	}
	if r.Financials != nil && r.Financials.NpvInr > highROI {
		out = append(out, fmt.Sprintf("High ROI: NPV INR %s, IRR %.1f%%", groupThousands(r.Financials.NpvInr), r.Financials.IrrPct))
	}
	if s, ok := r.Score(agent.DimensionRegulatory); ok && s < regulatoryConcern {
		days, _ := r.AgentResults[agent.DimensionRegulatory].Metric(agent.MetricTimelineDays)
		out = append(out, fmt.Sprintf("Regulatory concern: %.0f days approval time", days))
	}
	for _, d := range r.UnavailableDimensions {
		out = append(out, fmt.Sprintf("%s analysis unavailable: score reweighted over remaining dimensions", d))
	}
	return out
}

// groupThousands 将卢比金额格式化为 12,345,678
func groupThousands(v float64) string {
	s := strconv.FormatFloat(math.Abs(math.Round(v)), 'f', 0, 64)
	grouped := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, s[i])
	}
	if v < 0 {
		return "-" + string(grouped)
	}
	return string(grouped)
}
