package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/XXueTu/site_orchestrator/domain/trace"
)

// Dimension 单个智能体产出的评分维度
type Dimension string

const (
	DimensionLocation   Dimension = "location"
	DimensionMarket     Dimension = "market"
	DimensionFinancial  Dimension = "financial"
	DimensionRegulatory Dimension = "regulatory"
)

// Dimensions 按计划顺序返回所有评分维度
func Dimensions() []Dimension {
	return []Dimension{DimensionLocation, DimensionMarket, DimensionFinancial, DimensionRegulatory}
}

// Valid 判断是否为已知维度
func (d Dimension) Valid() bool {
	switch d {
	case DimensionLocation, DimensionMarket, DimensionFinancial, DimensionRegulatory:
		return true
	}
	return false
}

// Site 候选充电站点
type Site struct {
	SiteID                  string  `json:"site_id"`
	City                    string  `json:"city"`
	State                   string  `json:"state"`
	Latitude                float64 `json:"latitude"`
	Longitude               float64 `json:"longitude"`
	NetworkPosition         string  `json:"network_position,omitempty"`
	GridCapacityKw          float64 `json:"grid_capacity_kw,omitempty"`
	GridConnectionAvailable *bool   `json:"grid_connection_available,omitempty"`
}

// Validate 校验各智能体依赖的字段
func (s Site) Validate() error {
	if s.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if s.City == "" {
		return fmt.Errorf("site %s: city is required", s.SiteID)
	}
	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("site %s: coordinates out of range", s.SiteID)
	}
	return nil
}

// HasGridConnection 未指定时默认为 true
func (s Site) HasGridConnection() bool {
	return s.GridConnectionAvailable == nil || *s.GridConnectionAvailable
}

// CapacityKw 规划充电容量，默认 500 kW
func (s Site) CapacityKw() float64 {
	if s.GridCapacityKw <= 0 {
		return 500
	}
	return s.GridCapacityKw
}

// Position 网络位置，默认 urban
func (s Site) Position() string {
	if s.NetworkPosition == "" {
		return "urban"
	}
	return s.NetworkPosition
}

// Financials 财务维度上报的投资数据
type Financials struct {
	CapexInr        float64 `json:"capex_inr"`
	OpexAnnualInr   float64 `json:"opex_annual_inr"`
	NpvInr          float64 `json:"npv_inr"`
	IrrPct          float64 `json:"irr_pct"`
	PaybackYears    int     `json:"payback_years"`
	RevenueYear1Inr float64 `json:"revenue_year1_inr"`
}

// Result 单个智能体的分析结果
type Result struct {
	AgentID    string         `json:"agent_id"`
	Dimension  Dimension      `json:"dimension"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Financials *Financials    `json:"financials,omitempty"`
}

// Validate 拒绝不完整的结果
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if r.AgentID == "" {
		return fmt.Errorf("result has no agent id")
	}
	if math.IsNaN(r.Score) || r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %v outside [0, 100]", r.Score)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", r.Confidence)
	}
	if !r.Dimension.Valid() {
		return fmt.Errorf("unknown dimension %q", r.Dimension)
	}
	return nil
}

// Request 单次智能体调用的输入
type Request struct {
	CorrelationID string
	ParentEventID string
	Site          Site
	Upstream      map[Dimension]*Result
	Log           trace.Log
}

// UpstreamResult 获取前序步骤的成功结果
func (r *Request) UpstreamResult(d Dimension) (*Result, bool) {
	if r.Upstream == nil {
		return nil, false
	}
	res, ok := r.Upstream[d]
	return res, ok && res != nil
}

// Agent 为单个维度打分的专家智能体
type Agent interface {
	// ID 稳定的智能体标识
	ID() string

	// Dimension 该智能体负责的维度
	Dimension() Dimension

	// Analyze 返回有效结果或 *Error
	Analyze(ctx context.Context, req *Request) (*Result, error)
}

// Releaser 持有工作流级缓存的智能体实现
type Releaser interface {
	Release(correlationID string)
}

// Set 按维度索引的智能体集合
type Set map[Dimension]Agent

// NewSet 按维度索引智能体，拒绝重复
func NewSet(agents ...Agent) (Set, error) {
	set := make(Set, len(agents))
	for _, a := range agents {
		d := a.Dimension()
		if !d.Valid() {
			return nil, NewErrorf(a.ID(), nil, "unknown dimension %q", d)
		}
		if existing, ok := set[d]; ok {
			return nil, NewErrorf(a.ID(), nil, "dimension %s already served by %s", d, existing.ID())
		}
		set[d] = a
	}
	return set, nil
}

// IDs 按维度顺序的智能体ID
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, d := range Dimensions() {
		if a, ok := s[d]; ok {
			ids = append(ids, a.ID())
		}
	}
	return ids
}

// Release 释放所有智能体的工作流级状态
func (s Set) Release(correlationID string) {
	for _, a := range s {
		if r, ok := a.(Releaser); ok {
			r.Release(correlationID)
		}
	}
}

// Invoke 调用智能体，将 panic 和无效结果转换为 *Error
func Invoke(ctx context.Context, a Agent, req *Request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewErrorf(a.ID(), nil, "agent panicked: %v", r)
		}
	}()

	result, err = a.Analyze(ctx, req)
	if err != nil {
		if IsAgentError(err) {
			return nil, err
		}
		return nil, NewErrorf(a.ID(), err, "%v", err)
	}
	if verr := result.Validate(); verr != nil {
		return nil, NewErrorf(a.ID(), nil, "invalid result: %v", verr)
	}
	if result.Dimension != a.Dimension() {
		return nil, NewErrorf(a.ID(), nil, "result dimension %s, expected %s", result.Dimension, a.Dimension())
	}
	return result, nil
}

// AnalyzeFunc Func 包装的分析函数
type AnalyzeFunc func(ctx context.Context, req *Request) (*Result, error)

// funcAgent 函数适配为 Agent
type funcAgent struct {
	id        string
	dimension Dimension
	analyze   AnalyzeFunc
}

// Func 由函数构建 Agent
func Func(id string, dimension Dimension, analyze AnalyzeFunc) Agent {
	return &funcAgent{id: id, dimension: dimension, analyze: analyze}
}

func (f *funcAgent) ID() string           { return f.id }
func (f *funcAgent) Dimension() Dimension { return f.dimension }

func (f *funcAgent) Analyze(ctx context.Context, req *Request) (*Result, error) {
	return f.analyze(ctx, req)
}

// Metric 读取数值指标，兼容各种数字类型
func (r *Result) Metric(key string) (float64, bool) {
	if r == nil || r.Metrics == nil {
		return 0, false
	}
	switch v := r.Metrics[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// round2 保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
