// Package client 编排器API的类型化HTTP客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/XXueTu/site_orchestrator/application"
	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// DefaultTimeout 覆盖生产节奏下的一次完整网络优化
const DefaultTimeout = 120 * time.Second

// APIError 非2xx响应，携带服务端错误信息
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound 判断是否为服务端404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client 编排器服务客户端
type Client struct {
	baseURL string
	http    *http.Client
}

// Option 客户端配置选项
type Option func(*Client)

// WithHTTPClient 替换底层HTTP客户端
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient 创建客户端，baseURL 例如 http://localhost:8080
func NewClient(baseURL string, opts ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed != "" && !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	c := &Client{
		baseURL: trimmed,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EvaluateSite POST /api/v1/evaluations。被拒绝的站点同样
// 解码为 Success 为 false 的响应
func (c *Client) EvaluateSite(ctx context.Context, site agent.Site) (*application.EvaluationResponse, error) {
	var resp application.EvaluationResponse
	body := map[string]agent.Site{"site": site}
	if err := c.do(ctx, http.MethodPost, "/api/v1/evaluations", nil, body, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OptimizeNetwork POST /api/v1/optimizations
func (c *Client) OptimizeNetwork(ctx context.Context, req application.OptimizationRequest) (*application.OptimizationResponse, error) {
	var resp application.OptimizationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/optimizations", nil, req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HandlePermitCrisis POST /api/v1/permit-crises
func (c *Client) HandlePermitCrisis(ctx context.Context, req application.CrisisRequest) (*application.CrisisResponse, error) {
	var resp application.CrisisResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/permit-crises", nil, req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWorkflow GET /api/v1/workflows/{id}；未知ID匹配 IsNotFound
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Snapshot, error) {
	var snapshot workflow.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil, nil, &snapshot, false); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListWorkflows GET /api/v1/workflows，status 为空时返回全部
func (c *Client) ListWorkflows(ctx context.Context, status workflow.Status) ([]workflow.Snapshot, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var resp struct {
		Workflows []workflow.Snapshot `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflows", query, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// GetEvents GET /api/v1/events，设置 correlationID 时只返回该工作流
func (c *Client) GetEvents(ctx context.Context, correlationID string, limit int) ([]*trace.Event, error) {
	query := url.Values{}
	if correlationID != "" {
		query.Set("correlation_id", correlationID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Events []*trace.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", query, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// GetMessages GET /api/v1/messages，topic 为空时返回所有主题
func (c *Client) GetMessages(ctx context.Context, topic string, limit int) ([]*messaging.Message, error) {
	query := url.Values{}
	if topic != "" {
		query.Set("topic", topic)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Messages []*messaging.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/messages", query, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// GetStatistics GET /api/v1/statistics
func (c *Client) GetStatistics(ctx context.Context) (*application.Statistics, error) {
	var stats application.Statistics
	if err := c.do(ctx, http.MethodGet, "/api/v1/statistics", nil, nil, &stats, false); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ClearHistory POST /api/v1/admin/clear
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/clear", nil, nil, nil, false)
}

// Health GET /api/v1/health
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, nil, false)
}

// do 发送一个请求。acceptRejected 时 400 响应体按成功解码到 out，
// 工作流接口对被拒绝的输入返回常规响应
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, acceptRejected bool) error {
	if c.baseURL == "" {
		return fmt.Errorf("server URL is not configured")
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && !(acceptRejected && resp.StatusCode == http.StatusBadRequest && !isErrorBody(data)) {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isErrorBody 匹配传输层失败的 {"error": "..."} 响应体
func isErrorBody(data []byte) bool {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return true
	}
	raw, ok := body["error"]
	if !ok {
		return false
	}
	var s string
	return json.Unmarshal(raw, &s) == nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
