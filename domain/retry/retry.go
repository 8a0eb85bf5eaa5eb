package retry

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// Outcome 重试操作的结果
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded" // 首次成功
	OutcomeRecovered Outcome = "recovered" // 重试后成功
	OutcomeExhausted Outcome = "exhausted" // 全部尝试失败
	OutcomeAbandoned Outcome = "abandoned" // 不可重试或上下文结束
)

// Config 智能体步骤的重试策略
type Config struct {
	maxAutoRetries    int
	retryDelay        time.Duration
	backoffMultiplier float64
	maxRetryDelay     time.Duration
}

// NewConfig 创建重试策略
func NewConfig(maxAutoRetries int, retryDelay time.Duration, backoffMultiplier float64, maxRetryDelay time.Duration) *Config {
	if maxAutoRetries < 0 {
		maxAutoRetries = 0
	}
	if backoffMultiplier < 1 {
		backoffMultiplier = 1
	}
	return &Config{
		maxAutoRetries:    maxAutoRetries,
		retryDelay:        retryDelay,
		backoffMultiplier: backoffMultiplier,
		maxRetryDelay:     maxRetryDelay,
	}
}

// DefaultConfig 默认不重试
func DefaultConfig() *Config {
	return NewConfig(0, 100*time.Millisecond, 2.0, 2*time.Second)
}

func (c *Config) MaxAutoRetries() int          { return c.maxAutoRetries }
func (c *Config) RetryDelay() time.Duration    { return c.retryDelay }
func (c *Config) BackoffMultiplier() float64   { return c.backoffMultiplier }
func (c *Config) MaxRetryDelay() time.Duration { return c.maxRetryDelay }

// CalculateDelay 计算第几次重试前的退避时间，从1开始
func (c *Config) CalculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(c.retryDelay) * math.Pow(c.backoffMultiplier, float64(attempt-1)))
	if c.maxRetryDelay > 0 && delay > c.maxRetryDelay {
		delay = c.maxRetryDelay
	}
	return delay
}

// Hooks Do 的可选回调
type Hooks struct {
	// Retryable 判断失败后是否可以重试，nil 时全部重试
	Retryable func(err error) bool
	// OnRetry 每次重试等待前执行
	OnRetry func(retry int, delay time.Duration, lastErr error)
	// After 退避等待，nil 时使用 time.After
	After func(d time.Duration) <-chan time.Time
}

// Do 执行 fn 直到成功或策略放弃。fn 接收
// 从0开始的尝试序号。
func (c *Config) Do(ctx context.Context, hooks Hooks, fn func(ctx context.Context, attempt int) error) (Outcome, error) {
	after := hooks.After
	if after == nil {
		after = time.After
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			if attempt == 0 {
				return OutcomeSucceeded, nil
			}
			return OutcomeRecovered, nil
		}
		if hooks.Retryable != nil && !hooks.Retryable(err) {
			return OutcomeAbandoned, err
		}
		if attempt >= c.maxAutoRetries {
			return OutcomeExhausted, err
		}

		delay := c.CalculateDelay(attempt + 1)
		if hooks.OnRetry != nil {
			hooks.OnRetry(attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return OutcomeAbandoned, err
		case <-after(delay):
		}
	}
}

// Statistics 重试计数
type Statistics struct {
	retries   atomic.Int64
	recovered atomic.Int64
	exhausted atomic.Int64
	abandoned atomic.Int64
}

// Record 记录结果及重试次数
func (s *Statistics) Record(outcome Outcome, retries int) {
	s.retries.Add(int64(retries))
	switch outcome {
	case OutcomeRecovered:
		s.recovered.Add(1)
	case OutcomeExhausted:
		s.exhausted.Add(1)
	case OutcomeAbandoned:
		s.abandoned.Add(1)
	}
}

// Snapshot 计数的可复制视图
type Snapshot struct {
	Retries   int64 `json:"retries"`
	Recovered int64 `json:"recovered"`
	Exhausted int64 `json:"exhausted"`
	Abandoned int64 `json:"abandoned"`
}

func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		Retries:   s.retries.Load(),
		Recovered: s.recovered.Load(),
		Exhausted: s.exhausted.Load(),
		Abandoned: s.abandoned.Load(),
	}
}
