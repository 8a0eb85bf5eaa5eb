package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// WildcardTopic 接收所有发布的消息
	WildcardTopic = "*"
	// DefaultPriority 未指定优先级时使用
	DefaultPriority = 5
	// DefaultSender 未指定发送者时使用
	DefaultSender = "system"
)

// Message 发布订阅信封，Payload 保存发布时的原始字节
type Message struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Sender        string          `json:"sender"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Priority      int             `json:"priority"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Decode 将负载解码到 v
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// PublishOption 发布选项
type PublishOption func(*Message)

// WithSender 设置发送者
func WithSender(sender string) PublishOption {
	return func(m *Message) {
		m.Sender = sender
	}
}

// WithCorrelationID 设置工作流关联ID
func WithCorrelationID(correlationID string) PublishOption {
	return func(m *Message) {
		m.CorrelationID = correlationID
	}
}

// WithPriority 设置消息优先级
func WithPriority(priority int) PublishOption {
	return func(m *Message) {
		m.Priority = priority
	}
}

// WithTimestamp 设置消息时间
func WithTimestamp(t time.Time) PublishOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

// NewMessage 构建信封，负载只编码一次
func NewMessage(topic string, payload any, opts ...PublishOption) (*Message, error) {
	if topic == "" {
		return nil, NewBusError("topic is required")
	}
	if topic == WildcardTopic {
		return nil, NewBusError("cannot publish to the wildcard topic")
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:        fmt.Sprintf("msg_%s", uuid.New().String()),
		Topic:     topic,
		Payload:   raw,
		Sender:    DefaultSender,
		Priority:  DefaultPriority,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Stamped 将时钟时间放在 opts 之前，显式 WithTimestamp 优先
func Stamped(now time.Time, opts ...PublishOption) []PublishOption {
	return append([]PublishOption{WithTimestamp(now)}, opts...)
}

// encodePayload 已编码的JSON原样保留
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, NewBusError("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), p...), nil
	case []byte:
		if !json.Valid(p) {
			return nil, NewBusError("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, NewBusErrorf("encode payload: %v", err)
		}
		return raw, nil
	}
}
