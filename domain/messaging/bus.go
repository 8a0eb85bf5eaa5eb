package messaging

import (
	"log"
	"sync"
	"time"
)

// DefaultRecentLimit RecentMessages 的 limit 非正时使用
const DefaultRecentLimit = 50

// Handler 消息处理函数
type Handler func(msg *Message) error

// SubscriptionID 订阅标识，用于取消订阅
type SubscriptionID int64

// Stats 总线监控快照
type Stats struct {
	Published   int64 `json:"published"`
	Processed   int64 `json:"processed"`
	Failed      int64 `json:"failed"`
	Topics      int   `json:"topics"`
	Subscribers int   `json:"subscribers"`
	Pending     int   `json:"pending"`
}

// Bus 基于主题的发布订阅通道
type Bus interface {
	// Publish 投递给主题和通配订阅者，然后记录消息
	Publish(topic string, payload any, opts ...PublishOption) (*Message, error)

	// Subscribe 注册处理函数，不回放历史消息
	Subscribe(topic string, handler Handler) SubscriptionID

	// Unsubscribe 取消订阅
	Unsubscribe(topic string, id SubscriptionID) bool

	// Stats 获取计数
	Stats() Stats

	// RecentMessages 获取主题历史（为空时所有主题），按时间顺序
	RecentMessages(topic string, limit int) []*Message

	// ByCorrelation 获取带关联ID的消息
	ByCorrelation(correlationID string) []*Message

	// Clear 清空消息历史
	Clear()
}

// Dispatcher 可投递预构建消息的总线
type Dispatcher interface {
	Bus

	// Deliver 将消息分发给当前订阅者并记录
	Deliver(msg *Message)

	// Now 总线时钟的当前时间
	Now() time.Time
}

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// memoryBus 同步进程内总线
type memoryBus struct {
	subscribers map[string][]subscription
	history     []*Message
	nextID      SubscriptionID
	published   int64
	processed   int64
	failed      int64
	now         func() time.Time
	mutex       sync.RWMutex
}

// BusOption 总线配置选项
type BusOption func(*memoryBus)

// WithBusClock 设置消息时间戳来源
func WithBusClock(now func() time.Time) BusOption {
	return func(b *memoryBus) {
		b.now = now
	}
}

// NewBus 创建同步总线
func NewBus(opts ...BusOption) Dispatcher {
	b := &memoryBus{
		subscribers: make(map[string][]subscription),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *memoryBus) Now() time.Time {
	return b.now()
}

// Publish 按订阅注册顺序投递：先主题订阅者，再通配订阅者
func (b *memoryBus) Publish(topic string, payload any, opts ...PublishOption) (*Message, error) {
	msg, err := NewMessage(topic, payload, Stamped(b.now(), opts...)...)
	if err != nil {
		return nil, err
	}
	b.Deliver(msg)
	return msg, nil
}

// Deliver 分发已构建的消息并记录
func (b *memoryBus) Deliver(msg *Message) {
	b.mutex.Lock()
	b.published++
	targets := make([]subscription, 0, len(b.subscribers[msg.Topic])+len(b.subscribers[WildcardTopic]))
	targets = append(targets, b.subscribers[msg.Topic]...)
	targets = append(targets, b.subscribers[WildcardTopic]...)
	b.mutex.Unlock()

	var failures int64
	for _, sub := range targets {
		if !b.dispatch(sub, msg) {
			failures++
		}
	}

	b.mutex.Lock()
	b.history = append(b.history, msg)
	b.processed++
	b.failed += failures
	b.mutex.Unlock()
}

// dispatch 执行单个处理函数并返回是否成功
func (b *memoryBus) dispatch(sub subscription, msg *Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscriber %d panicked on %s: %v", sub.id, msg.Topic, r)
			ok = false
		}
	}()
	if err := sub.handler(msg); err != nil {
		log.Printf("[bus] subscriber %d failed on %s: %v", sub.id, msg.Topic, err)
		return false
	}
	return true
}

// Subscribe 为主题或通配符注册处理函数
func (b *memoryBus) Subscribe(topic string, handler Handler) SubscriptionID {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: b.nextID, handler: handler})
	return b.nextID
}

// Unsubscribe 取消一个订阅
func (b *memoryBus) Unsubscribe(topic string, id SubscriptionID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		subs = append(subs[:i:i], subs[i+1:]...)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		} else {
			b.subscribers[topic] = subs
		}
		return true
	}
	return false
}

// Stats 计数快照
func (b *memoryBus) Stats() Stats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	stats := Stats{
		Published: b.published,
		Processed: b.processed,
		Failed:    b.failed,
		Topics:    len(b.subscribers),
	}
	for _, subs := range b.subscribers {
		stats.Subscribers += len(subs)
	}
	return stats
}

// RecentMessages 按主题过滤历史
func (b *memoryBus) RecentMessages(topic string, limit int) []*Message {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var matched []*Message
	for _, msg := range b.history {
		if topic == "" || msg.Topic == topic {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// ByCorrelation 工作流的消息
func (b *memoryBus) ByCorrelation(correlationID string) []*Message {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var matched []*Message
	for _, msg := range b.history {
		if msg.CorrelationID == correlationID {
			matched = append(matched, msg)
		}
	}
	return matched
}

// Clear 清空历史，订阅和计数保留
func (b *memoryBus) Clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.history = nil
}
