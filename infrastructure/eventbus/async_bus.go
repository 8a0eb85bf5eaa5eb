package eventbus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/messaging"
)

// AsyncBus 将发布的消息入队，由单个工作协程投递，
// 保证同一主题的投递顺序与发布顺序一致
type AsyncBus struct {
	inner   messaging.Dispatcher
	queue   chan *messaging.Message
	pending atomic.Int64
	closed  bool
	mutex   sync.Mutex
	doneCh  chan struct{}
}

// NewAsyncBus 用容量为 queueSize 的有界队列包装 inner
func NewAsyncBus(inner messaging.Dispatcher, queueSize int) *AsyncBus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	b := &AsyncBus{
		inner:  inner,
		queue:  make(chan *messaging.Message, queueSize),
		doneCh: make(chan struct{}),
	}

	go b.run()

	return b
}

// run 持续消费队列直到 Close
func (b *AsyncBus) run() {
	defer close(b.doneCh)

	for msg := range b.queue {
		b.inner.Deliver(msg)
		b.pending.Add(-1)
	}
}

// Publish 消息入队，仅在队列满时阻塞
func (b *AsyncBus) Publish(topic string, payload any, opts ...messaging.PublishOption) (*messaging.Message, error) {
	msg, err := messaging.NewMessage(topic, payload, messaging.Stamped(b.inner.Now(), opts...)...)
	if err != nil {
		return nil, err
	}

	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil, messaging.NewBusError("bus is closed")
	}
	b.pending.Add(1)
	// 持锁发送，入队顺序与发布顺序一致
	b.queue <- msg
	b.mutex.Unlock()

	return msg, nil
}

// Deliver 预构建消息入队
func (b *AsyncBus) Deliver(msg *messaging.Message) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		log.Printf("[bus] dropped %s after close", msg.ID)
		return
	}
	b.pending.Add(1)
	b.queue <- msg
}

// Subscribe 在内部总线上注册处理函数
func (b *AsyncBus) Subscribe(topic string, handler messaging.Handler) messaging.SubscriptionID {
	return b.inner.Subscribe(topic, handler)
}

// Unsubscribe 从内部总线移除处理函数
func (b *AsyncBus) Unsubscribe(topic string, id messaging.SubscriptionID) bool {
	return b.inner.Unsubscribe(topic, id)
}

// Stats 内部计数加上排队中的消息
func (b *AsyncBus) Stats() messaging.Stats {
	stats := b.inner.Stats()
	pending := b.pending.Load()
	stats.Pending = int(pending)
	stats.Published += pending
	return stats
}

// RecentMessages 已投递的历史
func (b *AsyncBus) RecentMessages(topic string, limit int) []*messaging.Message {
	return b.inner.RecentMessages(topic, limit)
}

// ByCorrelation 工作流已投递的消息
func (b *AsyncBus) ByCorrelation(correlationID string) []*messaging.Message {
	return b.inner.ByCorrelation(correlationID)
}

// Clear 清空已投递历史
func (b *AsyncBus) Clear() {
	b.inner.Clear()
}

// Now 内部总线时钟的时间
func (b *AsyncBus) Now() time.Time {
	return b.inner.Now()
}

// Close 停止接收消息并等待队列清空
func (b *AsyncBus) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mutex.Unlock()

	<-b.doneCh
	return nil
}
