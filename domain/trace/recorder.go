package trace

import (
	"context"
	"log"
	"sync"
	"time"
)

// Recorder 将事件批量写入仓储
type Recorder struct {
	repository    Repository
	batchSize     int
	flushInterval time.Duration
	pending       []*Event
	mutex         sync.Mutex
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewRecorder 创建记录器并启动后台刷新
func NewRecorder(repository Repository, batchSize int, flushInterval time.Duration) *Recorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	r := &Recorder{
		repository:    repository,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		pending:       make([]*Event, 0, batchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	go r.backgroundFlush()

	return r
}

// Record 加入队列，批次满时刷新
func (r *Recorder) Record(event *Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pending = append(r.pending, event)
	if len(r.pending) >= r.batchSize {
		r.flushPending()
	}
}

// Flush 立即写入队列中的事件
func (r *Recorder) Flush() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.flushPending()
}

// flushPending 调用方需持有 r.mutex
func (r *Recorder) flushPending() error {
	if len(r.pending) == 0 {
		return nil
	}

	batch := make([]*Event, len(r.pending))
	copy(batch, r.pending)
	r.pending = r.pending[:0]

	if err := r.repository.SaveEvents(context.Background(), batch); err != nil {
		log.Printf("[trace] failed to persist %d events: %v", len(batch), err)
		return err
	}
	return nil
}

// Clear 清空队列和已持久化的历史
func (r *Recorder) Clear() {
	r.mutex.Lock()
	r.pending = r.pending[:0]
	r.mutex.Unlock()

	if err := r.repository.DeleteAll(context.Background()); err != nil {
		log.Printf("[trace] failed to clear persisted events: %v", err)
	}
}

// Load 刷新后从仓储读取关联事件
func (r *Recorder) Load(ctx context.Context, correlationID string) ([]*Event, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}
	return r.repository.FindByCorrelation(ctx, correlationID)
}

// backgroundFlush 定时刷新
func (r *Recorder) backgroundFlush() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-r.stopCh:
			r.Flush()
			return
		}
	}
}

// Close 最后刷新一次并停止刷新循环
func (r *Recorder) Close() error {
	close(r.stopCh)
	<-r.doneCh
	return nil
}
