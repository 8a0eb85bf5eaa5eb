package memory

import (
	"context"
	"sync"

	"github.com/XXueTu/site_orchestrator/domain/logger"
)

// logRepository 内存工作流日志存储
type logRepository struct {
	logs  map[string][]*logger.LogEntry
	mutex sync.RWMutex
}

// NewLogRepository 创建内存日志仓储
func NewLogRepository() logger.LogRepository {
	return &logRepository{logs: make(map[string][]*logger.LogEntry)}
}

func (r *logRepository) SaveLogs(ctx context.Context, logs []*logger.LogEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, entry := range logs {
		r.logs[entry.CorrelationID()] = append(r.logs[entry.CorrelationID()], entry)
	}
	return nil
}

func (r *logRepository) GetLogs(ctx context.Context, correlationID string, limit, offset int) ([]*logger.LogEntry, error) {
	return r.GetStepLogs(ctx, correlationID, "", limit, offset)
}

// GetStepLogs 按步骤过滤，step 为空时匹配全部
func (r *logRepository) GetStepLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*logger.LogEntry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var matched []*logger.LogEntry
	for _, entry := range r.logs[correlationID] {
		if step == "" || entry.Step() == step {
			matched = append(matched, entry)
		}
	}
	return page(matched, limit, offset), nil
}

func (r *logRepository) DeleteLogs(ctx context.Context, correlationID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.logs, correlationID)
	return nil
}

func page(entries []*logger.LogEntry, limit, offset int) []*logger.LogEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []*logger.LogEntry{}
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*logger.LogEntry, len(entries))
	copy(out, entries)
	return out
}
