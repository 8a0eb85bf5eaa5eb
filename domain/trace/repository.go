package trace

import "context"

// Repository 事件持久化
type Repository interface {
	// SaveEvents 批量追加事件
	SaveEvents(ctx context.Context, events []*Event) error

	// FindByCorrelation 按发出顺序获取关联ID的事件
	FindByCorrelation(ctx context.Context, correlationID string) ([]*Event, error)

	// FindRecent 获取最近的事件，按时间顺序
	FindRecent(ctx context.Context, limit int) ([]*Event, error)

	// DeleteAll 删除所有事件
	DeleteAll(ctx context.Context) error
}
