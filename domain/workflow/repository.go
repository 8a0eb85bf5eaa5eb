package workflow

import "context"

// Repository 工作流快照持久化
type Repository interface {
	// Save 插入或替换快照
	Save(ctx context.Context, snapshot Snapshot) error

	// FindByID 加载快照，不存在时返回 ErrNotFound 错误
	FindByID(ctx context.Context, id string) (Snapshot, error)

	// List 按状态获取快照（为空时全部），新的在前
	List(ctx context.Context, status Status, limit int) ([]Snapshot, error)
}
