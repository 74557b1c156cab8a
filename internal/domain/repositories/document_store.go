package repositories

import (
	"context"

	"eval-cache/internal/domain/models"
)

// DocumentStore 文档存储仓储接口
// 负责缓存条目的持久化，是结果缓存唯一的外部协作者
type DocumentStore interface {
	// FindMatching 查找请求字段满足 key 全部约束的条目
	// 结果按 models.Outranks 排序（分数降序、创建时间降序、ID 降序）
	// limit <= 0 表示不限制数量
	FindMatching(ctx context.Context, key models.CacheKey, limit int) ([]*models.CacheEntry, error)

	// Insert 写入新条目并返回存储分配的 ID
	// 要么整条写入，要么什么都不写
	Insert(ctx context.Context, entry *models.CacheEntry) (string, error)

	// IncrementHitCount 原子地将命中次数加一并返回自增后的值
	// 必须是存储端的相对更新，不能读出旧值再覆盖写回
	// ID 不存在时返回 models.ErrEntryNotFound
	IncrementHitCount(ctx context.Context, id string) (int64, error)

	// Get 根据ID获取条目，不影响命中次数
	Get(ctx context.Context, id string) (*models.CacheEntry, error)

	// Count 返回条目总数
	Count(ctx context.Context) (int64, error)

	// Ping 检查存储可用性
	Ping(ctx context.Context) error

	// Close 释放连接
	Close(ctx context.Context) error
}
