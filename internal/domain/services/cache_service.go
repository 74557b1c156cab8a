package services

import (
	"context"

	"eval-cache/internal/domain/models"
)

// CacheService 结果缓存服务接口，负责查找、选择、命中计数和写入
type CacheService interface {
	// Lookup 查询缓存
	// 未命中返回 Hit=false，不视为错误
	// 命中时被选中条目的命中次数在返回前已持久化加一
	Lookup(ctx context.Context, key map[string]any) (*models.CacheResult, error)

	// Save 无条件写入新条目，同键的多个条目可以共存
	Save(ctx context.Context, key map[string]any, response map[string]any) (*models.SaveResult, error)

	// Get 根据ID获取缓存项
	Get(ctx context.Context, id string) (*models.CacheEntry, error)

	// Statistics 获取缓存统计信息
	Statistics(ctx context.Context) (*models.CacheStatistics, error)

	// Health 获取缓存系统健康状态
	Health(ctx context.Context) *models.HealthStatus
}
