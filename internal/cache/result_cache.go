// Package cache 实现评估结果缓存的核心逻辑：精确匹配查找、同键条目的确定性选择、
// 原子命中计数以及新结果的无条件写入。持久化完全委托给 repositories.DocumentStore。
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"eval-cache/configs"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/repositories"
	"eval-cache/internal/domain/services"
	"eval-cache/pkg/logger"
)

// SavedMessage 写入成功时返回给调用方的消息
const SavedMessage = "Result successfully stored in cache."

var _ services.CacheService = (*ResultCache)(nil)

// ResultCache 结果缓存
type ResultCache struct {
	store          repositories.DocumentStore
	scorePath      string
	candidateLimit int
	logger         logger.Logger

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

// New 创建结果缓存。cfg 为 nil 时使用默认分数路径且不限制候选数量。
func New(store repositories.DocumentStore, cfg *configs.CacheConfig, log logger.Logger) *ResultCache {
	if log == nil {
		log = logger.GetDefault()
	}
	c := &ResultCache{
		store:     store,
		scorePath: DefaultScorePath,
		logger:    log.With("component", "result_cache"),
		now:       time.Now,
	}
	if cfg != nil {
		if cfg.ScorePath != "" {
			c.scorePath = cfg.ScorePath
		}
		c.candidateLimit = cfg.CandidateLimit
	}
	return c
}

// Lookup 查询缓存
func (c *ResultCache) Lookup(ctx context.Context, raw map[string]any) (*models.CacheResult, error) {
	key, err := models.NormalizeKey(raw)
	if err != nil {
		lookupsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	candidates, err := c.store.FindMatching(ctx, key, c.candidateLimit)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.ErrorContext(ctx, "缓存查找失败", "fields", key.Fields(), "error", err)
		return nil, models.NewStorageError("find", err)
	}

	best := selectBest(candidates)
	if best == nil {
		c.misses.Add(1)
		lookupsTotal.WithLabelValues("miss").Inc()
		c.logger.DebugContext(ctx, "缓存未命中", "fields", key.Fields())
		return &models.CacheResult{Hit: false}, nil
	}

	hitCount, err := c.store.IncrementHitCount(ctx, best.ID)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		c.logger.ErrorContext(ctx, "命中计数更新失败", "id", best.ID, "error", err)
		return nil, models.NewStorageError("increment", err)
	}

	entry := best.Clone()
	entry.HitCount = hitCount

	c.hits.Add(1)
	lookupsTotal.WithLabelValues("hit").Inc()
	c.logger.DebugContext(ctx, "缓存命中",
		"id", entry.ID,
		"score", entry.Score,
		"hit_count", entry.HitCount,
		"candidates", len(candidates))

	return &models.CacheResult{Hit: true, Entry: entry}, nil
}

// Save 写入新条目
func (c *ResultCache) Save(ctx context.Context, rawKey map[string]any, rawResponse map[string]any) (*models.SaveResult, error) {
	if rawKey == nil {
		savesTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: request is required", models.ErrMalformedInput)
	}
	key, err := models.NormalizeKey(rawKey)
	if err != nil {
		savesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	response, err := models.NormalizeResponse(rawResponse)
	if err != nil {
		savesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	score, err := ExtractScore(response, c.scorePath)
	if err != nil {
		savesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	entry := &models.CacheEntry{
		Request:  key,
		Response: response,
		Score:    score,
		HitCount: 0,
		// 毫秒精度与 MongoDB 的时间精度一致，各存储排序结果相同
		CreatedAt: c.now().UTC().Truncate(time.Millisecond),
	}

	id, err := c.store.Insert(ctx, entry)
	if err != nil {
		savesTotal.WithLabelValues("error").Inc()
		c.logger.ErrorContext(ctx, "缓存写入失败", "fields", key.Fields(), "error", err)
		return nil, models.NewStorageError("insert", err)
	}

	savesTotal.WithLabelValues("stored").Inc()
	c.logger.InfoContext(ctx, "缓存写入成功", "id", id, "score", score)

	return &models.SaveResult{Stored: true, Message: SavedMessage, ID: id}, nil
}

// Get 根据ID获取缓存项，不计入命中
func (c *ResultCache) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", models.ErrMalformedInput)
	}
	entry, err := c.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrEntryNotFound) {
			return nil, err
		}
		return nil, models.NewStorageError("get", err)
	}
	return entry, nil
}

// Statistics 获取缓存统计信息
func (c *ResultCache) Statistics(ctx context.Context) (*models.CacheStatistics, error) {
	entries, err := c.store.Count(ctx)
	if err != nil {
		return nil, models.NewStorageError("count", err)
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	stats := &models.CacheStatistics{
		Entries: entries,
		Hits:    hits,
		Misses:  misses,
		Store:   storeName(c.store),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats, nil
}

// Health 获取缓存系统健康状态
func (c *ResultCache) Health(ctx context.Context) *models.HealthStatus {
	status := &models.HealthStatus{
		Healthy:   true,
		Status:    "healthy",
		Store:     storeName(c.store),
		Timestamp: c.now().Unix(),
	}
	if err := c.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

func storeName(store repositories.DocumentStore) string {
	if named, ok := store.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}
