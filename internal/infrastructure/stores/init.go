// Package stores 根据配置创建文档存储实现
package stores

import (
	"context"
	"fmt"

	"eval-cache/configs"
	"eval-cache/internal/domain/repositories"
	"eval-cache/internal/infrastructure/stores/memory"
	"eval-cache/internal/infrastructure/stores/mongo"
	"eval-cache/internal/infrastructure/stores/redis"
	"eval-cache/internal/infrastructure/stores/sqlite"
	"eval-cache/pkg/logger"
)

// DocumentStoreFactory 文档存储工厂
type DocumentStoreFactory struct {
	logger logger.Logger
}

// NewDocumentStoreFactory 创建文档存储工厂
func NewDocumentStoreFactory(log logger.Logger) *DocumentStoreFactory {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DocumentStoreFactory{logger: log}
}

// CreateDocumentStore 根据 Type 创建对应的存储，并包装 Prometheus 指标
func (f *DocumentStoreFactory) CreateDocumentStore(ctx context.Context, cfg *configs.StoreConfig) (repositories.DocumentStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("store config validation failed: %w", err)
	}

	slogger := f.logger.With("component", "store", "store_type", cfg.Type).SlogLogger()

	var (
		store repositories.DocumentStore
		err   error
	)
	switch cfg.Type {
	case "mongo":
		store, err = mongo.New(ctx, &cfg.Mongo, slogger)
	case "redis":
		store, err = redis.New(ctx, &cfg.Redis, slogger)
	case "sqlite":
		store, err = sqlite.New(ctx, &cfg.SQLite, slogger)
	case "memory":
		store = memory.New()
	default:
		err = fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		f.logger.ErrorContext(ctx, "文档存储初始化失败", "type", cfg.Type, "error", err)
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Type, err)
	}

	f.logger.InfoContext(ctx, "文档存储创建成功", "type", cfg.Type)
	return Instrument(store, cfg.Type), nil
}
