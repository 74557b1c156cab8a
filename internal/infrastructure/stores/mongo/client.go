package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"eval-cache/configs"
)

// Client MongoDB 客户端封装，绑定配置中的数据库与集合
type Client struct {
	*mongo.Client
	cfg    configs.MongoConfig
	logger *slog.Logger
}

// NewClient 按配置连接 MongoDB 并用 ping 确认可用
func NewClient(ctx context.Context, cfg *configs.MongoConfig, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mongo config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		logger.ErrorContext(ctx, "MongoDB配置验证失败", "error", err)
		return nil, fmt.Errorf("invalid mongo config: %w", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.ErrorContext(ctx, "MongoDB连接失败", "uri", redactURI(cfg.URI), "error", err)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.InfoContext(ctx, "MongoDB连接成功",
		"database", cfg.Database,
		"collection", cfg.Collection)

	return &Client{Client: client, cfg: *cfg, logger: logger}, nil
}

// DB 返回配置中的数据库
func (c *Client) DB() *mongo.Database {
	return c.Database(c.cfg.Database)
}

// Coll 返回缓存条目集合
func (c *Client) Coll() *mongo.Collection {
	return c.DB().Collection(c.cfg.Collection)
}

// redactURI 去掉 URI 中的账号信息再写日志
func redactURI(uri string) string {
	opts := options.Client().ApplyURI(uri)
	if len(opts.Hosts) == 0 {
		return "mongodb://<invalid>"
	}
	return fmt.Sprintf("mongodb://%s", opts.Hosts[0])
}
