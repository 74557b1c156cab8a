package configs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 EVALCACHE_STORE_TYPE、EVALCACHE_SERVER_PORT
const EnvPrefix = "EVALCACHE"

// DefaultSearchPaths 未显式指定配置文件时依次尝试的路径
var DefaultSearchPaths = []string{
	"configs/config.yaml",
	"config.yaml",
	"/etc/eval-cache/config.yaml",
}

// Load 加载并验证应用程序配置。
// 它按照以下优先级顺序加载配置：
// 1. 默认配置
// 2. 配置文件（path 非空时只读该文件，否则按 DefaultSearchPaths 搜索）
// 3. 环境变量（EVALCACHE_ 前缀，覆盖配置文件中的值）
//
// 参数 ctx: 上下文对象。
// 返回加载并验证后的 Config 指针，如果出错则返回 error。
func Load(ctx context.Context, path string) (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultSearchPaths {
			if data, err := os.ReadFile(p); err == nil {
				if err := yaml.Unmarshal(data, config); err != nil {
					return nil, fmt.Errorf("parse config file %s: %w", p, err)
				}
				break
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig 创建并返回一个包含默认值的 Config 对象。
// 默认使用内存存储，便于本地直接启动。
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                    "0.0.0.0",
			Port:                    8080,
			ReadTimeout:             30 * time.Second,
			WriteTimeout:            30 * time.Second,
			IdleTimeout:             60 * time.Second,
			GracefulShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "evaluate",
				Collection: "cache",
				Timeout:    10 * time.Second,
			},
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				KeyPrefix:    "evalcache:",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			SQLite: SQLiteConfig{
				Path:        "eval-cache.db",
				BusyTimeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			ScorePath:      "Score",
			CandidateLimit: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
