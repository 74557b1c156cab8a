package configs

import (
	"fmt"
	"time"
)

// Config 主配置结构体，定义了应用程序的所有配置项。
// 包含服务器、存储、缓存、日志、指标和跨域等模块的配置信息。
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
	CORS    CORSConfig    `yaml:"cors" envconfig:"CORS"`
}

// ServerConfig 定义服务器相关的配置参数。
// 包含监听地址、端口和超时设置。
type ServerConfig struct {
	Host                    string        `yaml:"host" split_words:"true"`
	Port                    int           `yaml:"port" split_words:"true"`
	ReadTimeout             time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout            time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout             time.Duration `yaml:"idle_timeout" split_words:"true"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" split_words:"true"`
}

// StoreConfig 定义文档存储的配置参数。
// Type 决定使用哪一种实现：mongo、redis、sqlite 或 memory。
type StoreConfig struct {
	Type   string       `yaml:"type" split_words:"true"`
	Mongo  MongoConfig  `yaml:"mongo" envconfig:"MONGO"`
	Redis  RedisConfig  `yaml:"redis" envconfig:"REDIS"`
	SQLite SQLiteConfig `yaml:"sqlite" envconfig:"SQLITE"`
}

// MongoConfig 定义 MongoDB 文档存储的连接参数
type MongoConfig struct {
	URI        string        `yaml:"uri" split_words:"true"`
	Database   string        `yaml:"database" split_words:"true"`
	Collection string        `yaml:"collection" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
}

// RedisConfig 定义 Redis 文档存储的连接参数
type RedisConfig struct {
	Addr         string        `yaml:"addr" split_words:"true"`
	Password     string        `yaml:"password" split_words:"true"`
	DB           int           `yaml:"db" split_words:"true"`
	KeyPrefix    string        `yaml:"key_prefix" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dial_timeout" split_words:"true"`
	ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
}

// SQLiteConfig 定义 SQLite 文档存储的参数
type SQLiteConfig struct {
	Path        string        `yaml:"path" split_words:"true"`
	BusyTimeout time.Duration `yaml:"busy_timeout" split_words:"true"`
}

// CacheConfig 定义结果缓存的核心配置参数。
type CacheConfig struct {
	// ScorePath 分数在结果中的点分路径
	ScorePath string `yaml:"score_path" split_words:"true"`
	// CandidateLimit 每次查找从存储取回的候选条目上限，0 表示不限制
	CandidateLimit int `yaml:"candidate_limit" split_words:"true"`
}

// LoggingConfig 定义日志系统的配置参数。
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true"`
	Output   string `yaml:"output" split_words:"true"`
	FilePath string `yaml:"file_path" split_words:"true"`
	Format   string `yaml:"format" split_words:"true"`
}

// MetricsConfig 定义 Prometheus 指标暴露的配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true"`
}

// CORSConfig 定义跨域访问配置，AllowOrigins 为空时不启用。
// 环境变量使用逗号分隔，例如 EVALCACHE_CORS_ALLOW_ORIGINS=http://a,http://b
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins" split_words:"true"`
}

// Validate 检查 Config 配置结构体的有效性。
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config validation failed: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config validation failed: %w", err)
	}

	return nil
}

// Validate 检查 ServerConfig 配置的有效性。
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if s.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive")
	}

	return nil
}

// Validate 检查 StoreConfig 配置的有效性，只校验被选中的实现。
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "mongo":
		return s.Mongo.Validate()
	case "redis":
		return s.Redis.Validate()
	case "sqlite":
		return s.SQLite.Validate()
	case "memory":
		return nil
	case "":
		return fmt.Errorf("store type is required")
	default:
		return fmt.Errorf("unsupported store type: %s", s.Type)
	}
}

// Validate 检查 MongoConfig 配置的有效性。
func (m *MongoConfig) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}

	if m.Database == "" {
		return fmt.Errorf("mongo database is required")
	}

	if m.Collection == "" {
		return fmt.Errorf("mongo collection is required")
	}

	if m.Timeout <= 0 {
		m.Timeout = 10 * time.Second
	}

	return nil
}

// Validate 检查 RedisConfig 配置的有效性。
func (r *RedisConfig) Validate() error {
	if r.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid redis db: %d", r.DB)
	}

	if r.KeyPrefix == "" {
		r.KeyPrefix = "evalcache:"
	}

	return nil
}

// Validate 检查 SQLiteConfig 配置的有效性。
func (s *SQLiteConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}

	if s.BusyTimeout <= 0 {
		s.BusyTimeout = 5 * time.Second
	}

	return nil
}

// Validate 检查 CacheConfig 配置的有效性。
func (c *CacheConfig) Validate() error {
	if c.CandidateLimit < 0 {
		return fmt.Errorf("candidate_limit must not be negative")
	}

	if c.ScorePath == "" {
		c.ScorePath = "Score"
	}

	return nil
}

// Validate 检查 LoggingConfig 配置的有效性。
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	validOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}

	if !validOutputs[l.Output] {
		return fmt.Errorf("invalid log output: %s", l.Output)
	}

	if l.Output == "file" && l.FilePath == "" {
		return fmt.Errorf("file path is required when output is file")
	}

	// 空值默认为 text
	validFormats := map[string]bool{
		"text": true, "json": true, "": true,
	}

	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}

	return nil
}

// Validate 检查 MetricsConfig 配置的有效性。
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Path == "" {
		m.Path = "/metrics"
	}

	if m.Path[0] != '/' {
		return fmt.Errorf("metrics path must start with '/': %s", m.Path)
	}

	return nil
}

// GetAddr 获取服务器的完整监听地址。
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
