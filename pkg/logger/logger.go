// 日志接口
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger 日志器接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// With 返回附带固定属性的子日志器，例如 component=store
	With(args ...any) Logger

	// SlogLogger 获取底层slog.Logger，用于与现有基础设施兼容
	SlogLogger() *slog.Logger
}

// Config 日志配置
type Config struct {
	Level    slog.Level // 日志级别
	Output   string     // 输出：stdout、stderr、file
	FilePath string     // 文件路径（当Output为file时）
	Format   string     // 格式：text、json，空值为 text
}

type appLogger struct {
	logger *slog.Logger
}

// Default 创建默认日志器，直接使用 slog.Default()
func Default() Logger {
	return &appLogger{logger: slog.Default()}
}

// New 根据配置创建日志器
func New(config Config) Logger {
	return &appLogger{logger: slog.New(createHandler(config))}
}

// NewFromSlog 包装已有的 slog.Logger
func NewFromSlog(l *slog.Logger) Logger {
	if l == nil {
		return Default()
	}
	return &appLogger{logger: l}
}

// Discard 返回丢弃全部输出的日志器，测试中使用
func Discard() Logger {
	return &appLogger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel 解析日志级别字符串，无法识别时返回 Info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: config.Level}
	writer := getWriter(config)

	if config.Format == "json" {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

func getWriter(config Config) io.Writer {
	switch config.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if config.FilePath == "" {
			return os.Stdout
		}

		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "创建日志目录失败: %v\n", err)
			return os.Stdout
		}

		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "打开日志文件失败: %v\n", err)
			return os.Stdout
		}
		return file
	default:
		return os.Stdout
	}
}

func (l *appLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *appLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *appLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *appLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *appLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *appLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *appLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *appLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

func (l *appLogger) With(args ...any) Logger {
	return &appLogger{logger: l.logger.With(args...)}
}

func (l *appLogger) SlogLogger() *slog.Logger {
	return l.logger
}

// 全局默认日志器
var defaultLogger Logger = Default()

// GetDefault 获取默认日志器
func GetDefault() Logger {
	return defaultLogger
}

// SetDefault 替换全局默认日志器，同时设置 slog 的默认日志器
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
	slog.SetDefault(l.SlogLogger())
}
