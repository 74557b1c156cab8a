package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eval-cache/pkg/logger"
)

// RequestIDKey 请求ID在Context中的键名
const RequestIDKey = "request_id"

// RequestIDHeader 请求ID的请求头和响应头名称，调用方可以传入自己的ID
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// LoggingConfig 日志中间件配置
type LoggingConfig struct {
	// SkipPaths 跳过日志记录的路径前缀（如健康检查接口）
	SkipPaths []string
	// Logger 日志器实例
	Logger logger.Logger
}

// LoggingMiddleware 返回HTTP日志记录中间件
// config: 中间件配置，如果为nil则使用默认配置
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = &LoggingConfig{
			SkipPaths: []string{"/health", "/metrics"},
		}
	}

	log := config.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := context.WithValue(c.Request.Context(), requestIDContextKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)

		if shouldSkipPath(c.Request.URL.Path, config.SkipPaths) {
			c.Next()
			return
		}

		startTime := time.Now()
		log.DebugContext(ctx, "HTTP请求开始",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"content_length", c.Request.ContentLength,
		)

		c.Next()

		statusCode := c.Writer.Status()
		attrs := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", statusCode,
			"duration_ms", float64(time.Since(startTime).Nanoseconds()) / 1e6,
			"response_size", c.Writer.Size(),
			"client_ip", c.ClientIP(),
		}

		switch {
		case statusCode >= 500:
			log.ErrorContext(ctx, "HTTP请求完成", attrs...)
		case statusCode >= 400:
			log.WarnContext(ctx, "HTTP请求完成", attrs...)
		default:
			log.InfoContext(ctx, "HTTP请求完成", attrs...)
		}

		for _, err := range c.Errors {
			log.ErrorContext(ctx, "HTTP请求处理错误",
				"request_id", requestID,
				"error", err.Error(),
				"error_type", err.Type,
			)
		}
	}
}

// shouldSkipPath 检查是否应该跳过某个路径的日志记录
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// GetRequestID 从gin.Context中获取请求ID
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// RequestIDFromContext 从标准 context 中获取请求ID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
