package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eval-cache/configs"
	"eval-cache/internal/app/handlers"
	"eval-cache/internal/app/middleware"
	"eval-cache/pkg/logger"
)

// SetupRoutes 配置并注册 HTTP 服务器的所有路由规则。
// 它负责加载中间件，定义 API 版本分组，并将 URL 路径映射到相应的处理函数。
// 参数 engine: Gin 引擎实例。
// 参数 cacheHandler: 业务逻辑处理器。
// 参数 cfg: 应用配置，用于指标和跨域设置。
// 参数 log: 日志记录器。
func SetupRoutes(engine *gin.Engine, cacheHandler *handlers.CacheHandler, cfg *configs.Config, log logger.Logger) {
	setupMiddleware(engine, cfg, log)

	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/v1")
	evaluate := v1.Group("/evaluate")
	registerEvaluateRoutes(evaluate, cacheHandler)

	// 兼容旧客户端的无版本前缀路由
	legacy := engine.Group("/evaluate")
	legacy.POST("/cache", cacheHandler.LookupCache)
	legacy.POST("/save", cacheHandler.SaveResult)
}

func registerEvaluateRoutes(group *gin.RouterGroup, h *handlers.CacheHandler) {
	// 查询缓存 - 请求体即缓存键
	group.POST("/cache", h.LookupCache)
	// 写入计算结果 - 请求体为 {"request": ..., "response": ...}
	group.POST("/save", h.SaveResult)
	// 根据ID获取缓存项，不计入命中
	group.GET("/entries/:id", h.GetEntry)
	group.GET("/statistics", h.GetStatistics)
	group.GET("/health", h.HealthCheck)
}

// setupMiddleware 设置全局中间件
func setupMiddleware(engine *gin.Engine, cfg *configs.Config, log logger.Logger) {
	// 设置恢复中间件 - 捕获panic并返回500错误
	engine.Use(gin.Recovery())

	if len(cfg.CORS.AllowOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: false,
		}))
	}

	// 跳过健康检查和指标路径，减少日志噪音
	skipPaths := []string{"/v1/evaluate/health"}
	if cfg.Metrics.Enabled && cfg.Metrics.Path != "" {
		skipPaths = append(skipPaths, cfg.Metrics.Path)
	}

	// 日志中间件负责生成请求ID，必须在业务处理之前
	engine.Use(middleware.LoggingMiddleware(&middleware.LoggingConfig{
		SkipPaths: skipPaths,
		Logger:    log,
	}))

	if cfg.Metrics.Enabled {
		engine.Use(middleware.PrometheusMetrics(cfg.Metrics.Path))
	}
}
