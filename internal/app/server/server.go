package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"eval-cache/configs"
	"eval-cache/internal/app/handlers"
	"eval-cache/pkg/logger"
)

// Server HTTP服务器结构体
// 负责整个服务器的生命周期管理，包括初始化、启动、运行和优雅关闭
type Server struct {
	config       *configs.Config        // 应用配置
	httpServer   *http.Server           // HTTP服务器实例
	engine       *gin.Engine            // Gin引擎
	cacheHandler *handlers.CacheHandler // 缓存处理器
	logger       logger.Logger          // 日志器
}

// NewServer 创建新的HTTP服务器实例并注册路由
// config: 应用配置
// cacheHandler: 缓存处理器
// log: 日志器
func NewServer(config *configs.Config, cacheHandler *handlers.CacheHandler, log logger.Logger) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	SetupRoutes(engine, cacheHandler, config, log)

	return &Server{
		config:       config,
		engine:       engine,
		cacheHandler: cacheHandler,
		logger:       log,
	}
}

// Handler 返回已注册路由的 http.Handler，便于测试
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 启动HTTP服务器。监听失败直接返回错误，之后在后台处理请求，
// 运行期间的错误通过 errChan 传递。
// ctx: 上下文，用于日志
func (s *Server) Start(ctx context.Context, errChan chan<- error) error {
	srvCfg := s.config.Server
	s.httpServer = &http.Server{
		Addr:         srvCfg.GetAddr(),
		Handler:      s.engine,
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  srvCfg.IdleTimeout,
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.InfoContext(ctx, "HTTP服务器开始监听",
		"addr", listener.Addr().String(),
		"read_timeout", srvCfg.ReadTimeout,
		"write_timeout", srvCfg.WriteTimeout,
		"idle_timeout", srvCfg.IdleTimeout)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorContext(ctx, "HTTP服务器异常退出", "error", err.Error())
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown 优雅关闭服务器
// ctx: 上下文，用于控制关闭过程的超时
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "开始执行HTTP服务器优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.ErrorContext(ctx, "HTTP服务器优雅关闭失败", "error", err.Error())
		return fmt.Errorf("HTTP服务器关闭失败: %w", err)
	}

	s.logger.InfoContext(ctx, "HTTP服务器优雅关闭完成")
	return nil
}
