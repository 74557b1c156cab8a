package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eval-cache/configs"
	"eval-cache/internal/app/handlers"
	"eval-cache/internal/app/server"
	"eval-cache/internal/cache"
	"eval-cache/internal/domain/repositories"
	"eval-cache/internal/infrastructure/stores"
	"eval-cache/pkg/logger"
)

// main 主函数 - 应用程序入口点
func main() {
	configPath := flag.String("config", "", "配置文件路径，为空时读取 EVALCACHE_CONFIG 或按默认路径搜索")
	flag.Parse()
	if *configPath == "" {
		*configPath = os.Getenv("EVALCACHE_CONFIG")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建早期logger（使用默认配置）
	earlyLogger := logger.Default()

	if err := initializeApplication(ctx, *configPath, earlyLogger); err != nil {
		earlyLogger.ErrorContext(ctx, "应用程序运行失败", "error", err)
		os.Exit(1)
	}
}

// initializeApplication 初始化应用程序并运行到收到停止信号
func initializeApplication(ctx context.Context, configPath string, earlyLogger logger.Logger) error {
	// 1. 加载配置
	config, err := configs.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}

	earlyLogger.InfoContext(ctx, "配置加载成功",
		"server_port", config.Server.Port,
		"store_type", config.Store.Type,
		"score_path", config.Cache.ScorePath)

	// 2. 初始化日志服务
	appLogger := initializeLogger(config.Logging)
	logger.SetDefault(appLogger)
	appLogger.InfoContext(ctx, "日志服务初始化完成")

	// 3. 初始化文档存储，进程退出前关闭
	store, err := stores.NewDocumentStoreFactory(appLogger).CreateDocumentStore(ctx, &config.Store)
	if err != nil {
		return fmt.Errorf("文档存储初始化失败: %w", err)
	}
	defer closeStore(store, appLogger)

	// 4. 初始化缓存与应用层
	resultCache := cache.New(store, &config.Cache, appLogger)
	cacheHandler := handlers.NewCacheHandler(resultCache, appLogger)
	httpServer := server.NewServer(config, cacheHandler, appLogger)

	// 5. 启动服务并等待停止信号
	return runApplication(ctx, httpServer, appLogger)
}

// initializeLogger 初始化日志服务
func initializeLogger(config configs.LoggingConfig) logger.Logger {
	loggerConfig := logger.Config{
		Level:  logger.ParseLevel(config.Level),
		Output: config.Output,
		Format: config.Format,
	}

	if config.Output == "file" {
		loggerConfig.FilePath = config.FilePath
	}

	return logger.New(loggerConfig)
}

// runApplication 运行应用程序，监听停止信号
// 此函数会阻塞直到收到停止信号、服务器错误或上下文取消
func runApplication(ctx context.Context, httpServer *server.Server, log logger.Logger) error {
	// 创建错误通道 - 用于接收服务器运行时错误
	errChan := make(chan error, 1)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	if err := httpServer.Start(ctx, errChan); err != nil {
		return fmt.Errorf("HTTP服务器启动失败: %w", err)
	}

	select {
	case err := <-errChan:
		log.ErrorContext(ctx, "服务器运行错误", "error", err)
		return err

	case sig := <-signalChan:
		log.InfoContext(ctx, "收到停止信号，开始优雅关闭", "signal", sig.String())
		return gracefulShutdown(ctx, httpServer, log)

	case <-ctx.Done():
		log.InfoContext(ctx, "上下文取消，开始优雅关闭")
		return gracefulShutdown(ctx, httpServer, log)
	}
}

// gracefulShutdown 执行优雅关闭
func gracefulShutdown(ctx context.Context, httpServer *server.Server, log logger.Logger) error {
	log.InfoContext(ctx, "开始执行优雅关闭流程")

	if err := httpServer.Shutdown(context.Background()); err != nil {
		return err
	}

	log.InfoContext(ctx, "优雅关闭完成")
	return nil
}

// closeStore 关闭文档存储
func closeStore(store repositories.DocumentStore, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Close(ctx); err != nil {
		log.ErrorContext(ctx, "文档存储关闭失败", "error", err)
		return
	}
	log.InfoContext(ctx, "文档存储已关闭")
}
