package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"NPSEngine/config"
	"NPSEngine/internal/backend"
	"NPSEngine/internal/queue"
	"NPSEngine/internal/service"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/metrics"
	"NPSEngine/pkg/otel"
	"NPSEngine/pkg/whats"
	"NPSEngine/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName + "-worker",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTLPEndpoint,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown(context.Background())
			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
			}
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// 后端认证失败是唯一的进程级致命错误
	if err := backend.Init(ctx); err != nil {
		logger.Logger.Fatal("Failed to authenticate against backend API", zap.Error(err))
	}

	if err := whats.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize chat gateway client", zap.Error(err))
	}

	// 消费者依赖的入站处理服务
	queue.SetInboundHandler(service.Inbound())

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 收到关闭信号时关掉连接，让阻塞中的消费者退出
	go func() {
		<-ctx.Done()
		storage.Close()
	}()

	queue.StartAllConsumers(ctx)

	logger.Logger.Info("Worker service shutting down gracefully")
}
