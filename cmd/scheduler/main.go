package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"NPSEngine/config"
	"NPSEngine/internal/backend"
	"NPSEngine/internal/schedule"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/metrics"
	"NPSEngine/pkg/otel"
	"NPSEngine/pkg/whats"
	"NPSEngine/storage"
)

func main() {
	once := flag.Bool("once", false, "run each scan loop once and exit")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName + "-scheduler",
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
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 后端认证失败是唯一的进程级致命错误
	if err := backend.Init(ctx); err != nil {
		logger.Logger.Fatal("Failed to authenticate against backend API", zap.Error(err))
	}

	if err := whats.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize chat gateway client", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Bool("once", *once),
	)

	if *once {
		runOnce(ctx)
		return
	}

	go runImmediateLoop(ctx)
	go runRescanLoop(ctx)
	go runReconcileLoop(ctx)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runOnce 跑一轮全部扫描就退出，给 cron 和手工触发用
func runOnce(ctx context.Context) {
	s := schedule.GetScheduler()
	r := schedule.GetReconciler()

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if err := s.RunImmediateScan(runCtx); err != nil {
		logger.Logger.Error("Immediate scan failed", zap.Error(err))
	}
	if err := s.RunScheduledRescan(runCtx); err != nil {
		logger.Logger.Error("Scheduled rescan failed", zap.Error(err))
	}
	if err := r.RunReconcile(runCtx); err != nil {
		logger.Logger.Error("Reconcile failed", zap.Error(err))
	}
}

// runImmediateLoop 周期性扫描新订单
func runImmediateLoop(ctx context.Context) {
	s := schedule.GetScheduler()

	interval := time.Duration(config.Cfg.ImmediateScanSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 启动先跑一轮，不等第一个 tick
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	if err := s.RunImmediateScan(runCtx); err != nil {
		logger.Logger.Error("Immediate scan run failed", zap.Error(err))
	}
	cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := s.RunImmediateScan(runCtx); err != nil {
				logger.Logger.Error("Immediate scan run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runRescanLoop 周期性重扫到点的台账
func runRescanLoop(ctx context.Context) {
	s := schedule.GetScheduler()

	interval := time.Duration(config.Cfg.ScheduledScanSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			if err := s.RunScheduledRescan(runCtx); err != nil {
				logger.Logger.Error("Scheduled rescan run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runReconcileLoop 周期性修复孤儿台账
func runReconcileLoop(ctx context.Context) {
	r := schedule.GetReconciler()

	interval := time.Duration(config.Cfg.ReconcileScanSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			if err := r.RunReconcile(runCtx); err != nil {
				logger.Logger.Error("Reconcile run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
