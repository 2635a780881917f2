package schedule

// 对账调度器：周期性修复已发出却没有会话的孤儿台账

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"NPSEngine/internal/cache"
	"NPSEngine/internal/service"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/metrics"
)

var (
	reconcilerOnce sync.Once
	reconcilerInst *ReconcileScheduler
)

type ReconcileScheduler struct {
	logger  *zap.Logger
	running bool
	mu      sync.Mutex
	lastRun time.Time
}

func GetReconciler() *ReconcileScheduler {
	reconcilerOnce.Do(func() {
		reconcilerInst = &ReconcileScheduler{
			logger: logger.Logger,
		}
	})
	return reconcilerInst
}

// RunReconcile 跑一轮孤儿修复
func (s *ReconcileScheduler) RunReconcile(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Reconcile already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	locked, err := cache.TryLock(ctx, "scan:reconcile", 10*time.Minute)
	if err != nil {
		s.logger.Warn("Failed to acquire reconcile lock, running anyway", zap.Error(err))
	} else if !locked {
		s.logger.Info("Another replica holds the reconcile lock, skipping")
		return nil
	} else {
		defer func() {
			if err := cache.Unlock(context.WithoutCancel(ctx), "scan:reconcile"); err != nil {
				s.logger.Warn("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	s.lastRun = start
	s.logger.Info("Starting orphan delivery reconcile")

	if err := service.Reconcile().RepairOrphans(ctx); err != nil {
		s.logger.Error("Orphan delivery reconcile failed", zap.Error(err))
		return err
	}

	elapsed := time.Since(start)
	metrics.RecordLoopDuration("reconcile", elapsed.Seconds())
	s.logger.Info("Orphan delivery reconcile finished",
		zap.Duration("elapsed", elapsed))
	return nil
}
