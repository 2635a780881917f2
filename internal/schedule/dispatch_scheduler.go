package schedule

// 发送调度器：即时扫描把新订单登记成台账并发出首条消息，
// 定时重扫把到点的 agendado / agendado_horario / erro 捡起来重试。

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
	schedulerOnce sync.Once
	schedulerInst *DispatchScheduler
)

type DispatchScheduler struct {
	logger *zap.Logger

	immediateRunning bool
	immediateMu      sync.Mutex

	rescanRunning bool
	rescanMu      sync.Mutex

	lastImmediateRun time.Time
	lastRescanRun    time.Time
}

func GetScheduler() *DispatchScheduler {
	schedulerOnce.Do(func() {
		schedulerInst = &DispatchScheduler{
			logger: logger.Logger,
		}
	})
	return schedulerInst
}

// RunImmediateScan 跑一轮即时扫描。上一轮还没结束就跳过，
// 多副本部署时用分布式锁让出。
func (s *DispatchScheduler) RunImmediateScan(ctx context.Context) error {
	s.immediateMu.Lock()
	if s.immediateRunning {
		s.immediateMu.Unlock()
		s.logger.Info("Immediate scan already running, skipping")
		return nil
	}
	s.immediateRunning = true
	s.immediateMu.Unlock()

	defer func() {
		s.immediateMu.Lock()
		s.immediateRunning = false
		s.immediateMu.Unlock()
	}()

	locked, err := cache.TryLock(ctx, "scan:immediate", 5*time.Minute)
	if err != nil {
		s.logger.Warn("Failed to acquire immediate scan lock, running anyway", zap.Error(err))
	} else if !locked {
		s.logger.Info("Another replica holds the immediate scan lock, skipping")
		return nil
	} else {
		defer func() {
			if err := cache.Unlock(context.WithoutCancel(ctx), "scan:immediate"); err != nil {
				s.logger.Warn("Failed to release immediate scan lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	s.lastImmediateRun = start
	s.logger.Info("Starting immediate dispatch scan")

	if err := service.Dispatch().ScanImmediate(ctx); err != nil {
		s.logger.Error("Immediate dispatch scan failed", zap.Error(err))
		return err
	}

	elapsed := time.Since(start)
	metrics.RecordLoopDuration("immediate", elapsed.Seconds())
	s.logger.Info("Immediate dispatch scan finished",
		zap.Duration("elapsed", elapsed))
	return nil
}

// RunScheduledRescan 跑一轮到点重扫
func (s *DispatchScheduler) RunScheduledRescan(ctx context.Context) error {
	s.rescanMu.Lock()
	if s.rescanRunning {
		s.rescanMu.Unlock()
		s.logger.Info("Scheduled rescan already running, skipping")
		return nil
	}
	s.rescanRunning = true
	s.rescanMu.Unlock()

	defer func() {
		s.rescanMu.Lock()
		s.rescanRunning = false
		s.rescanMu.Unlock()
	}()

	locked, err := cache.TryLock(ctx, "scan:rescan", 10*time.Minute)
	if err != nil {
		s.logger.Warn("Failed to acquire rescan lock, running anyway", zap.Error(err))
	} else if !locked {
		s.logger.Info("Another replica holds the rescan lock, skipping")
		return nil
	} else {
		defer func() {
			if err := cache.Unlock(context.WithoutCancel(ctx), "scan:rescan"); err != nil {
				s.logger.Warn("Failed to release rescan lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	s.lastRescanRun = start
	s.logger.Info("Starting scheduled delivery rescan")

	if err := service.Dispatch().RescanDue(ctx); err != nil {
		s.logger.Error("Scheduled delivery rescan failed", zap.Error(err))
		return err
	}

	elapsed := time.Since(start)
	metrics.RecordLoopDuration("rescan", elapsed.Seconds())
	s.logger.Info("Scheduled delivery rescan finished",
		zap.Duration("elapsed", elapsed))
	return nil
}
