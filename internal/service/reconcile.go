package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"NPSEngine/internal/backend"
	"NPSEngine/internal/model"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/metrics"
	"NPSEngine/pkg/phone"
)

// ReconcileService 对账：台账已 sent 但没有会话的孤儿记录，补建会话。
// 发消息和建会话不是一个事务，进程在两步之间挂掉会留下这种孤儿。
type ReconcileService struct {
	backend Backend
	now     func() time.Time
}

var (
	reconcileService *ReconcileService
	reconcileOnce    sync.Once
)

func Reconcile() *ReconcileService {
	reconcileOnce.Do(func() {
		reconcileService = NewReconcileService(backend.GetClient())
	})
	return reconcileService
}

func NewReconcileService(b Backend) *ReconcileService {
	return &ReconcileService{backend: b, now: time.Now}
}

// RepairOrphans 扫一轮孤儿台账。补建时撞唯一约束说明别的副本已经
// 补过了，按成功处理。
func (s *ReconcileService) RepairOrphans(ctx context.Context) error {
	orphans, err := s.backend.ListOrphanDeliveries(ctx)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	var repaired int64
	for i := range orphans {
		ctrl := &orphans[i]
		if ctrl.Status != model.DeliveryStatusSent {
			continue
		}
		if err := s.repairOne(ctx, ctrl); err != nil {
			logger.Logger.Error("Failed to repair orphan delivery",
				zap.Int64("delivery_id", ctrl.ID),
				zap.Error(err))
			continue
		}
		repaired++
	}

	if repaired > 0 {
		metrics.RecordReconciled(repaired)
		logger.Logger.Info("Orphan deliveries repaired",
			zap.Int64("count", repaired))
	}
	return nil
}

func (s *ReconcileService) repairOne(ctx context.Context, ctrl *model.DeliveryControl) error {
	c, err := s.backend.GetCampaign(ctx, ctrl.CampaignID)
	if err != nil {
		return err
	}
	if c == nil {
		logger.Logger.Warn("Orphan delivery references missing campaign",
			zap.Int64("delivery_id", ctrl.ID),
			zap.Int64("campaign_id", ctrl.CampaignID))
		return nil
	}

	canonical, ok := phone.Canonical(ctrl.Phone)
	if !ok {
		// sent 了却存着无效号码，只能记日志留人查
		logger.Logger.Warn("Orphan delivery has uncanonicalizable phone",
			zap.Int64("delivery_id", ctrl.ID))
		return nil
	}

	sentAt := s.now()
	if ctrl.SentAt != nil {
		sentAt = *ctrl.SentAt
	}

	conv := model.NewConversation(ctrl.ID, c.ChannelID, canonical, c.TimeoutMinutes, sentAt)
	_, err = s.backend.CreateConversation(ctx, conv)
	return err
}
