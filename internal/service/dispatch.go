package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"NPSEngine/internal/backend"
	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/metrics"
	"NPSEngine/pkg/phone"
	"NPSEngine/pkg/whats"
	"NPSEngine/utils"
)

// DispatchService 发送链路：扫描订单、登记台账、探测号码、发出首条消息。
type DispatchService struct {
	backend Backend
	chat    whats.Client
	numbers NumberCache
	now     func() time.Time

	orderLookback time.Duration
}

var (
	dispatchService *DispatchService
	dispatchOnce    sync.Once
)

func Dispatch() *DispatchService {
	dispatchOnce.Do(func() {
		dispatchService = NewDispatchService(backend.GetClient(), whats.GetClient(), redisNumberCache{})
	})
	return dispatchService
}

func NewDispatchService(b Backend, chat whats.Client, numbers NumberCache) *DispatchService {
	return &DispatchService{
		backend:       b,
		chat:          chat,
		numbers:       numbers,
		now:           time.Now,
		orderLookback: orderLookback(),
	}
}

// ScanImmediate 即时活动扫描：近期订单 × 活跃活动，逐单处理。
// 单个订单失败只记日志，不中断整轮。
func (s *DispatchService) ScanImmediate(ctx context.Context) error {
	campaigns, err := s.backend.ListActiveCampaigns(ctx, true)
	if err != nil {
		return fmt.Errorf("list active campaigns: %w", err)
	}

	now := s.now()
	for i := range campaigns {
		c := &campaigns[i]

		active, err := CampaignPeriodActive(c, now)
		if err != nil {
			logger.Logger.Warn("Campaign has malformed period, skipping",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err))
			continue
		}
		if !active {
			continue
		}

		orders, err := s.backend.ListRecentOrders(ctx, now.Add(-s.orderLookback), c.Branches)
		if err != nil {
			logger.Logger.Error("Failed to list recent orders",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err))
			continue
		}

		for j := range orders {
			if err := s.ProcessOrder(ctx, c, &orders[j]); err != nil {
				logger.Logger.Error("Failed to process order",
					zap.String("order_id", orders[j].OrderID),
					zap.Int64("campaign_id", c.ID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// ProcessOrder 处理一个 (订单, 活动) 组合。幂等：台账已存在且离开过
// pending 时直接返回，由重扫循环接管后续状态；还停在 pending 的台账
// 重新驱动一遍。
func (s *DispatchService) ProcessOrder(ctx context.Context, c *model.Campaign, order *model.Order) error {
	if !c.AllowsBranch(order.Branch) {
		return nil
	}

	if !utils.ValidateOrderID(order.OrderID) {
		logger.Logger.Warn("Skipping order with malformed id",
			zap.String("order_id", order.OrderID),
			zap.Int64("campaign_id", c.ID))
		return nil
	}

	ctrl := &model.DeliveryControl{
		OrderID:      order.OrderID,
		CampaignID:   c.ID,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		Phone:        order.Phone,
		Branch:       order.Branch,
		OrderValue:   order.OrderValue,
		Status:       model.DeliveryStatusPending,
	}

	created, id, err := s.backend.CreateDeliveryControl(ctx, ctrl)
	if err != nil {
		return fmt.Errorf("create delivery control: %w", err)
	}
	ctrl.ID = id
	if !created {
		existing, err := s.backend.GetDeliveryControlByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get delivery control %d: %w", id, err)
		}
		if existing == nil || existing.Status != model.DeliveryStatusPending {
			// 已有台账且已离开 pending，这单被处理过或正在被处理
			return nil
		}
		// 上次在登记和首个迁移之间挂了，留下 pending 孤儿，接着驱动
		ctrl = existing
	}

	// 号码先行：无效号码立刻落终态，不发消息，不建会话
	canonical, ok := phone.Canonical(order.Phone)
	if !ok {
		metrics.RecordInvalidNumber(c.ID)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusInvalidNumber,
			backend.TransitionFields{LastError: errors.PhoneTooShort.Message})
	}

	capable, err := s.probeNumber(ctx, c.ChannelID, canonical)
	if err != nil {
		// 探测失败是瞬时故障，不能当成号码无效
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
			backend.TransitionFields{LastError: err.Error()})
	}
	if !capable {
		metrics.RecordInvalidNumber(c.ID)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusInvalidNumber,
			backend.TransitionFields{LastError: errors.NumberIncapable.Message})
	}

	now := s.now()

	if c.TriggerMode == model.TriggerDaysAfterPurchase {
		eligibleAt, err := deferredEligibleAt(order, c.DaysAfterPurchase, now)
		if err != nil {
			return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
				backend.TransitionFields{LastError: err.Error()})
		}
		if eligibleAt.After(now) {
			return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusScheduled,
				backend.TransitionFields{EligibleAt: &eligibleAt})
		}
	}

	open, err := CampaignWindowOpen(c, now)
	if err != nil {
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
			backend.TransitionFields{LastError: err.Error()})
	}
	if !open {
		next, _ := NextWindowOpen(c, now)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusScheduledWindow,
			backend.TransitionFields{EligibleAt: &next})
	}

	return s.sendFirstMessage(ctx, c, ctrl, canonical)
}

// RescanDue 重扫到点的 agendado / agendado_horario / erro 台账。
func (s *DispatchService) RescanDue(ctx context.Context) error {
	now := s.now()
	due, err := s.backend.ListDueDeliveries(ctx, now)
	if err != nil {
		return fmt.Errorf("list due deliveries: %w", err)
	}

	for i := range due {
		ctrl := &due[i]
		if ctrl.Status.IsTerminal() || ctrl.Status == model.DeliveryStatusSent {
			continue
		}
		if err := s.retryDelivery(ctx, ctrl); err != nil {
			logger.Logger.Error("Failed to retry delivery",
				zap.Int64("delivery_id", ctrl.ID),
				zap.String("status", string(ctrl.Status)),
				zap.Error(err))
		}
	}
	return nil
}

func (s *DispatchService) retryDelivery(ctx context.Context, ctrl *model.DeliveryControl) error {
	c, err := s.backend.GetCampaign(ctx, ctrl.CampaignID)
	if err != nil {
		return fmt.Errorf("get campaign %d: %w", ctrl.CampaignID, err)
	}
	if c == nil || !c.Active {
		logger.Logger.Warn("Due delivery references inactive campaign, leaving as is",
			zap.Int64("delivery_id", ctrl.ID),
			zap.Int64("campaign_id", ctrl.CampaignID))
		return nil
	}

	now := s.now()
	active, err := CampaignPeriodActive(c, now)
	if err != nil || !active {
		return err
	}

	canonical, ok := phone.Canonical(ctrl.Phone)
	if !ok {
		metrics.RecordInvalidNumber(c.ID)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusInvalidNumber,
			backend.TransitionFields{LastError: errors.PhoneTooShort.Message})
	}

	capable, err := s.probeNumber(ctx, c.ChannelID, canonical)
	if err != nil {
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
			backend.TransitionFields{LastError: err.Error()})
	}
	if !capable {
		metrics.RecordInvalidNumber(c.ID)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusInvalidNumber,
			backend.TransitionFields{LastError: errors.NumberIncapable.Message})
	}

	open, err := CampaignWindowOpen(c, now)
	if err != nil {
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
			backend.TransitionFields{LastError: err.Error()})
	}
	if !open {
		if ctrl.Status == model.DeliveryStatusScheduledWindow {
			return nil
		}
		next, _ := NextWindowOpen(c, now)
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusScheduledWindow,
			backend.TransitionFields{EligibleAt: &next})
	}

	return s.sendFirstMessage(ctx, c, ctrl, canonical)
}

// sendFirstMessage 开场白和主问题合并成一条消息发出，配了图就走图文。
// 发送成功后建会话；建会话撞唯一约束按成功处理。
func (s *DispatchService) sendFirstMessage(ctx context.Context, c *model.Campaign, ctrl *model.DeliveryControl, destination string) error {
	text := composeFirstMessage(c)
	start := s.now()

	var err error
	if c.ImageURL != "" {
		_, err = s.chat.SendImage(ctx, c.ChannelID, destination, text, c.ImageURL)
	} else {
		_, err = s.chat.SendText(ctx, c.ChannelID, destination, text)
	}

	if err != nil {
		metrics.RecordSurveyFailed(c.ID)
		// 发送失败永远不代表号码无效
		return s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusError,
			backend.TransitionFields{LastError: err.Error()})
	}

	sentAt := s.now()
	if err := s.backend.TransitionDelivery(ctx, ctrl, model.DeliveryStatusSent,
		backend.TransitionFields{SentAt: &sentAt}); err != nil {
		return err
	}

	conv := model.NewConversation(ctrl.ID, c.ChannelID, destination, c.TimeoutMinutes, sentAt)
	if _, err := s.backend.CreateConversation(ctx, conv); err != nil {
		// 台账已是 sent，对账循环会补会话
		logger.Logger.Error("Survey sent but conversation creation failed",
			zap.Int64("delivery_id", ctrl.ID),
			zap.Error(err))
		return err
	}

	metrics.RecordSurveySent(c.ID, sentAt.Sub(start).Seconds())
	logger.Logger.Info("Survey dispatched",
		zap.Int64("delivery_id", ctrl.ID),
		zap.Int64("campaign_id", c.ID),
		zap.String("order_id", ctrl.OrderID))
	return nil
}

// probeNumber 号码可达性探测，结果进缓存。缓存故障降级为直接探测。
func (s *DispatchService) probeNumber(ctx context.Context, channelID, canonical string) (bool, error) {
	digits := phone.Digits(canonical)

	capable, found, err := s.numbers.Get(ctx, channelID, digits)
	if err == nil && found {
		return capable, nil
	}
	if err != nil {
		logger.Logger.Warn("Number cache read failed, probing gateway directly",
			zap.Error(err))
	}

	capable, err = s.chat.CheckNumber(ctx, channelID, canonical)
	if err != nil {
		return false, errors.Transient("check number", err)
	}

	if cacheErr := s.numbers.Set(ctx, channelID, digits, capable); cacheErr != nil {
		logger.Logger.Warn("Number cache write failed",
			zap.Error(cacheErr))
	}
	return capable, nil
}

func composeFirstMessage(c *model.Campaign) string {
	if c.OpeningMessage == "" {
		return c.QuestionMessage
	}
	if c.QuestionMessage == "" {
		return c.OpeningMessage
	}
	return c.OpeningMessage + "\n\n" + c.QuestionMessage
}

// deferredEligibleAt 延迟触发活动下一次可发送的时间点
func deferredEligibleAt(order *model.Order, days int, now time.Time) (time.Time, error) {
	purchasedAt, err := time.Parse(time.RFC3339, order.PurchasedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse purchased_at %q: %w", order.PurchasedAt, err)
	}
	return purchasedAt.In(now.Location()).AddDate(0, 0, days), nil
}
