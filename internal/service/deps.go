package service

import (
	"context"
	"time"

	"NPSEngine/config"
	"NPSEngine/internal/backend"
	"NPSEngine/internal/cache"
	"NPSEngine/internal/model"
)

func orderLookback() time.Duration {
	minutes := config.Cfg.OrderLookbackMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

// Backend 引擎依赖的后端 REST 操作面。真实实现是 internal/backend 的
// 客户端，测试里换成内存假件。
type Backend interface {
	ListActiveCampaigns(ctx context.Context, immediateOnly bool) ([]model.Campaign, error)
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListRecentOrders(ctx context.Context, since time.Time, branches []string) ([]model.Order, error)

	CreateDeliveryControl(ctx context.Context, ctrl *model.DeliveryControl) (created bool, id int64, err error)
	TransitionDelivery(ctx context.Context, ctrl *model.DeliveryControl, to model.DeliveryStatus, fields backend.TransitionFields) error
	GetDeliveryControlByID(ctx context.Context, id int64) (*model.DeliveryControl, error)
	ListDueDeliveries(ctx context.Context, now time.Time) ([]model.DeliveryControl, error)
	ListOrphanDeliveries(ctx context.Context) ([]model.DeliveryControl, error)
	CountPendingDeliveries(ctx context.Context, campaignID int64) (int, error)

	CreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	FindActiveConversation(ctx context.Context, candidates []string, channelID string) (*model.Conversation, error)
	AppendResponse(ctx context.Context, resp *model.SurveyResponse) error
}

// NumberCache 号码可达性缓存
type NumberCache interface {
	Get(ctx context.Context, channelID, digits string) (capable, found bool, err error)
	Set(ctx context.Context, channelID, digits string, capable bool) error
}

type redisNumberCache struct{}

func (redisNumberCache) Get(ctx context.Context, channelID, digits string) (bool, bool, error) {
	return cache.GetNumberCapability(ctx, channelID, digits)
}

func (redisNumberCache) Set(ctx context.Context, channelID, digits string, capable bool) error {
	return cache.SetNumberCapability(ctx, channelID, digits, capable)
}

// MessageDedup 入站消息去重
type MessageDedup interface {
	TryMark(ctx context.Context, messageID string) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	MarkDone(ctx context.Context, messageID string) error
}

type redisMessageDedup struct{}

func (redisMessageDedup) TryMark(ctx context.Context, messageID string) (bool, error) {
	return cache.TryMarkMessageProcessing(ctx, messageID, 0)
}

func (redisMessageDedup) Unmark(ctx context.Context, messageID string) error {
	return cache.UnmarkMessageProcessing(ctx, messageID)
}

func (redisMessageDedup) MarkDone(ctx context.Context, messageID string) error {
	return cache.MarkMessageProcessed(ctx, messageID, 0)
}
