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
	"NPSEngine/pkg/whats"
)

// ConversationService 会话状态机：推进问题、发结束语、处理停止和重来指令。
type ConversationService struct {
	backend Backend
	chat    whats.Client
	now     func() time.Time
}

var (
	conversationService *ConversationService
	conversationOnce    sync.Once
)

func Conversation() *ConversationService {
	conversationOnce.Do(func() {
		conversationService = NewConversationService(backend.GetClient(), whats.GetClient())
	})
	return conversationService
}

func NewConversationService(b Backend, chat whats.Client) *ConversationService {
	return &ConversationService{backend: b, chat: chat, now: time.Now}
}

// Advance 打分题答完之后：有追问就发追问进第二题，没有就直接收尾。
func (s *ConversationService) Advance(ctx context.Context, conv *model.Conversation, c *model.Campaign) error {
	if c.FollowUpMessage == "" {
		return s.Finalize(ctx, conv, c)
	}

	if _, err := s.chat.SendText(ctx, conv.ChannelID, conv.Destination, c.FollowUpMessage); err != nil {
		return fmt.Errorf("send follow-up: %w", err)
	}

	ordinal := model.OrdinalFollowUp
	conv.CurrentQuestion = &ordinal
	conv.AwaitingReply = true
	conv.ProximaAcao = model.NextActionFollowUp
	conv.TimeoutAt = model.ConversationDeadline(s.now(), c.TimeoutMinutes)

	return s.backend.UpdateConversation(ctx, conv)
}

// transitionConversation 会话状态迁移的唯一写入口，迁移表外的组合
// 直接拒绝，不落库。
func transitionConversation(conv *model.Conversation, to model.ConversationStatus) error {
	if !conv.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (conversation %d)", errors.InvalidTransition, conv.Status, to, conv.ID)
	}
	conv.Status = to
	return nil
}

// Finalize 最后一题已答：ativa -> respondido，发结束语，-> finalizada，
// 台账 sent -> processado。结束语发送失败时状态停在 respondido，
// 下次同号码来消息不会再匹配到这条会话。
func (s *ConversationService) Finalize(ctx context.Context, conv *model.Conversation, c *model.Campaign) error {
	if conv.Status == model.ConversationStatusActive {
		if err := transitionConversation(conv, model.ConversationStatusAnswered); err != nil {
			return err
		}
		conv.AwaitingReply = false
		conv.ProximaAcao = model.NextActionClosingMessage
		if err := s.backend.UpdateConversation(ctx, conv); err != nil {
			return err
		}
	}

	if c.ClosingMessage != "" {
		if _, err := s.chat.SendText(ctx, conv.ChannelID, conv.Destination, c.ClosingMessage); err != nil {
			return fmt.Errorf("send closing message: %w", err)
		}
	}

	if err := transitionConversation(conv, model.ConversationStatusFinished); err != nil {
		return err
	}
	conv.ProximaAcao = ""
	if err := s.backend.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	return s.transitionControl(ctx, conv.DeliveryControlID, model.DeliveryStatusProcessed)
}

// Cancel /parar：会话 -> cancelada，台账 sent -> cancelado，不再打扰客户。
func (s *ConversationService) Cancel(ctx context.Context, conv *model.Conversation) error {
	if !conv.Status.CanTransition(model.ConversationStatusCancelled) {
		logger.Logger.Warn("Stop command on conversation that cannot be cancelled",
			zap.Int64("conversation_id", conv.ID),
			zap.String("status", string(conv.Status)))
		return nil
	}

	conv.Status = model.ConversationStatusCancelled
	conv.AwaitingReply = false
	conv.ProximaAcao = ""
	if err := s.backend.UpdateConversation(ctx, conv); err != nil {
		return err
	}

	logger.Logger.Info("Conversation cancelled by customer",
		zap.Int64("conversation_id", conv.ID))
	return s.transitionControl(ctx, conv.DeliveryControlID, model.DeliveryStatusCancelled)
}

// Restart /reiniciar：重发首条消息，会话退回第一题。
func (s *ConversationService) Restart(ctx context.Context, conv *model.Conversation, c *model.Campaign) error {
	text := composeFirstMessage(c)
	if _, err := s.chat.SendText(ctx, conv.ChannelID, conv.Destination, text); err != nil {
		return fmt.Errorf("resend first message: %w", err)
	}

	conv.CurrentQuestion = nil
	conv.AwaitingReply = true
	conv.ProximaAcao = model.NextActionMainQuestion
	conv.Status = model.ConversationStatusActive
	conv.TimeoutAt = model.ConversationDeadline(s.now(), c.TimeoutMinutes)

	return s.backend.UpdateConversation(ctx, conv)
}

func (s *ConversationService) transitionControl(ctx context.Context, controlID int64, to model.DeliveryStatus) error {
	ctrl, err := s.backend.GetDeliveryControlByID(ctx, controlID)
	if err != nil {
		return fmt.Errorf("get delivery control %d: %w", controlID, err)
	}
	if ctrl == nil {
		logger.Logger.Warn("Conversation references missing delivery control",
			zap.Int64("delivery_id", controlID))
		return nil
	}
	if ctrl.Status == to {
		return nil
	}
	return s.backend.TransitionDelivery(ctx, ctrl, to, backend.TransitionFields{})
}
