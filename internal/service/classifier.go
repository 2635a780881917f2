package service

import (
	"context"
	"strconv"
	"strings"
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
)

// 打分题收到非法回答时的纠正提示
const correctivePrompt = "Por favor, responda apenas com um número de 0 a 10."

// ClassifyScore 解析 0~10 的打分回答。去掉首尾空白后必须是纯数字，
// 越界或夹杂文字都算无效。
func ClassifyScore(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	score, err := strconv.Atoi(trimmed)
	if err != nil || score < 0 || score > 10 {
		return 0, false
	}
	return score, true
}

// InboundService 入站消息处理：去重、路由到会话、分类回答、推进状态机。
type InboundService struct {
	backend      Backend
	chat         whats.Client
	conversation *ConversationService
	dedup        MessageDedup
	now          func() time.Time
}

var (
	inboundService *InboundService
	inboundOnce    sync.Once
)

func Inbound() *InboundService {
	inboundOnce.Do(func() {
		inboundService = NewInboundService(backend.GetClient(), whats.GetClient(), Conversation(), redisMessageDedup{})
	})
	return inboundService
}

func NewInboundService(b Backend, chat whats.Client, conv *ConversationService, dedup MessageDedup) *InboundService {
	return &InboundService{
		backend:      b,
		chat:         chat,
		conversation: conv,
		dedup:        dedup,
		now:          time.Now,
	}
}

// HandleInbound 处理一条入站聊天消息。返回 SkipMessageError 表示
// 消费者应当 ack 不重试；其他错误会触发 nack 重新入队。
func (s *InboundService) HandleInbound(ctx context.Context, msg *model.InboundChatMessage) error {
	first, err := s.dedup.TryMark(ctx, msg.MessageID)
	if err != nil {
		logger.Logger.Warn("Message dedup check failed, processing anyway",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
	} else if !first {
		return &errors.SkipMessageError{Reason: "duplicate message " + msg.MessageID}
	}

	if err := s.handle(ctx, msg); err != nil {
		if !errors.IsSkip(err) {
			// 失败放行重试，去掉处理中标记
			if unmarkErr := s.dedup.Unmark(ctx, msg.MessageID); unmarkErr != nil {
				logger.Logger.Warn("Failed to unmark message after error",
					zap.String("message_id", msg.MessageID),
					zap.Error(unmarkErr))
			}
		}
		return err
	}

	if err := s.dedup.MarkDone(ctx, msg.MessageID); err != nil {
		logger.Logger.Warn("Failed to mark message processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
	}
	return nil
}

func (s *InboundService) handle(ctx context.Context, msg *model.InboundChatMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	candidates := phone.Expand(msg.Destination)
	conv, err := s.backend.FindActiveConversation(ctx, candidates, msg.ChannelID)
	if err != nil {
		return err
	}

	now := s.now()
	if conv == nil || !conv.IsOpen(now) {
		// 没有能接住这条消息的会话，统一静默丢弃
		metrics.RecordDroppedInbound()
		logger.Logger.Info("Inbound message without open conversation, dropping",
			zap.String("message_id", msg.MessageID),
			zap.String("channel_id", msg.ChannelID))
		return nil
	}

	ctrl, err := s.backend.GetDeliveryControlByID(ctx, conv.DeliveryControlID)
	if err != nil {
		return err
	}
	if ctrl == nil {
		return &errors.SkipMessageError{Reason: "conversation without delivery control"}
	}
	c, err := s.backend.GetCampaign(ctx, ctrl.CampaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return &errors.SkipMessageError{Reason: "delivery control without campaign"}
	}

	switch strings.ToLower(text) {
	case model.CommandStop:
		return s.conversation.Cancel(ctx, conv)
	case model.CommandRestart:
		return s.conversation.Restart(ctx, conv, c)
	}

	switch conv.EffectiveOrdinal() {
	case model.OrdinalScore:
		return s.handleScoreReply(ctx, msg, conv, c, ctrl, text)
	case model.OrdinalFollowUp:
		return s.handleFollowUpReply(ctx, msg, conv, c, ctrl, text)
	default:
		return &errors.SkipMessageError{Reason: "conversation at unknown question ordinal"}
	}
}

func (s *InboundService) handleScoreReply(ctx context.Context, msg *model.InboundChatMessage, conv *model.Conversation, c *model.Campaign, ctrl *model.DeliveryControl, text string) error {
	score, ok := ClassifyScore(text)
	if !ok {
		// 无效回答：发纠正提示，会话状态原地不动
		metrics.RecordInvalidReply()
		if _, err := s.chat.SendText(ctx, conv.ChannelID, conv.Destination, correctivePrompt); err != nil {
			return err
		}
		return nil
	}

	category := model.CategoryForScore(score)
	resp := &model.SurveyResponse{
		OrderID:         ctrl.OrderID,
		CampaignID:      ctrl.CampaignID,
		CustomerID:      ctrl.CustomerID,
		QuestionOrdinal: model.OrdinalScore,
		ReplyText:       text,
		Score:           &score,
		Category:        category,
		MessageID:       msg.MessageID,
	}
	if err := s.backend.AppendResponse(ctx, resp); err != nil {
		return err
	}

	metrics.RecordResponse(string(category), model.OrdinalScore)
	logger.Logger.Info("Score recorded",
		zap.Int64("conversation_id", conv.ID),
		zap.Int("score", score),
		zap.String("category", string(category)))

	return s.conversation.Advance(ctx, conv, c)
}

func (s *InboundService) handleFollowUpReply(ctx context.Context, msg *model.InboundChatMessage, conv *model.Conversation, c *model.Campaign, ctrl *model.DeliveryControl, text string) error {
	// 自由文本题任何非空回答都有效
	resp := &model.SurveyResponse{
		OrderID:         ctrl.OrderID,
		CampaignID:      ctrl.CampaignID,
		CustomerID:      ctrl.CustomerID,
		QuestionOrdinal: model.OrdinalFollowUp,
		ReplyText:       text,
		MessageID:       msg.MessageID,
	}
	if err := s.backend.AppendResponse(ctx, resp); err != nil {
		return err
	}

	metrics.RecordResponse("", model.OrdinalFollowUp)
	return s.conversation.Finalize(ctx, conv, c)
}
