package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/snowflake"
	"NPSEngine/storage/mq"
)

// PublishInboundMessage 把网关回调的入站消息投到队列，webhook 只做
// 这一件事，处理全在 worker。
func PublishInboundMessage(ctx context.Context, msg model.InboundChatMessage) error {
	if msg.EnvelopeID == "" {
		id, err := snowflake.NextID()
		if err != nil {
			logger.Logger.Error("Failed to generate envelope ID",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate envelope ID: %w", err)
		}
		msg.EnvelopeID = fmt.Sprintf("in_%d", id)
	}
	if msg.ReceivedAt == "" {
		msg.ReceivedAt = time.Now().Format(time.RFC3339)
	}

	if err := mq.PublishMessage(ctx, mq.InboundExchange, mq.InboundRouting, msg); err != nil {
		logger.Logger.Error("Failed to publish inbound chat message",
			zap.String("envelope_id", msg.EnvelopeID),
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published inbound chat message",
		zap.String("envelope_id", msg.EnvelopeID),
		zap.String("message_id", msg.MessageID),
		zap.String("channel_id", msg.ChannelID),
	)
	return nil
}
