package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/logger"
	"NPSEngine/storage/mq"
)

// InboundHandler 入站消息的业务处理面，worker 启动时注入
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg *model.InboundChatMessage) error
}

var inboundHandler InboundHandler

// decodeInbound 解析入站消息。webhook 收的是外部输入，解不开的 payload
// 重回队列也解不开，按跳过处理，ack 掉只留日志。
func decodeInbound(body []byte) (*model.InboundChatMessage, error) {
	var msg model.InboundChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Logger.Error("Discarding undecodable inbound payload",
			zap.Error(err),
			zap.Int("body_len", len(body)))
		return nil, &errors.SkipMessageError{Reason: "undecodable inbound payload: " + err.Error()}
	}
	return &msg, nil
}

// SetInboundHandler 设置入站消息处理服务（在 worker 启动时调用）
func SetInboundHandler(h InboundHandler) {
	inboundHandler = h
}

// StartInboundConsumer 启动入站消息消费者。SkipMessageError 会被 ack
// 不重试，其他错误 nack 重新入队。
func StartInboundConsumer(ctx context.Context) error {
	if inboundHandler == nil {
		return fmt.Errorf("inbound handler is not set")
	}

	handler := func(msgCtx context.Context, body []byte) error {
		msg, err := decodeInbound(body)
		if err != nil {
			return err
		}

		logger.Logger.Info("Processing inbound chat message",
			zap.String("envelope_id", msg.EnvelopeID),
			zap.String("message_id", msg.MessageID),
			zap.String("channel_id", msg.ChannelID),
		)

		return inboundHandler.HandleInbound(msgCtx, msg)
	}

	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.InboundQueue,
		ConsumerTag:   "inbound_message_consumer",
		PrefetchCount: 10,
		Handler:       handler,
	})
}

// StartAllConsumers 启动所有消费者（在 worker 启动时调用）
func StartAllConsumers(ctx context.Context) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"inbound_message", StartInboundConsumer},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()
}
