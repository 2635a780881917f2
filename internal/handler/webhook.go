package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"NPSEngine/internal/model"
	"NPSEngine/internal/queue"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/response"
)

// webhookEvent 网关回调的事件体。只关心文本消息，其他事件类型 ack 后丢弃。
type webhookEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ReceiveChatEvent 接收网关回调并投递到队列
// POST /v1/webhooks/chat
func ReceiveChatEvent(ctx context.Context, c *app.RequestContext) {
	var event webhookEvent
	if err := c.BindJSON(&event); err != nil {
		response.Error(ctx, c, errors.WebhookPayloadInvalid)
		return
	}

	if event.MessageID == "" || event.ChannelID == "" || event.From == "" {
		response.Error(ctx, c, errors.WebhookPayloadInvalid)
		return
	}

	// 非文本事件（已读回执、状态更新）直接 200，网关不用重投
	if event.Type != "" && event.Type != "message" {
		response.Success(ctx, c, map[string]interface{}{"ignored": true})
		return
	}

	msg := model.InboundChatMessage{
		MessageID:   event.MessageID,
		ChannelID:   event.ChannelID,
		Destination: event.From,
		Text:        event.Text,
		ReceivedAt:  event.Timestamp,
	}

	if err := queue.PublishInboundMessage(ctx, msg); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Accepted(ctx, c)
}
