package whats

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"NPSEngine/config"
	"NPSEngine/pkg/logger"
)

// Client WhatsApp 网关客户端接口
type Client interface {
	// CheckNumber 能力探测：号码是否有 WhatsApp 账号能收消息。
	// 返回 (false, nil) 表示确认不能收；错误表示探测本身失败（可重试）。
	CheckNumber(ctx context.Context, channelID, phone string) (bool, error)

	// SendText 发送文本消息，返回网关侧消息 id
	SendText(ctx context.Context, channelID, destination, text string) (string, error)

	// SendImage 发送带一张图片的消息，文本作为 caption
	SendImage(ctx context.Context, channelID, destination, caption, imageURL string) (string, error)
}

var (
	whatsClient Client
	whatsOnce   sync.Once
)

// Init 初始化 WhatsApp 网关客户端
func Init() error {
	whatsOnce.Do(func() {
		whatsClient = NewGatewayClient(config.Cfg.WhatsBaseURL, config.Cfg.WhatsAPIKey)

		logger.Logger.Info("WhatsApp gateway client initialized",
			zap.String("base_url", config.Cfg.WhatsBaseURL),
		)
	})

	return nil
}

func GetClient() Client {
	if whatsClient == nil {
		panic("WhatsApp client not initialized, call whats.Init() first")
	}
	return whatsClient
}
