package middleware

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"

	"NPSEngine/config"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/response"
)

// WebhookAuthMiddleware 校验网关回调携带的共享令牌。
// 令牌未配置时拒绝所有回调，宁可丢事件也不收来历不明的。
func WebhookAuthMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		expected := config.Cfg.WebhookToken
		got := string(c.GetHeader("X-Webhook-Token"))

		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			response.Error(ctx, c, errors.WebhookTokenInvalid)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
