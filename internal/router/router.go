package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"NPSEngine/internal/handler"
	"NPSEngine/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	// 网关回调：令牌校验 + 按 IP 限流
	webhooks := v1.Group("/webhooks")
	webhooks.Use(middleware.WebhookAuthMiddleware())
	webhooks.Use(middleware.RateLimitMiddleware(middleware.WebhookRateLimitConfig))
	{
		webhooks.POST("/chat", handler.ReceiveChatEvent)
	}

	// 运营诊断
	campaigns := v1.Group("/campaigns")
	{
		campaigns.GET("/:id/diagnosis", handler.GetCampaignDiagnosis)
	}
}
