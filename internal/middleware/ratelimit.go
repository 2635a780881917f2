package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"

	"NPSEngine/pkg/logger"
	"NPSEngine/pkg/response"
	"NPSEngine/storage/redis"

	"go.uber.org/zap"

	"NPSEngine/pkg/errors"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 错误消息
	ErrorMessage string
}

// WebhookRateLimitConfig 网关回调限流：单网关实例不该每秒打过来几百条
var WebhookRateLimitConfig = RateLimitConfig{
	Window:       60,
	MaxRequests:  600,
	KeyPrefix:    "rate:webhook",
	ErrorMessage: "too many webhook events",
}

// RateLimiter 基于 redis zset 的滑动窗口限流器，按来源 IP 分键
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: config}
}

func (rl *RateLimiter) getKey(c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, fmt.Sprintf("ip:%s", c.ClientIP()))
}

// Allow 检查是否允许请求，使用滑动窗口算法
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, error) {
	key := rl.getKey(c)
	now := time.Now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	client := redis.Client()
	pipe := client.Pipeline()

	// 每次请求先移除窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() <= int64(rl.config.MaxRequests), nil
}

// RateLimitMiddleware 创建限流中间件。redis 不可用时放行，
// 限流是保护措施，不该成为单点。
func RateLimitMiddleware(cfg RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(cfg)

	return func(ctx context.Context, c *app.RequestContext) {
		allowed, err := limiter.Allow(ctx, c)
		if err != nil {
			logger.Logger.Warn("Rate limiter check failed, allowing request",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err))
			c.Next(ctx)
			return
		}

		if !allowed {
			logger.Logger.Warn("Rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", string(c.Path())))
			response.Error(ctx, c, errors.Definition{
				Code:    "RATE_LIMITED",
				Message: cfg.ErrorMessage,
			})
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
