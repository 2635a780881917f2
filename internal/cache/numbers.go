package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"NPSEngine/config"
	"NPSEngine/storage/redis"
)

// 号码能力探测结果缓存。探测要打网关，同一个号码短时间内反复探测
// 没有意义，结果按 TTL 缓存。缓存只是加速，redis 故障时降级为直接探测。

const (
	numberCapablePrefix = "number:capable"
)

func numberTTL() time.Duration {
	minutes := config.Cfg.NumberCacheTTLMinutes
	if minutes <= 0 {
		minutes = 720
	}
	return time.Duration(minutes) * time.Minute
}

// GetNumberCapability 查缓存。返回 (capable, found, err)。
func GetNumberCapability(ctx context.Context, channelID, digits string) (bool, bool, error) {
	key := redis.Key(numberCapablePrefix, channelID, digits)

	var val string
	err := RedisBreaker.Call(ctx, func() error {
		var innerErr error
		val, innerErr = redis.Client().Get(ctx, key).Result()
		if innerErr == goredis.Nil {
			val = ""
			return nil
		}
		return innerErr
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to read number capability cache: %w", err)
	}

	switch val {
	case "1":
		return true, true, nil
	case "0":
		return false, true, nil
	default:
		return false, false, nil
	}
}

// SetNumberCapability 写缓存，探测成功与失败都记
func SetNumberCapability(ctx context.Context, channelID, digits string, capable bool) error {
	key := redis.Key(numberCapablePrefix, channelID, digits)

	val := "0"
	if capable {
		val = "1"
	}

	return RedisBreaker.Call(ctx, func() error {
		return redis.Client().Set(ctx, key, val, numberTTL()).Err()
	})
}
