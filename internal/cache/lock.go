package cache

import (
	"context"
	"time"

	"NPSEngine/storage/redis"
)

// 调度循环的分布式运行锁。单实例下进程内的 running 标志就够了，
// 多副本部署时靠 SetNX 保证同一循环不并发。

const (
	lockPrefix = "lock"
)

func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fullkey := redis.Key(lockPrefix, key)

	result, err := redis.Client().SetNX(ctx, fullkey, 1, ttl).Result()

	if err != nil {
		return false, err
	}

	return result, err
}

func Unlock(ctx context.Context, key string) error {
	fullkey := redis.Key(lockPrefix, key)

	return redis.Client().Del(ctx, fullkey).Err()
}
