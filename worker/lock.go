package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"maplemail/config"
)

// RedisLock serializes dispatch runs across replicas with SetNX and a
// TTL, so a crashed holder cannot wedge the schedule.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(cfg config.RedisConfig) *RedisLock {
	return &RedisLock{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, "lock:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "lock:"+key).Err()
}

// NoopLock is used when Redis is disabled; single-process deployments
// don't need cross-replica serialization.
type NoopLock struct{}

func (NoopLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopLock) Release(ctx context.Context, key string) error {
	return nil
}
