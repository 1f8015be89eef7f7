package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ludo:withdraw:"

// RedisCache keeps records in Redis so every API replica sees the same window
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and pings it
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %v", types.ErrExternalUnavailable, addr, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis get: %v", types.ErrExternalUnavailable, err)
	}
	return payload, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", types.ErrExternalUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", types.ErrExternalUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
