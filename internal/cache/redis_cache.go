package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokopos/backend/internal/domain"
)

const statusKeyPrefix = "tokopos:payment-status:"

type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(addr string, password string, db int) *RedisStatusCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStatusCache{client: client}
}

func NewRedisStatusCacheFromClient(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func (c *RedisStatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

func (c *RedisStatusCache) Get(ctx context.Context, gatewayOrderID string) (*domain.StatusSnapshot, bool, error) {
	val, err := c.client.Get(ctx, statusKeyPrefix+gatewayOrderID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap domain.StatusSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, gatewayOrderID string, value *domain.StatusSnapshot, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+gatewayOrderID, payload, ttl).Err()
}

func (c *RedisStatusCache) Delete(ctx context.Context, gatewayOrderID string) error {
	return c.client.Del(ctx, statusKeyPrefix+gatewayOrderID).Err()
}
