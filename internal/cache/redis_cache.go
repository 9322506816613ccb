package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gomhangpro/backend/internal/domain"
)

type RedisStaffCache struct {
	client *redis.Client
}

func NewRedisStaffCache(addr string, password string, db int) *RedisStaffCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStaffCache{client: client}
}

func (c *RedisStaffCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStaffCache) Close() error {
	return c.client.Close()
}

func (c *RedisStaffCache) Get(ctx context.Context, key string) (*domain.UserAccount, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var user domain.UserAccount
	if err := json.Unmarshal([]byte(val), &user); err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

func (c *RedisStaffCache) Set(ctx context.Context, key string, value *domain.UserAccount, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
