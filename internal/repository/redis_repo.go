package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache реализует CacheStore для Redis (Infrastructure Layer)
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создает новый экземпляр RedisCache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisCacheFromAddr создает кэш из адреса Redis
func NewRedisCacheFromAddr(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisCache(client, ttl), nil
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s:record", runID)
}

// SetRun кэширует прогон с настроенным TTL
func (c *RedisCache) SetRun(ctx context.Context, run *RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	return c.client.Set(ctx, runKey(run.ID), data, c.ttl).Err()
}

// GetRun возвращает прогон из кэша
func (c *RedisCache) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	data, err := c.client.Get(ctx, runKey(runID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// DeleteRun удаляет прогон из кэша
func (c *RedisCache) DeleteRun(ctx context.Context, runID string) error {
	return c.client.Del(ctx, runKey(runID)).Err()
}

// Close закрывает соединение с Redis
func (c *RedisCache) Close() error {
	return c.client.Close()
}
