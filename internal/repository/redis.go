package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"estateadmin/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisBadgeRepository keeps unread-notification counts and submission
// rate-limit windows in Redis.
type RedisBadgeRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisBadgeRepository(client *redis.Client, ttl time.Duration) *RedisBadgeRepository {
	return &RedisBadgeRepository{
		client: client,
		ttl:    ttl,
	}
}

func unreadKey(userID int64) string {
	return fmt.Sprintf("unread_count:%d", userID)
}

func (r *RedisBadgeRepository) GetUnread(ctx context.Context, userID int64) (int, bool, error) {
	if r.client == nil {
		return 0, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, unreadKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get unread count from redis: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse unread count: %w", err)
	}
	return count, true, nil
}

func (r *RedisBadgeRepository) SetUnread(ctx context.Context, userID int64, count int) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, unreadKey(userID), count, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set unread count in redis: %w", err)
	}
	return nil
}

func (r *RedisBadgeRepository) InvalidateUnread(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate unread count in redis: %w", err)
	}
	return nil
}

func (r *RedisBadgeRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:%d", userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
