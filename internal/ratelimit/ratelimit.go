package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("ratelimit: too many attempts")

// RedisLimiter counts attempts per key in fixed windows shared by all instances.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

// Check records an attempt for key and returns ErrTooManyAttempts once the
// window's budget is spent.
func (r *RedisLimiter) Check(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("%s_attempts:%s", r.prefix, key)

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: failed to count attempt: %w", err)
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return fmt.Errorf("ratelimit: failed to set window: %w", err)
		}
	}

	if count > int64(r.max) {
		return ErrTooManyAttempts
	}
	return nil
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.redis.Del(ctx, fmt.Sprintf("%s_attempts:%s", r.prefix, key)).Err()
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ratelimit: failed to ping redis: %w", err)
	}
	return client, nil
}
