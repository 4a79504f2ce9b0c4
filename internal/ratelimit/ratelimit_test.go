package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	limiter := NewRedisLimiter(client, "test", 2, time.Minute)
	key := uuid.NewString()
	defer limiter.Reset(ctx, key)

	assert.NoError(t, limiter.Check(ctx, key))
	assert.NoError(t, limiter.Check(ctx, key))
	assert.ErrorIs(t, limiter.Check(ctx, key), ErrTooManyAttempts)

	ttl, err := client.TTL(ctx, "test_attempts:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, limiter.Reset(ctx, key))
	assert.NoError(t, limiter.Check(ctx, key))
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
