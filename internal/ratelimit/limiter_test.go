package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_memoryWindow(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	limiter := New(store, 3, 50*time.Millisecond, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "register:203.0.113.9"), "attempt %d should be admitted", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "register:203.0.113.9"), "4th attempt should be rejected")

	// A different identifier has its own window.
	assert.True(t, limiter.Allow(ctx, "register:198.51.100.7"))

	// Once the window elapses the counter resets.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.Allow(ctx, "register:203.0.113.9"))
}

func TestLimiter_redisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := New(NewRedisStore(client), 3, 15*time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "register:203.0.113.9"))
	}
	assert.False(t, limiter.Allow(ctx, "register:203.0.113.9"))

	mr.FastForward(15*time.Minute + time.Second)
	assert.True(t, limiter.Allow(ctx, "register:203.0.113.9"))
}

func TestLimiter_failsOpenOnStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(NewRedisStore(client), 1, time.Minute, nil)
	ctx := context.Background()

	mr.Close()
	_ = client.Close()

	// The limiter bounds abuse, not correctness: a dead store admits.
	assert.True(t, limiter.Allow(ctx, "register:203.0.113.9"))
}

func TestMemoryStore_concurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_, err := store.Incr(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	n, err := store.Incr(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), n, "no increment may be lost")
}
