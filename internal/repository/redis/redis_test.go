package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestSettingsCache_RoundTripAndInvalidate(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewSettingsCache(client, time.Minute)
	ctx := context.Background()

	got, err := cache.Get(ctx, "shop.myshopify.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	settings := domain.DefaultAlertSettings("shop.myshopify.com")
	settings.Channels["slack"] = domain.ChannelConfig{"url": "https://hooks.slack.test/x"}
	require.NoError(t, cache.Set(ctx, settings))

	got, err = cache.Get(ctx, "shop.myshopify.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://hooks.slack.test/x", got.Channels["slack"].String("url"))
	assert.Equal(t, 2, got.Throttles.PerDay)

	require.NoError(t, cache.Invalidate(ctx, "shop.myshopify.com"))
	got, err = cache.Get(ctx, "shop.myshopify.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSettingsCache_Expires(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewSettingsCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.DefaultAlertSettings("t1")))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, 2, 1)
	fixed := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "t1:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "t1:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC), reset)

	// next window starts fresh
	limiter.now = func() time.Time { return fixed.Add(time.Minute) }
	allowed, _, _, err = limiter.Allow(ctx, "t1:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLocker_TryLock(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "alerts", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	second, err := locker.TryLock(ctx, "alerts", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, release(ctx))

	third, err := locker.TryLock(ctx, "alerts", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, third)
}
