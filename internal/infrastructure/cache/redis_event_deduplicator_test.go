package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/infrastructure/config"
)

func newTestRedisDeduplicator(t *testing.T) (*RedisEventDeduplicator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := NewRedisEventDeduplicator(client, "")
	t.Cleanup(func() { _ = d.Close() })
	return d, mr
}

func TestRedisEventDeduplicator_MarkProcessed(t *testing.T) {
	d, mr := newTestRedisDeduplicator(t)
	ctx := context.Background()

	first, err := d.MarkProcessed(ctx, "4411:100", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.MarkProcessed(ctx, "4411:100", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	assert.True(t, mr.Exists(DefaultDedupKeyPrefix+"4411:100"))
	assert.Equal(t, time.Hour, mr.TTL(DefaultDedupKeyPrefix+"4411:100"))
}

func TestRedisEventDeduplicator_Expiry(t *testing.T) {
	d, mr := newTestRedisDeduplicator(t)
	ctx := context.Background()

	_, err := d.MarkProcessed(ctx, "4411:200", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	fresh, err := d.MarkProcessed(ctx, "4411:200", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisEventDeduplicator_Forget(t *testing.T) {
	d, _ := newTestRedisDeduplicator(t)
	ctx := context.Background()

	_, err := d.MarkProcessed(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "k"))

	fresh, err := d.MarkProcessed(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisEventDeduplicator_ServerDown(t *testing.T) {
	d, mr := newTestRedisDeduplicator(t)
	mr.Close()

	_, err := d.MarkProcessed(context.Background(), "k", time.Hour)
	assert.Error(t, err)
}

func TestDeduplicatorFactory(t *testing.T) {
	t.Run("uses redis when reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		d, err := NewDeduplicatorFactory(config.RedisConfig{Host: mr.Host(), Port: port}).Create(context.Background())
		require.NoError(t, err)
		defer d.Close()
		assert.IsType(t, &RedisEventDeduplicator{}, d)
	})

	t.Run("falls back to memory", func(t *testing.T) {
		d, err := NewDeduplicatorFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1},
			WithLogger(zap.NewNop())).Create(context.Background())
		require.NoError(t, err)
		defer d.Close()
		assert.IsType(t, &InMemoryEventDeduplicator{}, d)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		_, err := NewDeduplicatorFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1},
			WithInMemoryFallback(false)).Create(context.Background())
		assert.Error(t, err)
	})
}
