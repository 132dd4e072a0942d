package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
)

// DefaultDedupKeyPrefix namespaces webhook de-duplication keys
const DefaultDedupKeyPrefix = "ledgerlink:webhook:seen:"

// RedisEventDeduplicator remembers delivered webhook events in Redis so that
// every server instance drops the same retried deliveries.
type RedisEventDeduplicator struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisEventDeduplicator creates a deduplicator over an existing client
func NewRedisEventDeduplicator(client redis.UniversalClient, keyPrefix string) *RedisEventDeduplicator {
	if keyPrefix == "" {
		keyPrefix = DefaultDedupKeyPrefix
	}
	return &RedisEventDeduplicator{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records key for ttl with SETNX.
// Returns true if the key was newly marked, false if it was already present.
func (d *RedisEventDeduplicator) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook event: %w", err)
	}
	return ok, nil
}

// Forget removes key so the event can be processed again
func (d *RedisEventDeduplicator) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (d *RedisEventDeduplicator) Close() error {
	return d.client.Close()
}

var _ integration.EventDeduplicator = (*RedisEventDeduplicator)(nil)
