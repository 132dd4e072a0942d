package cache

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
)

// ClosableDeduplicator is a deduplicator that owns resources
type ClosableDeduplicator interface {
	integration.EventDeduplicator
	io.Closer
}

// DeduplicatorFactory picks the webhook de-duplication store
type DeduplicatorFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DeduplicatorFactoryOption is a functional option for configuring the factory
type DeduplicatorFactoryOption func(*DeduplicatorFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DeduplicatorFactoryOption {
	return func(f *DeduplicatorFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to memory.
// Default is true.
func WithInMemoryFallback(allow bool) DeduplicatorFactoryOption {
	return func(f *DeduplicatorFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDeduplicatorFactory creates a new factory
func NewDeduplicatorFactory(cfg config.RedisConfig, opts ...DeduplicatorFactoryOption) *DeduplicatorFactory {
	f := &DeduplicatorFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a Redis deduplicator, or an in-memory one when Redis is unreachable
// and fallback is allowed.
func (f *DeduplicatorFactory) Create(ctx context.Context) (ClosableDeduplicator, error) {
	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis webhook deduplicator", zap.String("addr", f.redisConfig.Addr()))
		return NewRedisEventDeduplicator(client, ""), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for webhook de-duplication but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory webhook deduplicator. "+
		"Retried deliveries may be processed twice across instances.",
		zap.Error(err),
	)
	return NewInMemoryEventDeduplicator(0), nil
}
