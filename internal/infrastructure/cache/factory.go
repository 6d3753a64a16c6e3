package cache

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory picks the store that guards audit delivery
type IdempotencyStoreFactory struct {
	client                *redis.Client
	keyPrefix             string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory store when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithKeyPrefix sets the Redis key prefix of delivery markers
func WithKeyPrefix(prefix string) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.keyPrefix = prefix
	}
}

// NewIdempotencyStoreFactory creates a new factory. A nil client means Redis
// is not configured.
func NewIdempotencyStoreFactory(client *redis.Client, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		client:                client,
		keyPrefix:             "ledger:audit:delivered:",
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore returns the Redis store when a client is configured, otherwise
// an in-memory store if fallback is allowed. The in-memory store does not
// share state across ledgerd replicas, so a sink may see an event twice.
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	if f.client != nil {
		f.logger.Info("using Redis idempotency store", zap.String("prefix", f.keyPrefix))
		return &sharedClientStore{NewRedisIdempotencyStoreWithClient(f.client, f.keyPrefix)}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for audit delivery idempotency but not configured")
	}

	f.logger.Warn("Redis not configured, falling back to in-memory idempotency store. " +
		"Replicas may deliver the same audit event twice.")
	return NewInMemoryIdempotencyStore(), nil
}

// sharedClientStore leaves the shared client open on Close
type sharedClientStore struct {
	*RedisIdempotencyStore
}

func (s *sharedClientStore) Close() error {
	return nil
}
