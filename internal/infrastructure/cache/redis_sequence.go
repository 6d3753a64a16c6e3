package cache

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/redis/go-redis/v9"
)

// RedisSequence hands out posting sequence numbers with INCR. It does not take
// part in the posting transaction, so a rolled back posting leaves a gap.
type RedisSequence struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisSequence creates a RedisSequence; keys are keyPrefix + scope
func NewRedisSequence(client redis.UniversalClient, keyPrefix string) *RedisSequence {
	if keyPrefix == "" {
		keyPrefix = "ledger:sequence:"
	}
	return &RedisSequence{client: client, keyPrefix: keyPrefix}
}

// Next increments and returns the counter of scope
func (s *RedisSequence) Next(ctx context.Context, scope string) (int64, error) {
	n, err := s.client.Incr(ctx, s.keyPrefix+scope).Result()
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", scope, err)
	}
	return n, nil
}

// Ensure RedisSequence implements SequencePort
var _ ledger.SequencePort = (*RedisSequence)(nil)
