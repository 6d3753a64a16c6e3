package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already handled so that
// at-least-once delivery does not reach a sink twice for the same event.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases resources
	Close() error
}
