package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// UnlockFunc releases a lock taken by TryLock
type UnlockFunc func(ctx context.Context) error

// Locker takes a named lock without waiting
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string, time.Duration) (UnlockFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// RedsyncLocker implements Locker with the Redlock algorithm over one Redis
type RedsyncLocker struct {
	rs *redsync.Redsync
}

// NewRedsyncLocker creates a locker over client
func NewRedsyncLocker(client goredislib.UniversalClient) *RedsyncLocker {
	return &RedsyncLocker{rs: redsync.New(goredis.NewPool(client))}
}

// TryLock makes a single attempt. The lock expires after ttl even if the
// holder dies.
func (l *RedsyncLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	if key == "" {
		return nil, errors.New("lock key cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be greater than 0")
	}
	mutex := l.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		if isTaken(err) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("lock %s was not held or already expired", key)
		}
		return nil
	}, nil
}

func isTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}

// Ensure RedsyncLocker implements Locker
var _ Locker = (*RedsyncLocker)(nil)
