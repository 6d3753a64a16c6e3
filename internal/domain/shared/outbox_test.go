package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	BaseDomainEvent
}

func newTestEvent(now time.Time) *testEvent {
	root := NewTenantAggregateRoot(uuid.New(), uuid.New(), uuid.New(), now)
	return &testEvent{BaseDomainEvent: NewBaseDomainEvent("test.happened", "Test", &root, root.CreatedBy, now)}
}

func TestNewOutboxEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := newTestEvent(now)

	entry := NewOutboxEntry(ev, []byte(`{}`), now)

	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, ev.EventID(), entry.EventID)
	assert.Equal(t, ev.TenantID(), entry.TenantID)
	assert.Equal(t, ev.CompanyID(), entry.CompanyID, "scoped events carry the company")
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.Equal(t, now, entry.CreatedAt)
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("schedules exponential backoff", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

		entry.MarkFailed("sink down", now)
		require.NotNil(t, entry.NextRetryAt)
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, now.Add(time.Second), *entry.NextRetryAt)

		entry.MarkFailed("sink down", now)
		assert.Equal(t, now.Add(2*time.Second), *entry.NextRetryAt)

		entry.MarkFailed("sink down", now)
		assert.Equal(t, now.Add(4*time.Second), *entry.NextRetryAt)
		assert.Equal(t, "sink down", entry.LastError)
	})

	t.Run("moves to dead after max retries", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 2}
		entry.MarkFailed("e1", now)
		entry.MarkFailed("e2", now)
		assert.True(t, entry.IsDead())
		assert.Nil(t, entry.NextRetryAt)
		assert.False(t, entry.CanRetry())
	})
}

func TestBackoff_Capped(t *testing.T) {
	assert.Equal(t, DefaultBaseBackoff, Backoff(0))
	assert.Equal(t, 8*time.Second, Backoff(4))
	assert.Equal(t, MaxBackoff, Backoff(15))
	assert.Equal(t, MaxBackoff, Backoff(64))
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	now := time.Now()

	t.Run("resets dead letter entry for retry", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "some error",
		}

		err := entry.ResetForRetry(now)
		assert.NoError(t, err)
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Equal(t, now, entry.UpdatedAt)
	})

	t.Run("fails for non-dead entry", func(t *testing.T) {
		for _, status := range []OutboxStatus{
			OutboxStatusPending,
			OutboxStatusProcessing,
			OutboxStatusSent,
			OutboxStatusFailed,
		} {
			entry := &OutboxEntry{ID: uuid.New(), Status: status}
			err := entry.ResetForRetry(now)
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	})
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	now := time.Now()

	entry := &OutboxEntry{Status: OutboxStatusFailed}
	require.NoError(t, entry.MarkProcessing(now))
	assert.Equal(t, OutboxStatusProcessing, entry.Status)

	sent := &OutboxEntry{Status: OutboxStatusSent}
	assert.Error(t, sent.MarkProcessing(now))
}

func TestOutboxEntry_Claim(t *testing.T) {
	claimedAt := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	lease := 5 * time.Minute

	t.Run("live claim is kept", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, UpdatedAt: claimedAt}
		now := claimedAt.Add(time.Minute)
		assert.False(t, entry.IsStale(now.Add(-lease)))
		assert.ErrorIs(t, entry.Claim(now, now.Add(-lease)), ErrInvalidState)
	})

	t.Run("lapsed claim is taken over", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, UpdatedAt: claimedAt}
		now := claimedAt.Add(lease)
		assert.True(t, entry.IsStale(now.Add(-lease)))
		require.NoError(t, entry.Claim(now, now.Add(-lease)))
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
		assert.Equal(t, now, entry.UpdatedAt)
	})

	t.Run("pending entry is claimed", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusPending, UpdatedAt: claimedAt}
		require.NoError(t, entry.Claim(claimedAt, claimedAt.Add(-lease)))
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
	})

	t.Run("sent entry is never stale", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusSent, UpdatedAt: claimedAt}
		assert.False(t, entry.IsStale(claimedAt.Add(time.Hour)))
	})
}
