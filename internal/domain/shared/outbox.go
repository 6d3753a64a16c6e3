package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 8
	DefaultBaseBackoff = time.Second
	MaxBackoff         = 10 * time.Minute
)

// OutboxEntry is an audit event waiting for at-least-once delivery.
// It is written in the same transaction as the ledger mutation that caused it.
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	CompanyID     uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry creates a pending outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte, now time.Time) *OutboxEntry {
	entry := &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if scoped, ok := event.(ScopedEvent); ok {
		entry.CompanyID = scoped.CompanyID()
	}
	return entry
}

// CanRetry returns true if the entry can be retried
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// MarkProcessing claims the entry for delivery
func (e *OutboxEntry) MarkProcessing(now time.Time) error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return ErrInvalidState.WithDetail("outbox_status", string(e.Status))
	}
	e.Status = OutboxStatusProcessing
	e.UpdatedAt = now
	return nil
}

// IsStale reports a PROCESSING claim taken at or before staleBefore. Such a
// claim belongs to a dispatcher that stopped before recording the outcome.
func (e *OutboxEntry) IsStale(staleBefore time.Time) bool {
	return e.Status == OutboxStatusProcessing && !e.UpdatedAt.After(staleBefore)
}

// Claim takes the entry for delivery: a fresh claim for PENDING and FAILED
// entries, a takeover for stale PROCESSING ones
func (e *OutboxEntry) Claim(now, staleBefore time.Time) error {
	if e.IsStale(staleBefore) {
		e.UpdatedAt = now
		return nil
	}
	return e.MarkProcessing(now)
}

// MarkSent marks the entry as delivered
func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure and schedules the next attempt
// with exponential backoff, or moves the entry to DEAD.
func (e *OutboxEntry) MarkFailed(errMsg string, now time.Time) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	nextRetry := now.Add(Backoff(e.RetryCount))
	e.NextRetryAt = &nextRetry
}

// Backoff returns the delay before attempt n+1: 1s, 2s, 4s, ... capped at MaxBackoff.
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		return DefaultBaseBackoff
	}
	if retryCount > 20 {
		return MaxBackoff
	}
	d := DefaultBaseBackoff * time.Duration(1<<uint(retryCount-1))
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// ResetForRetry moves a dead entry back to pending
func (e *OutboxEntry) ResetForRetry(now time.Time) error {
	if e.Status != OutboxStatusDead {
		return ErrInvalidState.WithDetail("outbox_status", string(e.Status))
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// IsDead returns true if the entry is in dead letter status
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository defines the interface for outbox persistence
type OutboxRepository interface {
	// Save persists one or more outbox entries
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindPending retrieves pending entries up to the specified limit
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable retrieves failed entries due for retry and PROCESSING
	// entries whose claim is at or before staleBefore
	FindRetryable(ctx context.Context, before, staleBefore time.Time, limit int) ([]*OutboxEntry, error)
	// FindDead retrieves dead letter entries with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID retrieves a single outbox entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing atomically claims entries and returns the ones this caller
	// owns. Stale PROCESSING claims are taken over.
	MarkProcessing(ctx context.Context, ids []uuid.UUID, now, staleBefore time.Time) ([]*OutboxEntry, error)
	// Update updates an existing outbox entry
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteSentBefore deletes delivered entries older than the specified time
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of entries for each status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
