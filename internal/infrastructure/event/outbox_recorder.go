package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxRecorder writes domain events to the outbox table inside the
// caller's transaction. Nothing is delivered until the transaction commits
// and a dispatcher picks the rows up.
type OutboxRecorder struct {
	tx    *gorm.DB
	clock shared.Clock
}

// NewOutboxRecorder creates a recorder bound to a transaction
func NewOutboxRecorder(tx *gorm.DB, clock shared.Clock) *OutboxRecorder {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &OutboxRecorder{tx: tx, clock: clock}
}

// Record serializes the events and stores them as pending outbox entries
func (r *OutboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := r.clock.Now()
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", event.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload, now))
	}

	return NewGormOutboxRepository(r.tx).Save(ctx, entries...)
}

// Ensure OutboxRecorder implements EventRecorder
var _ shared.EventRecorder = (*OutboxRecorder)(nil)
