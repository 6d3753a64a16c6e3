package shared

import "context"

// EventRecorder stores domain events in the outbox as part of the caller's
// unit of work. It must not deliver anything itself.
type EventRecorder interface {
	Record(ctx context.Context, events ...DomainEvent) error
}
