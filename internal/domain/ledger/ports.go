package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccountInfo is what the chart of accounts tells the ledger about a code.
type AccountInfo struct {
	Code     string
	Name     string
	Exists   bool
	Active   bool
	Postable bool
}

// AccountDirectory resolves account codes against the chart of accounts.
type AccountDirectory interface {
	Resolve(ctx context.Context, scope Scope, code string) (AccountInfo, error)
}

// FiscalCalendar resolves period codes to their status and date range.
type FiscalCalendar interface {
	Status(ctx context.Context, scope Scope, periodCode string) (PeriodStatus, error)
	Range(ctx context.Context, scope Scope, periodCode string) (start, end time.Time, err error)
}

// PolicyPort answers role questions for approval routing.
type PolicyPort interface {
	HasRole(ctx context.Context, scope Scope, actor uuid.UUID, role string) (bool, error)
}

// SequencePort hands out strictly increasing numbers per scope.
type SequencePort interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// AuditEvent is the sink-facing form of an outbox entry.
type AuditEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	CompanyID     uuid.UUID       `json:"company_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// AuditSink receives audit events from the outbox dispatcher.
// Delivery is at-least-once; sinks should tolerate duplicates by EventID.
type AuditSink interface {
	Name() string
	Append(ctx context.Context, event AuditEvent) error
}

// CheckPostable validates each distinct account code in order and returns
// the first failure.
func CheckPostable(ctx context.Context, dir AccountDirectory, scope Scope, codes []string) error {
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}

		info, err := dir.Resolve(ctx, scope, code)
		if err != nil {
			return err
		}
		switch {
		case !info.Exists:
			return ErrAccountNotFound.WithDetail("account", code)
		case !info.Active:
			return ErrAccountInactive.WithDetail("account", code)
		case !info.Postable:
			return ErrAccountNotPostable.WithDetail("account", code)
		}
	}
	return nil
}

// CheckPeriodOpen fails with ErrPeriodClosed unless the period accepts postings.
func CheckPeriodOpen(ctx context.Context, cal FiscalCalendar, scope Scope, periodCode string) error {
	status, err := cal.Status(ctx, scope, periodCode)
	if err != nil {
		return err
	}
	if !status.AcceptsPostings() {
		return ErrPeriodClosed.WithDetails(map[string]string{
			"period": periodCode,
			"status": string(status),
		})
	}
	return nil
}
