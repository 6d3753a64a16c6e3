package ledger

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type names
const (
	AggregateTypeJournalEntry  = "JournalEntry"
	AggregateTypeApprovalRoute = "ApprovalRoute"
	AggregateTypePeriod        = "Period"
	AggregateTypeTBSnapshot    = "TBSnapshot"
)

// Event type names
const (
	EventTypeEntryCreated      = "ledger.entry.created"
	EventTypeEntrySubmitted    = "ledger.entry.submitted"
	EventTypeEntryApproved     = "ledger.entry.approved"
	EventTypeEntryRejected     = "ledger.entry.rejected"
	EventTypeEntryPosted       = "ledger.entry.posted"
	EventTypeEntryReversed     = "ledger.entry.reversed"
	EventTypeApprovalDecided   = "ledger.approval.decided"
	EventTypePeriodCreated     = "ledger.period.created"
	EventTypePeriodCloseBegun  = "ledger.period.close_started"
	EventTypeCloseCancelled    = "ledger.period.close_cancelled"
	EventTypePeriodClosed      = "ledger.period.closed"
	EventTypePeriodReopened    = "ledger.period.reopened"
	EventTypeSnapshotGenerated = "ledger.snapshot.generated"
	EventTypeSnapshotRetired   = "ledger.snapshot.superseded"
)

// JournalEntryCreatedEvent is raised when a draft entry is created
type JournalEntryCreatedEvent struct {
	shared.BaseDomainEvent
	EntryType   EntryType `json:"entry_type"`
	Reference   string    `json:"reference"`
	PeriodCode  string    `json:"period_code"`
	Currency    string    `json:"currency"`
	TotalDebit  int64     `json:"total_debit"`
	TotalCredit int64     `json:"total_credit"`
	LineCount   int       `json:"line_count"`
}

// NewJournalEntryCreatedEvent creates a JournalEntryCreatedEvent
func NewJournalEntryCreatedEvent(e *JournalEntry, now time.Time) *JournalEntryCreatedEvent {
	return &JournalEntryCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryCreated, AggregateTypeJournalEntry, &e.TenantAggregateRoot, e.CreatedBy, now),
		EntryType:       e.EntryType,
		Reference:       e.Reference,
		PeriodCode:      e.PeriodCode,
		Currency:        e.Currency,
		TotalDebit:      e.TotalDebit,
		TotalCredit:     e.TotalCredit,
		LineCount:       len(e.Lines),
	}
}

// JournalEntrySubmittedEvent is raised when an entry enters approval
type JournalEntrySubmittedEvent struct {
	shared.BaseDomainEvent
	Reference string    `json:"reference"`
	RouteID   uuid.UUID `json:"route_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

// NewJournalEntrySubmittedEvent creates a JournalEntrySubmittedEvent
func NewJournalEntrySubmittedEvent(e *JournalEntry, actor uuid.UUID, now time.Time) *JournalEntrySubmittedEvent {
	ev := &JournalEntrySubmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntrySubmitted, AggregateTypeJournalEntry, &e.TenantAggregateRoot, actor, now),
		Reference:       e.Reference,
		Amount:          e.TotalDebit,
		Currency:        e.Currency,
	}
	if e.RouteID != nil {
		ev.RouteID = *e.RouteID
	}
	return ev
}

// JournalEntryApprovedEvent is raised when an entry's route is approved
type JournalEntryApprovedEvent struct {
	shared.BaseDomainEvent
	Reference string `json:"reference"`
}

// NewJournalEntryApprovedEvent creates a JournalEntryApprovedEvent
func NewJournalEntryApprovedEvent(e *JournalEntry, actor uuid.UUID, now time.Time) *JournalEntryApprovedEvent {
	return &JournalEntryApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryApproved, AggregateTypeJournalEntry, &e.TenantAggregateRoot, actor, now),
		Reference:       e.Reference,
	}
}

// JournalEntryRejectedEvent is raised when an entry's route is rejected
type JournalEntryRejectedEvent struct {
	shared.BaseDomainEvent
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// NewJournalEntryRejectedEvent creates a JournalEntryRejectedEvent
func NewJournalEntryRejectedEvent(e *JournalEntry, actor uuid.UUID, reason string, now time.Time) *JournalEntryRejectedEvent {
	return &JournalEntryRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryRejected, AggregateTypeJournalEntry, &e.TenantAggregateRoot, actor, now),
		Reference:       e.Reference,
		Reason:          reason,
	}
}

// JournalEntryPostedEvent is raised when an entry is written to the ledger
type JournalEntryPostedEvent struct {
	shared.BaseDomainEvent
	Reference    string     `json:"reference"`
	PeriodCode   string     `json:"period_code"`
	Sequence     int64      `json:"sequence"`
	SourceType   string     `json:"source_type"`
	SourceID     string     `json:"source_id"`
	TotalDebit   int64      `json:"total_debit"`
	TotalCredit  int64      `json:"total_credit"`
	Currency     string     `json:"currency"`
	ReversalOfID *uuid.UUID `json:"reversal_of_id,omitempty"`
}

// NewJournalEntryPostedEvent creates a JournalEntryPostedEvent
func NewJournalEntryPostedEvent(e *JournalEntry, actor uuid.UUID, now time.Time) *JournalEntryPostedEvent {
	return &JournalEntryPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryPosted, AggregateTypeJournalEntry, &e.TenantAggregateRoot, actor, now),
		Reference:       e.Reference,
		PeriodCode:      e.PeriodCode,
		Sequence:        e.PostingSequence,
		SourceType:      e.SourceType,
		SourceID:        e.SourceID,
		TotalDebit:      e.TotalDebit,
		TotalCredit:     e.TotalCredit,
		Currency:        e.Currency,
		ReversalOfID:    e.ReversalOfID,
	}
}

// JournalEntryReversedEvent is raised on the original when its reversal posts
type JournalEntryReversedEvent struct {
	shared.BaseDomainEvent
	Reference  string    `json:"reference"`
	ReversalID uuid.UUID `json:"reversal_id"`
	Reason     string    `json:"reason"`
}

// NewJournalEntryReversedEvent creates a JournalEntryReversedEvent
func NewJournalEntryReversedEvent(e *JournalEntry, reversalID, actor uuid.UUID, reason string, now time.Time) *JournalEntryReversedEvent {
	return &JournalEntryReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryReversed, AggregateTypeJournalEntry, &e.TenantAggregateRoot, actor, now),
		Reference:       e.Reference,
		ReversalID:      reversalID,
		Reason:          reason,
	}
}

// ApprovalDecisionRecordedEvent is raised for every approval decision
type ApprovalDecisionRecordedEvent struct {
	shared.BaseDomainEvent
	EntryID     uuid.UUID   `json:"entry_id"`
	Level       int         `json:"level"`
	Decision    Decision    `json:"decision"`
	Comments    string      `json:"comments,omitempty"`
	RouteStatus RouteStatus `json:"route_status"`
	NextLevel   int         `json:"next_level"`
}

// NewApprovalDecisionRecordedEvent creates an ApprovalDecisionRecordedEvent
func NewApprovalDecisionRecordedEvent(r *ApprovalRoute, rec ApprovalRecord, now time.Time) *ApprovalDecisionRecordedEvent {
	return &ApprovalDecisionRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeApprovalDecided, AggregateTypeApprovalRoute, &r.TenantAggregateRoot, rec.Actor, now),
		EntryID:         r.EntryID,
		Level:           rec.Level,
		Decision:        rec.Decision,
		Comments:        rec.Comments,
		RouteStatus:     r.Status,
		NextLevel:       r.CurrentLevel,
	}
}

// PeriodEvent is raised on every period lifecycle transition
type PeriodEvent struct {
	shared.BaseDomainEvent
	Code           string       `json:"code"`
	Status         PeriodStatus `json:"status"`
	StartDate      string       `json:"start_date"`
	EndDate        string       `json:"end_date"`
	Reason         string       `json:"reason,omitempty"`
	ReopenDeadline *time.Time   `json:"reopen_deadline,omitempty"`
	SnapshotID     *uuid.UUID   `json:"snapshot_id,omitempty"`
}

func newPeriodEvent(eventType string, p *Period, actor uuid.UUID, reason string, now time.Time) *PeriodEvent {
	return &PeriodEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypePeriod, &p.TenantAggregateRoot, actor, now),
		Code:            p.Code,
		Status:          p.Status,
		StartDate:       p.StartDate.Format(time.DateOnly),
		EndDate:         p.EndDate.Format(time.DateOnly),
		Reason:          reason,
		ReopenDeadline:  p.ReopenDeadline,
		SnapshotID:      p.SnapshotID,
	}
}

// NewPeriodCreatedEvent creates the period created event
func NewPeriodCreatedEvent(p *Period, actor uuid.UUID, now time.Time) *PeriodEvent {
	return newPeriodEvent(EventTypePeriodCreated, p, actor, "", now)
}

// NewPeriodCloseStartedEvent creates the close started event
func NewPeriodCloseStartedEvent(p *Period, actor uuid.UUID, now time.Time) *PeriodEvent {
	return newPeriodEvent(EventTypePeriodCloseBegun, p, actor, "", now)
}

// NewCloseCancelledEvent creates the close cancelled event
func NewCloseCancelledEvent(p *Period, actor uuid.UUID, reason string, now time.Time) *PeriodEvent {
	return newPeriodEvent(EventTypeCloseCancelled, p, actor, reason, now)
}

// NewPeriodClosedEvent creates the period closed event
func NewPeriodClosedEvent(p *Period, actor uuid.UUID, now time.Time) *PeriodEvent {
	return newPeriodEvent(EventTypePeriodClosed, p, actor, "", now)
}

// NewPeriodReopenedEvent creates the period reopened event
func NewPeriodReopenedEvent(p *Period, actor uuid.UUID, reason string, now time.Time) *PeriodEvent {
	return newPeriodEvent(EventTypePeriodReopened, p, actor, reason, now)
}

// SnapshotEvent is raised when a snapshot is sealed or superseded
type SnapshotEvent struct {
	shared.BaseDomainEvent
	PeriodCode   string `json:"period_code"`
	Revision     int    `json:"revision"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	TotalDebit   int64  `json:"total_debit"`
	TotalCredit  int64  `json:"total_credit"`
	Currency     string `json:"currency"`
	AccountCount int    `json:"account_count"`
}

// NewSnapshotEvent creates a snapshot event of the given type
func NewSnapshotEvent(eventType string, s *TBSnapshot, actor uuid.UUID, now time.Time) *SnapshotEvent {
	return &SnapshotEvent{
		BaseDomainEvent: shared.BaseDomainEvent{
			ID:             uuid.New(),
			Type:           eventType,
			Timestamp:      now,
			AggID:          s.ID,
			AggType:        AggregateTypeTBSnapshot,
			TenantIDValue:  s.TenantID,
			CompanyIDValue: s.CompanyID,
			ActorValue:     actor,
		},
		PeriodCode:   s.PeriodCode,
		Revision:     s.Revision,
		Hash:         s.Hash,
		PreviousHash: s.PreviousHash,
		TotalDebit:   s.TotalDebit,
		TotalCredit:  s.TotalCredit,
		Currency:     s.Currency,
		AccountCount: len(s.Lines),
	}
}
