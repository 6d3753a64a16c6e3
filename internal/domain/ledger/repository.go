package ledger

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryFilter selects journal entries within one scope
type EntryFilter struct {
	shared.Page
	Statuses   []EntryStatus
	EntryType  *EntryType
	PeriodCode string
	Reference  string
	CreatedBy  *uuid.UUID
	FromDate   *time.Time
	ToDate     *time.Time
	// SortBy names a column; unknown columns fall back to the reference
	SortBy     string
	SortOrder  string
}

// JournalEntryRepository persists journal entries. Lookups are always scoped
// to a tenant and company.
type JournalEntryRepository interface {
	// FindByID finds an entry, failing with ErrEntryNotFound
	FindByID(ctx context.Context, scope Scope, id uuid.UUID) (*JournalEntry, error)

	// FindByReference returns nil, nil when the reference is unused
	FindByReference(ctx context.Context, scope Scope, reference string) (*JournalEntry, error)

	// FindReversalOf returns the reversal entry of an original, or nil, nil
	FindReversalOf(ctx context.Context, scope Scope, originalID uuid.UUID) (*JournalEntry, error)

	// FindAll lists entries matching the filter and the total before paging
	FindAll(ctx context.Context, scope Scope, filter EntryFilter) ([]*JournalEntry, int64, error)

	// CountInPeriod counts entries of the period in any of the given statuses
	CountInPeriod(ctx context.Context, scope Scope, periodCode string, statuses ...EntryStatus) (int64, error)

	// Create inserts a new entry; a taken reference fails with ErrDuplicateReference
	Create(ctx context.Context, entry *JournalEntry) error

	// SaveWithLock updates an entry whose Version was already incremented by
	// the domain, requiring the stored version to be Version-1
	SaveWithLock(ctx context.Context, entry *JournalEntry) error
}

// ApprovalRouteRepository persists approval routes with their records.
type ApprovalRouteRepository interface {
	FindByID(ctx context.Context, scope Scope, id uuid.UUID) (*ApprovalRoute, error)
	FindByEntryID(ctx context.Context, scope Scope, entryID uuid.UUID) (*ApprovalRoute, error)
	FindPending(ctx context.Context, scope Scope, page shared.Page) ([]*ApprovalRoute, int64, error)
	Create(ctx context.Context, route *ApprovalRoute) error
	// SaveWithLock updates the route and appends records not yet stored
	SaveWithLock(ctx context.Context, route *ApprovalRoute) error
}

// LedgerLineRepository is the append-only store of posted lines.
type LedgerLineRepository interface {
	Append(ctx context.Context, lines []LedgerLine) error
	FindByEntry(ctx context.Context, scope Scope, entryID uuid.UUID) ([]LedgerLine, error)
	FindByPeriod(ctx context.Context, scope Scope, periodCode string) ([]LedgerLine, error)
	CountByEntry(ctx context.Context, scope Scope, entryID uuid.UUID) (int64, error)
}

// PostingRepository indexes postings by their idempotency key.
type PostingRepository interface {
	// FindBySource returns nil, nil when the source key was never posted
	FindBySource(ctx context.Context, scope Scope, sourceType, sourceID string) (*Posting, error)
	// Create inserts the posting; a taken source key fails with shared.ErrAlreadyExists
	Create(ctx context.Context, posting *Posting) error
}

// TBSnapshotRepository persists trial balance snapshots. Snapshots are never
// updated except to mark them superseded.
type TBSnapshotRepository interface {
	FindByID(ctx context.Context, scope Scope, id uuid.UUID) (*TBSnapshot, error)
	// FindActiveByPeriod returns nil, nil when the period has no active snapshot
	FindActiveByPeriod(ctx context.Context, scope Scope, periodCode string) (*TBSnapshot, error)
	// FindLatestActiveBefore returns the active snapshot of the latest period
	// starting before the given date, or nil, nil
	FindLatestActiveBefore(ctx context.Context, scope Scope, before time.Time) (*TBSnapshot, error)
	FindAllActive(ctx context.Context, scope Scope) ([]*TBSnapshot, error)
	FindByPeriod(ctx context.Context, scope Scope, periodCode string) ([]*TBSnapshot, error)
	MaxRevision(ctx context.Context, scope Scope, periodCode string) (int, error)
	Create(ctx context.Context, snapshot *TBSnapshot) error
	MarkSuperseded(ctx context.Context, snapshot *TBSnapshot) error
}

// PeriodRepository persists fiscal periods.
type PeriodRepository interface {
	// FindByCode fails with ErrPeriodNotFound
	FindByCode(ctx context.Context, scope Scope, code string) (*Period, error)
	FindByID(ctx context.Context, scope Scope, id uuid.UUID) (*Period, error)
	FindOverlapping(ctx context.Context, scope Scope, start, end time.Time) ([]*Period, error)
	FindAll(ctx context.Context, scope Scope) ([]*Period, error)
	Create(ctx context.Context, period *Period) error
	SaveWithLock(ctx context.Context, period *Period) error
}

// ScopeLister enumerates the tenant and company pairs that have books, for
// background jobs that sweep every scope.
type ScopeLister interface {
	ListScopes(ctx context.Context) ([]Scope, error)
}

// PeriodCalendar adapts a PeriodRepository to the FiscalCalendar port.
type PeriodCalendar struct {
	Periods PeriodRepository
}

// Status returns the status of the period
func (c PeriodCalendar) Status(ctx context.Context, scope Scope, periodCode string) (PeriodStatus, error) {
	p, err := c.Periods.FindByCode(ctx, scope, periodCode)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// Range returns the inclusive date range of the period
func (c PeriodCalendar) Range(ctx context.Context, scope Scope, periodCode string) (time.Time, time.Time, error) {
	p, err := c.Periods.FindByCode(ctx, scope, periodCode)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return p.StartDate, p.EndDate, nil
}
