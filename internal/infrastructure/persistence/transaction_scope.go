package persistence

import (
	"context"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to fn shares one database transaction, including
// the outbox the domain events are recorded to.
type GormTransactionScope struct {
	db       *gorm.DB
	clock    shared.Clock
	sequence ledger.SequencePort
}

// TransactionScopeOption configures a GormTransactionScope
type TransactionScopeOption func(*GormTransactionScope)

// WithClock sets the clock used for outbox timestamps
func WithClock(clock shared.Clock) TransactionScopeOption {
	return func(s *GormTransactionScope) {
		s.clock = clock
	}
}

// WithSequence hands out posting numbers from an external counter instead of
// the ledger_sequences table
func WithSequence(seq ledger.SequencePort) TransactionScopeOption {
	return func(s *GormTransactionScope) {
		s.sequence = seq
	}
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, opts ...TransactionScopeOption) *GormTransactionScope {
	s := &GormTransactionScope{db: db, clock: shared.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, scope: s})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx    *gorm.DB
	scope *GormTransactionScope
}

// Entries returns the journal entry repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Entries() ledger.JournalEntryRepository {
	return NewGormJournalEntryRepository(r.tx)
}

// Routes returns the approval route repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Routes() ledger.ApprovalRouteRepository {
	return NewGormApprovalRouteRepository(r.tx)
}

// LedgerLines returns the ledger line repository scoped to the current transaction.
func (r *gormTransactionalRepositories) LedgerLines() ledger.LedgerLineRepository {
	return NewGormLedgerLineRepository(r.tx)
}

// Postings returns the posting repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Postings() ledger.PostingRepository {
	return NewGormPostingRepository(r.tx)
}

// Snapshots returns the snapshot repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Snapshots() ledger.TBSnapshotRepository {
	return NewGormTBSnapshotRepository(r.tx)
}

// Periods returns the period repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Periods() ledger.PeriodRepository {
	return NewGormPeriodRepository(r.tx)
}

// Events returns the outbox recorder of the current transaction.
func (r *gormTransactionalRepositories) Events() shared.EventRecorder {
	return event.NewOutboxRecorder(r.tx, r.scope.clock)
}

// Sequence returns the posting sequence. The table-backed default takes part
// in the current transaction.
func (r *gormTransactionalRepositories) Sequence() ledger.SequencePort {
	if r.scope.sequence != nil {
		return r.scope.sequence
	}
	return NewGormSequence(r.tx, r.scope.clock)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
