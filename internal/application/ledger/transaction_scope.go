package ledger

import (
	"context"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
)

// TransactionScope provides transactional access to the ledger repositories.
// Everything done through the repositories handed to fn commits or rolls back
// together, including the outbox events recorded alongside.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
// All repositories returned share the same underlying transaction.
//
// Aggregate boundary notes:
//   - Entries, Routes and Periods are saved with compare-and-swap on version.
//   - LedgerLines and Postings are append-only; only the posting engine writes them.
//   - Snapshots are written once and afterwards only marked superseded.
//   - Sequence hands out posting numbers; a database-backed sequence rolls back
//     with the transaction, a Redis-backed one may leave gaps.
type TransactionalRepositories interface {
	Entries() ledger.JournalEntryRepository
	Routes() ledger.ApprovalRouteRepository
	LedgerLines() ledger.LedgerLineRepository
	Postings() ledger.PostingRepository
	Snapshots() ledger.TBSnapshotRepository
	Periods() ledger.PeriodRepository
	Events() shared.EventRecorder
	Sequence() ledger.SequencePort
}
