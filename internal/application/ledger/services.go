package ledger

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SnapshotArchiver copies sealed snapshots to long-term storage. Archiving is
// best effort: the database row is the source of truth.
type SnapshotArchiver interface {
	Archive(ctx context.Context, snapshot *ledger.TBSnapshot) error
}

// Dependencies wires the ledger services
type Dependencies struct {
	Scope    TransactionScope
	Accounts ledger.AccountDirectory
	// Calendar overrides the period table as the source of period status
	Calendar ledger.FiscalCalendar
	Roles    ledger.PolicyPort
	Policies ledger.PolicyTable
	Policy   Policy
	Clock    shared.Clock
	Logger   *zap.Logger
	Metrics  *telemetry.LedgerMetrics
	Archiver SnapshotArchiver
}

func (d Dependencies) validate() error {
	switch {
	case d.Scope == nil:
		return errors.New("ledger: transaction scope is required")
	case d.Accounts == nil:
		return errors.New("ledger: account directory is required")
	case d.Roles == nil:
		return errors.New("ledger: policy port is required")
	}
	if err := d.Policies.Validate(); err != nil {
		return err
	}
	return d.Policy.Validate()
}

// Services groups the ledger application services. They share one set of
// dependencies and call each other inside a single transaction where an
// operation spans components.
type Services struct {
	Journal      *JournalService
	Approvals    *ApprovalRouter
	Posting      *PostingEngine
	TrialBalance *TrialBalanceEngine
	Periods      *PeriodCloseManager
}

// NewServices builds the ledger services
func NewServices(deps Dependencies) (*Services, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	posting := &PostingEngine{deps: deps, logger: deps.Logger.Named("posting")}
	tb := &TrialBalanceEngine{deps: deps, logger: deps.Logger.Named("trial_balance")}
	journal := &JournalService{deps: deps, logger: deps.Logger.Named("journal"), posting: posting}
	router := &ApprovalRouter{deps: deps, logger: deps.Logger.Named("approval"), journal: journal}
	periods := &PeriodCloseManager{deps: deps, logger: deps.Logger.Named("period"), tb: tb}

	return &Services{
		Journal:      journal,
		Approvals:    router,
		Posting:      posting,
		TrialBalance: tb,
		Periods:      periods,
	}, nil
}

// calendar returns the configured calendar, or one backed by the period
// table of the current transaction.
func (d Dependencies) calendar(repos TransactionalRepositories) ledger.FiscalCalendar {
	if d.Calendar != nil {
		return d.Calendar
	}
	return ledger.PeriodCalendar{Periods: repos.Periods()}
}

// txError keeps domain errors as they are and reports anything else as a
// rolled-back transaction.
func txError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsDomainError(err); ok {
		return err
	}
	return ledger.ErrTransactionFailed.Wrap(err)
}

// recordEvents moves the pending events of an aggregate to the outbox of the
// current transaction.
func recordEvents(ctx context.Context, repos TransactionalRepositories, agg shared.AggregateRoot) error {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}
	if err := repos.Events().Record(ctx, events...); err != nil {
		return err
	}
	agg.ClearDomainEvents()
	return nil
}

// rejected counts a domain failure for the operation and passes it through
func (d Dependencies) rejected(ctx context.Context, operation string, err error) error {
	if de, ok := shared.AsDomainError(err); ok {
		d.Metrics.RecordRejection(ctx, operation, de.Code)
	}
	return err
}
