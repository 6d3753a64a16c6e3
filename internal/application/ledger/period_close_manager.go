package ledger

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PeriodCloseManager drives fiscal periods through checklist, close and reopen.
type PeriodCloseManager struct {
	deps   Dependencies
	logger *zap.Logger
	tb     *TrialBalanceEngine
}

// CreatePeriod defines a new OPEN period. Codes are unique per scope and
// date ranges may not overlap.
func (m *PeriodCloseManager) CreatePeriod(ctx context.Context, req CreatePeriodRequest) (*ledger.Period, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "period_close_manager", "create_period")
	defer span.End()
	telemetry.SetAttributes(span, "period", req.Code)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	checklist := req.Checklist
	if len(checklist) == 0 {
		checklist = m.deps.Policy.DefaultChecklist
	}
	period, err := ledger.NewPeriod(scope, req.Code, req.StartDate, req.EndDate, checklist, req.ActorID, m.deps.Clock.Now())
	if err != nil {
		return nil, m.deps.rejected(ctx, "create_period", err)
	}

	err = m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.Periods().FindByCode(ctx, scope, period.Code)
		switch {
		case err == nil:
			return shared.ErrAlreadyExists.WithDetails(map[string]string{"period": existing.Code})
		case !errors.Is(err, ledger.ErrPeriodNotFound):
			return err
		}
		overlapping, err := repos.Periods().FindOverlapping(ctx, scope, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return overlapping[0].OverlapError(period.Code)
		}
		if err := repos.Periods().Create(ctx, period); err != nil {
			return err
		}
		return recordEvents(ctx, repos, period)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, m.deps.rejected(ctx, "create_period", txError(err))
	}
	m.deps.Metrics.RecordPeriodTransition(ctx, string(period.Status))
	logger.For(ctx, m.logger).Info("period created",
		zap.String("period", period.Code),
		zap.Time("start", period.StartDate),
		zap.Time("end", period.EndDate),
		zap.Int("checklist", len(period.Checklist)),
	)
	return period, nil
}

// CompleteTask ticks one checklist task
func (m *PeriodCloseManager) CompleteTask(ctx context.Context, req CompleteTaskRequest) (*ledger.Period, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := m.deps.Clock.Now()

	var period *ledger.Period
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		period, err = repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		if err := period.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		before := period.Version
		if err := period.CompleteTask(req.Task, req.ActorID, now); err != nil {
			return err
		}
		if period.Version == before {
			return nil
		}
		return repos.Periods().SaveWithLock(ctx, period)
	})
	if err != nil {
		return nil, m.deps.rejected(ctx, "complete_task", txError(err))
	}
	logger.For(ctx, m.logger).Debug("checklist task completed", zap.String("period", req.PeriodCode), zap.String("task", req.Task))
	return period, nil
}

// StartClose closes a period in two steps. The first moves it to
// PENDING_CLOSE once the checklist is done and no entry awaits approval or
// posting. The second seals the trial balance and marks the period CLOSED.
// When the second step fails the period stays PENDING_CLOSE and the call
// can be retried.
func (m *PeriodCloseManager) StartClose(ctx context.Context, req PeriodActionRequest) (*CloseResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "period_close_manager", "start_close")
	defer span.End()
	telemetry.SetAttributes(span, "period", req.PeriodCode)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()

	var (
		resp CloseResponse
		err  error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(telemetry.OperationClosePeriod, req.TenantID), func(c context.Context) {
		if err = m.beginClose(c, req); err != nil {
			return
		}
		m.deps.Metrics.RecordPeriodTransition(c, string(ledger.PeriodStatusPendingClose))
		resp, err = m.completeClose(c, scope, req.PeriodCode, req.ActorID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.For(ctx, m.logger).Warn("period close failed",
			zap.String("period", req.PeriodCode),
			zap.Error(err),
		)
		if shared.IsCritical(err) {
			m.deps.Metrics.RecordIntegrityFailure(ctx, "close")
			return nil, err
		}
		return nil, m.deps.rejected(ctx, "start_close", err)
	}

	m.deps.Metrics.RecordPeriodTransition(ctx, string(ledger.PeriodStatusClosed))
	logger.For(ctx, m.logger).Info("period closed",
		zap.String("period", resp.Period.Code),
		zap.String("snapshot_id", resp.Snapshot.ID.String()),
		zap.Int("revision", resp.Snapshot.Revision),
		zap.Timep("reopen_deadline", resp.Period.ReopenDeadline),
	)
	m.tb.archive(ctx, resp.Snapshot)
	return &resp, nil
}

func (m *PeriodCloseManager) beginClose(ctx context.Context, req PeriodActionRequest) error {
	scope := req.Scope()
	now := m.deps.Clock.Now()
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		period, err := repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		if err := period.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		before := period.Version
		if err := period.BeginClose(req.ActorID, now); err != nil {
			return err
		}
		if err := m.checkNoPending(ctx, repos, period); err != nil {
			return err
		}
		if period.Version == before {
			return nil
		}
		if err := repos.Periods().SaveWithLock(ctx, period); err != nil {
			return err
		}
		return recordEvents(ctx, repos, period)
	})
	return txError(err)
}

// completeClose seals the snapshot of a PENDING_CLOSE period. Gating and
// concurrency failures come back as they are; only a failure while sealing
// is reported as ErrTBSnapshotFailed.
func (m *PeriodCloseManager) completeClose(ctx context.Context, scope ledger.Scope, code string, actor uuid.UUID) (CloseResponse, error) {
	now := m.deps.Clock.Now()
	var (
		resp    CloseResponse
		sealing bool
	)
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		period, err := repos.Periods().FindByCode(ctx, scope, code)
		if err != nil {
			return err
		}
		if period.Status != ledger.PeriodStatusPendingClose {
			return shared.ErrInvalidState.WithDetails(map[string]string{
				"period_status": string(period.Status),
				"operation":     "complete_close",
			})
		}
		if err := m.checkNoPending(ctx, repos, period); err != nil {
			return err
		}
		sealing = true
		snapshot, err := m.sealedSnapshot(ctx, repos, period, actor, now)
		if err != nil {
			return err
		}
		if err := period.CompleteClose(snapshot.ID, actor, m.deps.Policy.ReopenWindow, now); err != nil {
			return err
		}
		if err := repos.Periods().SaveWithLock(ctx, period); err != nil {
			return err
		}
		if err := recordEvents(ctx, repos, period); err != nil {
			return err
		}
		resp = CloseResponse{Period: period, Snapshot: snapshot}
		return nil
	})
	switch {
	case err == nil:
		return resp, nil
	case !sealing, errors.Is(err, shared.ErrVersionConflict):
		return CloseResponse{}, txError(err)
	default:
		return CloseResponse{}, ledger.ErrTBSnapshotFailed.WithDetail("period", code).Wrap(err)
	}
}

// CancelClose returns a PENDING_CLOSE period to OPEN, for instance when a
// draft slipped in while the close was under way. A snapshot generated for
// the pending close is superseded.
func (m *PeriodCloseManager) CancelClose(ctx context.Context, req CancelCloseRequest) (*ledger.Period, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "period_close_manager", "cancel_close")
	defer span.End()
	telemetry.SetAttributes(span, "period", req.PeriodCode)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := m.deps.Clock.Now()

	var period *ledger.Period
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		period, err = repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		if err := period.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		if err := period.CancelClose(req.ActorID, req.Reason, now); err != nil {
			return err
		}
		draft, err := repos.Snapshots().FindActiveByPeriod(ctx, scope, period.Code)
		if err != nil {
			return err
		}
		if draft != nil {
			draft.Supersede(now)
			if err := repos.Snapshots().MarkSuperseded(ctx, draft); err != nil {
				return err
			}
			if err := repos.Events().Record(ctx, ledger.NewSnapshotEvent(ledger.EventTypeSnapshotRetired, draft, req.ActorID, now)); err != nil {
				return err
			}
		}
		if err := repos.Periods().SaveWithLock(ctx, period); err != nil {
			return err
		}
		return recordEvents(ctx, repos, period)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, m.deps.rejected(ctx, "cancel_close", txError(err))
	}

	m.deps.Metrics.RecordPeriodTransition(ctx, string(ledger.PeriodStatusOpen))
	logger.For(ctx, m.logger).Info("period close cancelled",
		zap.String("period", period.Code),
		zap.String("actor", req.ActorID.String()),
		zap.String("reason", req.Reason),
	)
	return period, nil
}

// sealedSnapshot generates the period's snapshot, or reuses one generated by
// an earlier attempt once it verifies against the ledger.
func (m *PeriodCloseManager) sealedSnapshot(ctx context.Context, repos TransactionalRepositories, period *ledger.Period, actor uuid.UUID, now time.Time) (*ledger.TBSnapshot, error) {
	active, err := repos.Snapshots().FindActiveByPeriod(ctx, period.Scope(), period.Code)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return m.tb.generateInTx(ctx, repos, period, actor, now)
	}
	rows, err := repos.LedgerLines().FindByPeriod(ctx, period.Scope(), period.Code)
	if err != nil {
		return nil, err
	}
	if err := active.VerifyAgainst(rows); err != nil {
		return nil, err
	}
	return active, nil
}

func (m *PeriodCloseManager) checkNoPending(ctx context.Context, repos TransactionalRepositories, period *ledger.Period) error {
	n, err := repos.Entries().CountInPeriod(ctx, period.Scope(), period.Code, ledger.PendingEntryStatuses()...)
	if err != nil {
		return err
	}
	if n > 0 {
		return ledger.ErrPendingEntries.WithDetails(map[string]string{
			"period":  period.Code,
			"pending": strconv.FormatInt(n, 10),
		})
	}
	return nil
}

// Reopen reopens a CLOSED period inside its reopen window. The active
// snapshot is superseded and the period returns to OPEN with a fresh
// checklist.
func (m *PeriodCloseManager) Reopen(ctx context.Context, req ReopenRequest) (*ledger.Period, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "period_close_manager", "reopen")
	defer span.End()
	telemetry.SetAttributes(span, "period", req.PeriodCode)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := m.deps.Clock.Now()

	var (
		period  *ledger.Period
		retired *ledger.TBSnapshot
	)
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		period, err = repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		if err := period.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		if err := period.Reopen(req.ActorID, req.Reason, now); err != nil {
			return err
		}
		retired, err = repos.Snapshots().FindActiveByPeriod(ctx, scope, period.Code)
		if err != nil {
			return err
		}
		if retired != nil {
			retired.Supersede(now)
			if err := repos.Snapshots().MarkSuperseded(ctx, retired); err != nil {
				return err
			}
			if err := repos.Events().Record(ctx, ledger.NewSnapshotEvent(ledger.EventTypeSnapshotRetired, retired, req.ActorID, now)); err != nil {
				return err
			}
		}
		if err := repos.Periods().SaveWithLock(ctx, period); err != nil {
			return err
		}
		if err := period.ResumeOpen(now); err != nil {
			return err
		}
		if err := repos.Periods().SaveWithLock(ctx, period); err != nil {
			return err
		}
		return recordEvents(ctx, repos, period)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, m.deps.rejected(ctx, "reopen", txError(err))
	}

	m.deps.Metrics.RecordPeriodTransition(ctx, string(ledger.PeriodStatusReopened))
	fields := []zap.Field{
		zap.String("period", period.Code),
		zap.String("actor", req.ActorID.String()),
		zap.String("reason", req.Reason),
		zap.Int("reopen_count", period.ReopenCount),
	}
	if retired != nil {
		fields = append(fields, zap.String("superseded_snapshot", retired.ID.String()))
	}
	logger.For(ctx, m.logger).Warn("period reopened", fields...)
	return period, nil
}

// Get returns one period
func (m *PeriodCloseManager) Get(ctx context.Context, scope ledger.Scope, code string) (*ledger.Period, error) {
	var period *ledger.Period
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		period, err = repos.Periods().FindByCode(ctx, scope, code)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	return period, nil
}

// List returns all periods of a scope ordered by start date
func (m *PeriodCloseManager) List(ctx context.Context, scope ledger.Scope) ([]*ledger.Period, error) {
	var periods []*ledger.Period
	err := m.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		periods, err = repos.Periods().FindAll(ctx, scope)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })
	return periods, nil
}
