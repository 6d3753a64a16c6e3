package ledger

import (
	"context"
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

// TrialBalanceEngine seals period trial balances into hash-chained snapshots
// and re-verifies them against the ledger.
type TrialBalanceEngine struct {
	deps   Dependencies
	logger *zap.Logger
}

// Generate seals the trial balance of a period that is pending close.
// Closing a period through PeriodCloseManager generates the snapshot itself;
// this entry point serves a close that stopped between the two steps.
func (e *TrialBalanceEngine) Generate(ctx context.Context, req PeriodRequest) (*ledger.TBSnapshot, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "trial_balance_engine", "generate")
	defer span.End()
	telemetry.SetAttributes(span, "period", req.PeriodCode)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := e.deps.Clock.Now()

	var snapshot *ledger.TBSnapshot
	err := e.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		period, err := repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		if period.Status != ledger.PeriodStatusPendingClose {
			return shared.ErrInvalidState.WithDetails(map[string]string{
				"period_status": string(period.Status),
				"operation":     "generate_snapshot",
			})
		}
		snapshot, err = e.generateInTx(ctx, repos, period, req.ActorID, now)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, e.integrityAware(ctx, "generate", err)
	}
	e.archive(ctx, snapshot)
	return snapshot, nil
}

// generateInTx aggregates the posted lines of the period and stores the
// sealed snapshot as the next revision.
func (e *TrialBalanceEngine) generateInTx(ctx context.Context, repos TransactionalRepositories, period *ledger.Period, actor uuid.UUID, now time.Time) (*ledger.TBSnapshot, error) {
	scope := period.Scope()
	var (
		snapshot *ledger.TBSnapshot
		err      error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(telemetry.OperationGenerateSnapshot, scope.TenantID), func(c context.Context) {
		snapshot, err = e.buildSnapshot(c, repos, period, actor, now)
	})
	if err != nil {
		return nil, err
	}
	if err := repos.Snapshots().Create(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := repos.Events().Record(ctx, ledger.NewSnapshotEvent(ledger.EventTypeSnapshotGenerated, snapshot, actor, now)); err != nil {
		return nil, err
	}
	logger.For(ctx, e.logger).Info("trial balance snapshot generated",
		zap.String("period", period.Code),
		zap.Int("revision", snapshot.Revision),
		zap.String("hash", snapshot.Hash),
		zap.String("previous_hash", snapshot.PreviousHash),
		zap.Int("accounts", len(snapshot.Lines)),
	)
	return snapshot, nil
}

func (e *TrialBalanceEngine) buildSnapshot(ctx context.Context, repos TransactionalRepositories, period *ledger.Period, actor uuid.UUID, now time.Time) (*ledger.TBSnapshot, error) {
	scope := period.Scope()
	active, err := repos.Snapshots().FindActiveByPeriod(ctx, scope, period.Code)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ledger.ErrSnapshotAlreadyExists.WithDetails(map[string]string{
			"period":      period.Code,
			"snapshot_id": active.ID.String(),
		})
	}
	rows, err := repos.LedgerLines().FindByPeriod(ctx, scope, period.Code)
	if err != nil {
		return nil, err
	}
	previousHash := ledger.GenesisHash
	prior, err := repos.Snapshots().FindLatestActiveBefore(ctx, scope, period.StartDate)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		previousHash = prior.Hash
	}
	revision, err := repos.Snapshots().MaxRevision(ctx, scope, period.Code)
	if err != nil {
		return nil, err
	}
	return ledger.NewTBSnapshot(scope, period.Code, e.deps.Policy.FunctionalCurrency, revision+1, rows, previousHash, actor, now)
}

// Verify recomputes a snapshot from the current ledger rows and re-checks
// its link to the previous period. A mismatch is critical.
func (e *TrialBalanceEngine) Verify(ctx context.Context, req SnapshotRequest) (*VerificationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "trial_balance_engine", "verify")
	defer span.End()
	telemetry.SetAttributes(span, "snapshot_id", req.SnapshotID.String())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var (
		result  VerificationResult
		verr    error
		started = time.Now()
	)
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(telemetry.OperationVerifySnapshot, req.TenantID), func(c context.Context) {
		verr = e.deps.Scope.Execute(c, func(repos TransactionalRepositories) error {
			snapshot, err := repos.Snapshots().FindByID(c, req.Scope(), req.SnapshotID)
			if err != nil {
				return err
			}
			result = VerificationResult{
				SnapshotID: snapshot.ID,
				PeriodCode: snapshot.PeriodCode,
				Revision:   snapshot.Revision,
				Hash:       snapshot.Hash,
			}
			return e.verifyInTx(c, repos, snapshot)
		})
	})
	logger.For(ctx, e.logger).Debug("snapshot verification finished", zap.Duration("elapsed", time.Since(started)))

	if verr != nil {
		telemetry.RecordError(span, verr)
		if result.SnapshotID == uuid.Nil {
			return nil, txError(verr)
		}
		result.Error = verr.Error()
		e.deps.Metrics.RecordSnapshotVerified(ctx, false)
		return &result, e.integrityAware(ctx, "verify", verr)
	}
	result.Valid = true
	e.deps.Metrics.RecordSnapshotVerified(ctx, true)
	return &result, nil
}

// VerifyAll re-verifies every active snapshot of a scope, oldest period
// first. It returns all results and the first failure.
func (e *TrialBalanceEngine) VerifyAll(ctx context.Context, scope ledger.Scope) ([]VerificationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "trial_balance_engine", "verify_all")
	defer span.End()

	var snapshots []*ledger.TBSnapshot
	err := e.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		snapshots, err = repos.Snapshots().FindAllActive(ctx, scope)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}

	results := make([]VerificationResult, 0, len(snapshots))
	var first error
	for _, s := range snapshots {
		res, err := e.Verify(ctx, SnapshotRequest{
			ScopeRequest: ScopeRequest{TenantID: scope.TenantID, CompanyID: scope.CompanyID, ActorID: s.GeneratedBy},
			SnapshotID:   s.ID,
		})
		if res != nil {
			results = append(results, *res)
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return results, first
}

func (e *TrialBalanceEngine) verifyInTx(ctx context.Context, repos TransactionalRepositories, snapshot *ledger.TBSnapshot) error {
	scope := snapshot.Scope()
	rows, err := repos.LedgerLines().FindByPeriod(ctx, scope, snapshot.PeriodCode)
	if err != nil {
		return err
	}
	if err := snapshot.VerifyAgainst(rows); err != nil {
		return err
	}
	return e.verifyChain(ctx, repos, snapshot)
}

// verifyChain accepts the stored previous hash when it is the hash of a
// snapshot of an earlier period generated before this one. The genesis hash
// is accepted only if no earlier snapshot was active at generation time.
func (e *TrialBalanceEngine) verifyChain(ctx context.Context, repos TransactionalRepositories, snapshot *ledger.TBSnapshot) error {
	scope := snapshot.Scope()
	period, err := repos.Periods().FindByCode(ctx, scope, snapshot.PeriodCode)
	if err != nil {
		return err
	}
	periods, err := repos.Periods().FindAll(ctx, scope)
	if err != nil {
		return err
	}

	at := snapshot.GeneratedAt
	var (
		candidates []*ledger.TBSnapshot
		expected   = ledger.GenesisHash
		expectedAt time.Time
	)
	for _, p := range periods {
		if !p.StartDate.Before(period.StartDate) {
			continue
		}
		earlier, err := repos.Snapshots().FindByPeriod(ctx, scope, p.Code)
		if err != nil {
			return err
		}
		for _, s := range earlier {
			if s.GeneratedAt.After(at) {
				continue
			}
			candidates = append(candidates, s)
			activeThen := !s.Superseded || (s.SupersededAt != nil && s.SupersededAt.After(at))
			if activeThen && (expectedAt.IsZero() || p.StartDate.After(expectedAt)) {
				expected, expectedAt = s.Hash, p.StartDate
			}
		}
	}
	if snapshot.PreviousHash == expected {
		return nil
	}
	for _, c := range candidates {
		if c.Hash == snapshot.PreviousHash {
			return nil
		}
	}
	return snapshot.VerifyChain(expected)
}

// Variance diffs the active snapshot of a period against the active snapshot
// of the latest earlier period.
func (e *TrialBalanceEngine) Variance(ctx context.Context, req PeriodRequest) (*VarianceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "trial_balance_engine", "variance")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()

	var resp VarianceResponse
	err := e.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		period, err := repos.Periods().FindByCode(ctx, scope, req.PeriodCode)
		if err != nil {
			return err
		}
		current, err := repos.Snapshots().FindActiveByPeriod(ctx, scope, period.Code)
		if err != nil {
			return err
		}
		if current == nil {
			return ledger.ErrSnapshotNotFound.WithDetail("period", period.Code)
		}
		prior, err := repos.Snapshots().FindLatestActiveBefore(ctx, scope, period.StartDate)
		if err != nil {
			return err
		}
		resp = VarianceResponse{PeriodCode: period.Code, Currency: current.Currency}
		var priorLines []ledger.TrialBalanceLine
		if prior != nil {
			resp.PriorPeriodCode = prior.PeriodCode
			priorLines = prior.Lines
		}
		resp.Lines = ledger.ComputeVariance(current.Lines, priorLines)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, txError(err)
	}
	return &resp, nil
}

// GetSnapshot returns one snapshot
func (e *TrialBalanceEngine) GetSnapshot(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.TBSnapshot, error) {
	var s *ledger.TBSnapshot
	err := e.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		s, err = repos.Snapshots().FindByID(ctx, scope, id)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	return s, nil
}

// History returns every revision of a period's snapshot, oldest first
func (e *TrialBalanceEngine) History(ctx context.Context, scope ledger.Scope, periodCode string) ([]*ledger.TBSnapshot, error) {
	var out []*ledger.TBSnapshot
	err := e.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		out, err = repos.Snapshots().FindByPeriod(ctx, scope, periodCode)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

// integrityAware logs and counts critical failures before returning them
func (e *TrialBalanceEngine) integrityAware(ctx context.Context, operation string, err error) error {
	err = txError(err)
	if shared.IsCritical(err) {
		check := operation
		if de, ok := shared.AsDomainError(err); ok {
			if src := de.Details["source"]; src != "" {
				check = src
			}
			logger.For(ctx, e.logger).Error("trial balance integrity failure",
				zap.String("operation", operation),
				zap.String("code", de.Code),
				zap.Any("details", de.Details),
			)
		}
		e.deps.Metrics.RecordIntegrityFailure(ctx, check)
		return err
	}
	return e.deps.rejected(ctx, operation, err)
}

func (e *TrialBalanceEngine) archive(ctx context.Context, snapshot *ledger.TBSnapshot) {
	if e.deps.Archiver == nil || snapshot == nil {
		return
	}
	if err := e.deps.Archiver.Archive(ctx, snapshot); err != nil {
		logger.For(ctx, e.logger).Warn("snapshot archive failed",
			zap.String("snapshot_id", snapshot.ID.String()),
			zap.String("period", snapshot.PeriodCode),
			zap.String("revision", strconv.Itoa(snapshot.Revision)),
			zap.Error(err),
		)
	}
}
