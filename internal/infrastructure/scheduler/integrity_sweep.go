package scheduler

import (
	"context"
	"fmt"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"go.uber.org/zap"
)

// SnapshotVerifier re-verifies the active snapshots of one scope
type SnapshotVerifier interface {
	VerifyAll(ctx context.Context, scope ledger.Scope) ([]appledger.VerificationResult, error)
}

// SweepReport summarizes one integrity sweep
type SweepReport struct {
	Scopes   int
	Verified int
	Invalid  []SweepFailure
}

// SweepFailure is a snapshot that did not verify
type SweepFailure struct {
	Scope      ledger.Scope
	SnapshotID string
	PeriodCode string
	Revision   int
	Error      string
}

// IntegritySweep re-verifies every active trial balance snapshot of every
// scope. A mismatch does not stop the sweep; it is logged and the run fails.
type IntegritySweep struct {
	scopes   ledger.ScopeLister
	verifier SnapshotVerifier
	logger   *zap.Logger
}

// NewIntegritySweep creates the sweep task
func NewIntegritySweep(scopes ledger.ScopeLister, verifier SnapshotVerifier, logger *zap.Logger) *IntegritySweep {
	return &IntegritySweep{scopes: scopes, verifier: verifier, logger: logger}
}

// Name implements Task
func (s *IntegritySweep) Name() string {
	return "integrity_sweep"
}

// Run implements Task
func (s *IntegritySweep) Run(ctx context.Context) error {
	report, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if len(report.Invalid) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrIntegrityViolation, len(report.Invalid), report.Verified)
	}
	return nil
}

// Sweep verifies every scope and returns the report. Only a failure to list
// scopes or a cancelled context is returned as an error.
func (s *IntegritySweep) Sweep(ctx context.Context) (*SweepReport, error) {
	scopes, err := s.scopes.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}

	report := &SweepReport{Scopes: len(scopes)}
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		results, err := s.verifier.VerifyAll(ctx, scope)
		for _, r := range results {
			report.Verified++
			if r.Valid {
				continue
			}
			report.Invalid = append(report.Invalid, SweepFailure{
				Scope:      scope,
				SnapshotID: r.SnapshotID.String(),
				PeriodCode: r.PeriodCode,
				Revision:   r.Revision,
				Error:      r.Error,
			})
			s.logger.Error("Trial balance snapshot failed verification",
				zap.String("scope", scope.Key()),
				zap.String("snapshot_id", r.SnapshotID.String()),
				zap.String("period", r.PeriodCode),
				zap.Int("revision", r.Revision),
				zap.String("error", r.Error),
			)
		}
		if err != nil && len(results) == 0 {
			report.Invalid = append(report.Invalid, SweepFailure{Scope: scope, Error: err.Error()})
			s.logger.Error("Integrity sweep could not verify scope",
				zap.String("scope", scope.Key()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Integrity sweep finished",
		zap.Int("scopes", report.Scopes),
		zap.Int("verified", report.Verified),
		zap.Int("invalid", len(report.Invalid)),
	)
	return report, nil
}

// Ensure IntegritySweep implements Task
var _ Task = (*IntegritySweep)(nil)
