package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ErrSnapshotInvalid is returned when verification finds a tampered snapshot
var ErrSnapshotInvalid = errors.New("trial balance snapshot failed verification")

func newTrialBalanceCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tb",
		Short: "Generate, verify and compare trial balance snapshots",
	}
	cmd.AddCommand(
		newTBGenerateCommand(s),
		newTBVerifyCommand(s),
		newTBVarianceCommand(s),
		newTBHistoryCommand(s),
	)
	return cmd
}

func newTBGenerateCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <period>",
		Short: "Seal a trial balance snapshot for a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				snap, err := d.Services.TrialBalance.Generate(ctx, appledger.PeriodRequest{ScopeRequest: req, PeriodCode: args[0]})
				if err != nil {
					return err
				}
				return out.emit(snap, func(w io.Writer) { printSnapshot(w, snap) })
			})
		},
	}
}

func newTBVerifyCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [snapshot-id]",
		Short: "Recompute snapshot hashes; all active snapshots without an id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uuid.UUID
			if len(args) == 1 {
				var err error
				if id, err = uuid.Parse(args[0]); err != nil {
					return fmt.Errorf("snapshot id: %w", err)
				}
			}
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				var results []appledger.VerificationResult
				if id != uuid.Nil {
					r, err := d.Services.TrialBalance.Verify(ctx, appledger.SnapshotRequest{ScopeRequest: req, SnapshotID: id})
					if err != nil {
						return err
					}
					results = append(results, *r)
				} else {
					var err error
					if results, err = d.Services.TrialBalance.VerifyAll(ctx, req.Scope()); err != nil {
						return err
					}
				}
				if err := out.emit(results, func(w io.Writer) {
					row(w, "SNAPSHOT", "PERIOD", "REV", "VALID", "ERROR")
					for _, r := range results {
						row(w, r.SnapshotID, r.PeriodCode, r.Revision, r.Valid, r.Error)
					}
				}); err != nil {
					return err
				}
				for _, r := range results {
					if !r.Valid {
						return ErrSnapshotInvalid
					}
				}
				return nil
			})
		},
	}
}

func newTBVarianceCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "variance <period>",
		Short: "Per-account change against the prior period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				v, err := d.Services.TrialBalance.Variance(ctx, appledger.PeriodRequest{ScopeRequest: req, PeriodCode: args[0]})
				if err != nil {
					return err
				}
				return out.emit(v, func(w io.Writer) {
					row(w, "ACCOUNT", "DEBIT", "CREDIT", "PRIOR DEBIT", "PRIOR CREDIT", "NET CHANGE")
					for _, l := range v.Lines {
						row(w, l.AccountCode,
							ledger.FormatMinor(l.CurrentDebit, v.Currency),
							ledger.FormatMinor(l.CurrentCredit, v.Currency),
							ledger.FormatMinor(l.PriorDebit, v.Currency),
							ledger.FormatMinor(l.PriorCredit, v.Currency),
							ledger.FormatMinor(l.NetChange, v.Currency),
						)
					}
				})
			})
		},
	}
}

func newTBHistoryCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "history <period>",
		Short: "List every snapshot revision of a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				snaps, err := d.Services.TrialBalance.History(ctx, req.Scope(), args[0])
				if err != nil {
					return err
				}
				return out.emit(snaps, func(w io.Writer) {
					row(w, "REV", "SNAPSHOT", "SUPERSEDED", "HASH")
					for _, snap := range snaps {
						row(w, snap.Revision, snap.ID, snap.Superseded, snap.Hash)
					}
				})
			})
		},
	}
}

func printSnapshot(w io.Writer, s *ledger.TBSnapshot) {
	row(w, "snapshot", s.ID)
	row(w, "period", s.PeriodCode)
	row(w, "revision", s.Revision)
	row(w, "total debit", ledger.FormatMinor(s.TotalDebit, s.Currency))
	row(w, "total credit", ledger.FormatMinor(s.TotalCredit, s.Currency))
	row(w, "hash", s.Hash)
	row(w, "previous hash", s.PreviousHash)
}
