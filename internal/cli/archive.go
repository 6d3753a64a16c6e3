package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/spf13/cobra"
)

// ErrArchiveDisabled is returned by archive commands when archiving is off
var ErrArchiveDisabled = errors.New("snapshot archive is not enabled")

func newArchiveCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived trial balance snapshots",
	}
	cmd.AddCommand(newArchiveCompareCommand(s), newArchivePresignCommand(s))
	return cmd
}

// findSnapshot returns revision of period, or the active one when revision is 0
func findSnapshot(ctx context.Context, d *Deps, scope ledger.Scope, period string, revision int) (*ledger.TBSnapshot, error) {
	snaps, err := d.Services.TrialBalance.History(ctx, scope, period)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if (revision == 0 && !snap.Superseded) || (revision != 0 && snap.Revision == revision) {
			return snap, nil
		}
	}
	return nil, fmt.Errorf("no snapshot for period %s revision %d", period, revision)
}

func newArchiveCompareCommand(s *session) *cobra.Command {
	var revision int
	cmd := &cobra.Command{
		Use:   "compare <period>",
		Short: "Check the archived copy of a snapshot against the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				if d.Archive == nil {
					return ErrArchiveDisabled
				}
				snap, err := findSnapshot(ctx, d, req.Scope(), args[0], revision)
				if err != nil {
					return err
				}
				if err := d.Archive.Compare(ctx, snap); err != nil {
					return err
				}
				result := map[string]any{
					"key":      d.Archive.Key(snap.Scope(), snap.PeriodCode, snap.Revision),
					"revision": snap.Revision,
					"hash":     snap.Hash,
					"match":    true,
				}
				return out.emit(result, func(w io.Writer) {
					row(w, "key", result["key"])
					row(w, "hash", snap.Hash)
					row(w, "match", true)
				})
			})
		},
	}
	cmd.Flags().IntVar(&revision, "revision", 0, "snapshot revision (default the active one)")
	return cmd
}

func newArchivePresignCommand(s *session) *cobra.Command {
	var revision int
	var expires time.Duration
	cmd := &cobra.Command{
		Use:   "presign <period>",
		Short: "Print a temporary download URL for an archived snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				if d.Archive == nil || d.Presigner == nil {
					return ErrArchiveDisabled
				}
				snap, err := findSnapshot(ctx, d, req.Scope(), args[0], revision)
				if err != nil {
					return err
				}
				url, err := d.Presigner.PresignDownload(ctx, d.Archive.Key(snap.Scope(), snap.PeriodCode, snap.Revision), expires)
				if err != nil {
					return err
				}
				return out.emit(map[string]string{"url": url}, func(w io.Writer) { row(w, url) })
			})
		},
	}
	cmd.Flags().IntVar(&revision, "revision", 0, "snapshot revision (default the active one)")
	cmd.Flags().DurationVar(&expires, "expires", 15*time.Minute, "link lifetime")
	return cmd
}
