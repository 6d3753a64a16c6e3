package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newPeriodCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Create, close and reopen fiscal periods",
	}
	cmd.AddCommand(
		newPeriodCreateCommand(s),
		newPeriodListCommand(s),
		newPeriodTaskCommand(s),
		newPeriodCloseCommand(s),
		newPeriodCancelCloseCommand(s),
		newPeriodReopenCommand(s),
	)
	return cmd
}

func newPeriodCreateCommand(s *session) *cobra.Command {
	var start, end string
	var checklist []string
	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Open a new fiscal period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := time.Parse(dateLayout, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			endDate, err := time.Parse(dateLayout, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				p, err := d.Services.Periods.CreatePeriod(ctx, appledger.CreatePeriodRequest{
					ScopeRequest: req,
					Code:         args[0],
					StartDate:    startDate,
					EndDate:      endDate,
					Checklist:    checklist,
				})
				if err != nil {
					return err
				}
				return out.emit(p, func(w io.Writer) { printPeriod(w, p) })
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&checklist, "checklist", nil, "close checklist tasks (default from config)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newPeriodListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the periods of a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				periods, err := d.Services.Periods.List(ctx, req.Scope())
				if err != nil {
					return err
				}
				return out.emit(periods, func(w io.Writer) {
					row(w, "CODE", "START", "END", "STATUS", "VERSION")
					for _, p := range periods {
						row(w, p.Code, p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout), p.Status, p.Version)
					}
				})
			})
		},
	}
}

func newPeriodTaskCommand(s *session) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "task <code> <task>",
		Short: "Mark a close checklist task done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				p, err := d.Services.Periods.CompleteTask(ctx, appledger.CompleteTaskRequest{
					PeriodActionRequest: appledger.PeriodActionRequest{ScopeRequest: req, PeriodCode: args[0], ExpectedVersion: version},
					Task:                args[1],
				})
				if err != nil {
					return err
				}
				return out.emit(p, func(w io.Writer) { printPeriod(w, p) })
			})
		},
	}
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the period is at this version (0 skips the check)")
	return cmd
}

func newPeriodCloseCommand(s *session) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "close <code>",
		Short: "Close a period and seal its trial balance snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				resp, err := d.Services.Periods.StartClose(ctx, appledger.PeriodActionRequest{
					ScopeRequest: req, PeriodCode: args[0], ExpectedVersion: version,
				})
				if err != nil {
					return err
				}
				return out.emit(resp, func(w io.Writer) {
					printPeriod(w, resp.Period)
					if resp.Snapshot != nil {
						row(w, "snapshot", resp.Snapshot.ID)
						row(w, "revision", resp.Snapshot.Revision)
						row(w, "hash", resp.Snapshot.Hash)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the period is at this version (0 skips the check)")
	return cmd
}

func newPeriodCancelCloseCommand(s *session) *cobra.Command {
	var version int
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel-close <code>",
		Short: "Return a period stuck in PENDING_CLOSE to OPEN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				p, err := d.Services.Periods.CancelClose(ctx, appledger.CancelCloseRequest{
					PeriodActionRequest: appledger.PeriodActionRequest{ScopeRequest: req, PeriodCode: args[0], ExpectedVersion: version},
					Reason:              reason,
				})
				if err != nil {
					return err
				}
				return out.emit(p, func(w io.Writer) { printPeriod(w, p) })
			})
		},
	}
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the period is at this version (0 skips the check)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the close is abandoned")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newPeriodReopenCommand(s *session) *cobra.Command {
	var version int
	var reason string
	cmd := &cobra.Command{
		Use:   "reopen <code>",
		Short: "Reopen a closed period within the reopen window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				p, err := d.Services.Periods.Reopen(ctx, appledger.ReopenRequest{
					PeriodActionRequest: appledger.PeriodActionRequest{ScopeRequest: req, PeriodCode: args[0], ExpectedVersion: version},
					Reason:              reason,
				})
				if err != nil {
					return err
				}
				return out.emit(p, func(w io.Writer) { printPeriod(w, p) })
			})
		},
	}
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the period is at this version (0 skips the check)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the period is reopened")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func printPeriod(w io.Writer, p *ledger.Period) {
	row(w, "period", p.Code)
	row(w, "status", p.Status)
	row(w, "range", p.StartDate.Format(dateLayout)+" .. "+p.EndDate.Format(dateLayout))
	row(w, "version", p.Version)
	var pending []string
	for _, t := range p.Checklist {
		if !t.Done {
			pending = append(pending, t.Name)
		}
	}
	if len(pending) > 0 {
		row(w, "pending tasks", strings.Join(pending, ", "))
	}
	if p.ReopenDeadline != nil {
		row(w, "reopen until", p.ReopenDeadline.Format(time.RFC3339))
	}
	if p.ReopenCount > 0 {
		row(w, "reopened", fmt.Sprintf("%d (%s)", p.ReopenCount, p.LastReopenReason))
	}
}
