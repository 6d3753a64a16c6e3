// Package cli implements ledgerctl, the operator command line for periods,
// trial balances, the audit outbox and the chart of accounts.
package cli

import (
	"context"
	"fmt"
	"slices"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RootOptions holds the global flags
type RootOptions struct {
	ConfigPath string
	Format     string // text, json
	LogLevel   string
	Tenant     string
	Company    string
	Actor      string
}

// ValidFormats lists the accepted --format values
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds ledgerctl. load opens the ledger runtime for the
// commands that need it.
func NewRootCommand(load Loader) *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the ledger: periods, trial balances, audit outbox, accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "path to config.toml")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level written to stderr")
	pf.StringVar(&opts.Tenant, "tenant", "", "tenant id")
	pf.StringVar(&opts.Company, "company", "", "company id")
	pf.StringVar(&opts.Actor, "actor", "", "acting user id")

	s := &session{opts: opts, load: load}
	cmd.AddCommand(
		newPeriodCommand(s),
		newTrialBalanceCommand(s),
		newArchiveCommand(s),
		newOutboxCommand(s),
		newAccountCommand(s),
	)
	return cmd
}

// session carries the global options to every subcommand
type session struct {
	opts *RootOptions
	load Loader
}

// scopeRequest parses --tenant, --company and --actor
func (s *session) scopeRequest() (appledger.ScopeRequest, error) {
	var req appledger.ScopeRequest
	var err error
	if req.TenantID, err = parseID("tenant", s.opts.Tenant); err != nil {
		return req, err
	}
	if req.CompanyID, err = parseID("company", s.opts.Company); err != nil {
		return req, err
	}
	if req.ActorID, err = parseID("actor", s.opts.Actor); err != nil {
		return req, err
	}
	return req, nil
}

func parseID(flag, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", flag)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return id, nil
}

// run loads the runtime, tags ctx with the operator fields and calls fn
func (s *session) run(cmd *cobra.Command, fn func(ctx context.Context, d *Deps, out *printer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := s.load(ctx, s.opts)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	ctx = logger.WithCorrelationID(ctx, "ledgerctl-"+uuid.NewString())
	ctx = logger.WithContext(ctx, d.Logger)
	if s.opts.Actor != "" {
		ctx = logger.WithActor(ctx, s.opts.Actor)
	}
	return fn(ctx, d, &printer{format: s.opts.Format, w: cmd.OutOrStdout()})
}

// runScoped is run for commands acting inside one tenant and company
func (s *session) runScoped(cmd *cobra.Command, fn func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error) error {
	req, err := s.scopeRequest()
	if err != nil {
		return err
	}
	return s.run(cmd, func(ctx context.Context, d *Deps, out *printer) error {
		return fn(logger.WithScope(ctx, req.Scope()), d, req, out)
	})
}
