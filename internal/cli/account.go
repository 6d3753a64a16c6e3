package cli

import (
	"context"
	"io"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/spf13/cobra"
)

func newAccountCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Maintain the chart of accounts",
	}
	cmd.AddCommand(newAccountUpsertCommand(s))
	return cmd
}

func newAccountUpsertCommand(s *session) *cobra.Command {
	var name string
	var inactive, header bool
	cmd := &cobra.Command{
		Use:   "upsert <code>",
		Short: "Create or update an account and drop cached lookups of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runScoped(cmd, func(ctx context.Context, d *Deps, req appledger.ScopeRequest, out *printer) error {
				info := ledger.AccountInfo{
					Code:     args[0],
					Name:     name,
					Exists:   true,
					Active:   !inactive,
					Postable: !header,
				}
				if err := d.Accounts.Upsert(ctx, req.Scope(), info, d.Clock.Now()); err != nil {
					return err
				}
				if d.Cache != nil {
					if err := d.Cache.Invalidate(ctx, req.Scope(), info.Code); err != nil {
						return err
					}
				}
				return out.emit(info, func(w io.Writer) {
					row(w, "account", info.Code)
					row(w, "name", info.Name)
					row(w, "active", info.Active)
					row(w, "postable", info.Postable)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account name")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "reject new postings to the account")
	cmd.Flags().BoolVar(&header, "header", false, "summary account that takes no postings")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
