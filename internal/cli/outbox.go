package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newOutboxCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drive audit event delivery",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Count outbox entries per status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return s.run(cmd, func(ctx context.Context, d *Deps, out *printer) error {
					stats, err := d.Outbox.Stats(ctx)
					if err != nil {
						return err
					}
					counts := make(map[string]int64, len(stats))
					for status, n := range stats {
						counts[string(status)] = n
					}
					return out.emit(counts, func(w io.Writer) {
						keys := make([]string, 0, len(counts))
						for k := range counts {
							keys = append(keys, k)
						}
						sort.Strings(keys)
						row(w, "STATUS", "COUNT")
						for _, k := range keys {
							row(w, k, counts[k])
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "retry-dead <entry-id>",
			Short: "Move a DEAD entry back to PENDING",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("entry id: %w", err)
				}
				return s.run(cmd, func(ctx context.Context, d *Deps, out *printer) error {
					if err := d.Outbox.RetryDead(ctx, id); err != nil {
						return err
					}
					return out.emit(map[string]string{"requeued": id.String()}, func(w io.Writer) {
						row(w, "requeued", id)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "dispatch",
			Short: "Deliver one batch of pending entries now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return s.run(cmd, func(ctx context.Context, d *Deps, out *printer) error {
					res, err := d.Outbox.DispatchOnce(ctx)
					if err != nil {
						return err
					}
					return out.emit(res, func(w io.Writer) {
						row(w, "claimed", res.Claimed)
						row(w, "sent", res.Sent)
						row(w, "failed", res.Failed)
						row(w, "dead", res.Dead)
					})
				})
			},
		},
	)
	return cmd
}
