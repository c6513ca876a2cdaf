package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecocycle/collection-service/internal/infrastructure"
)

var purgeOlderThan time.Duration

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and clean the transactional outbox",
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the relay backlog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, backend *infrastructure.Backend) error {
			stats, err := backend.Outbox.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read outbox stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\ndead-lettered: %d\n", stats.Pending, stats.DeadLettered)
			return nil
		})
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Give dead-lettered events a fresh set of relay attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, backend *infrastructure.Backend) error {
			requeued, err := backend.Outbox.RequeueDeadLettered(ctx)
			if err != nil {
				return fmt.Errorf("requeue outbox: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued: %d\n", requeued)
			return nil
		})
	},
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete published events older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		return withBackend(cmd, func(ctx context.Context, backend *infrastructure.Backend) error {
			deleted, err := backend.Outbox.DeletePublishedBefore(ctx, time.Now().UTC().Add(-purgeOlderThan))
			if err != nil {
				return fmt.Errorf("purge outbox: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted: %d\n", deleted)
			return nil
		})
	},
}

func init() {
	outboxPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 7*24*time.Hour, "age of published events to delete")

	outboxCmd.AddCommand(outboxStatsCmd)
	outboxCmd.AddCommand(outboxRequeueCmd)
	outboxCmd.AddCommand(outboxPurgeCmd)
	rootCmd.AddCommand(outboxCmd)
}
