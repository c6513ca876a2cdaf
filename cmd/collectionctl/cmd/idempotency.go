package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecocycle/collection-service/internal/infrastructure"
)

var idempotencyOlderThan time.Duration

var idempotencyCmd = &cobra.Command{
	Use:   "idempotency",
	Short: "Maintain idempotency keys and processed message records",
}

var idempotencyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete idempotency keys and processed messages older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if idempotencyOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		return withBackend(cmd, func(ctx context.Context, backend *infrastructure.Backend) error {
			before := time.Now().UTC().Add(-idempotencyOlderThan)
			keys, err := backend.IdempotencyKeys.Clean(ctx, before)
			if err != nil {
				return fmt.Errorf("clean idempotency keys: %w", err)
			}
			messages, err := backend.ProcessedMessages.Clean(ctx, before)
			if err != nil {
				return fmt.Errorf("clean processed messages: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keys deleted: %d\nmessages deleted: %d\n", keys, messages)
			return nil
		})
	},
}

func init() {
	idempotencyPurgeCmd.Flags().DurationVar(&idempotencyOlderThan, "older-than", 24*time.Hour, "age of records to delete")

	idempotencyCmd.AddCommand(idempotencyPurgeCmd)
	rootCmd.AddCommand(idempotencyCmd)
}
