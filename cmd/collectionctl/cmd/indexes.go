package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecocycle/collection-service/internal/infrastructure"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Manage store indexes",
}

var indexesEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the indexes and tables the service relies on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, backend *infrastructure.Backend) error {
			if err := backend.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexes ensured (%s)\n", backend.Driver)
			return nil
		})
	},
}

func init() {
	indexesCmd.AddCommand(indexesEnsureCmd)
	rootCmd.AddCommand(indexesCmd)
}
