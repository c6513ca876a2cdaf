// Package cmd holds the collectionctl commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecocycle/collection-service/internal/config"
	"github.com/ecocycle/collection-service/internal/infrastructure"
	"github.com/ecocycle/collection-service/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "collectionctl",
	Short: "Operate the collection service stores",
	Long: `collectionctl runs maintenance tasks against the store configured for
the collection service: index creation, outbox inspection and cleanup,
idempotency record cleanup and issuing actor tokens for testing.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// withBackend opens the configured store for the duration of fn. Logs go to
// stderr so command output stays parseable.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, backend *infrastructure.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig(cfg.Service.Name + "-ctl")
	logConfig.Level = logging.ParseLevel(cfg.Service.LogLevel)
	logConfig.Output = cmd.ErrOrStderr()
	logger := logging.New(logConfig)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := infrastructure.Open(ctx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer backend.Close(context.Background())

	return fn(ctx, backend)
}
