// Package cmd defines the CLI commands for the newsharvest executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/app"
	"github.com/jswain/newsharvest/internal/config"
	"github.com/jswain/newsharvest/internal/logging"
)

var (
	cfgFile    string
	sourceName string
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsharvest",
		Short: "Incremental news article harvester",
		Long: `newsharvest incrementally collects news articles from supported
sources, discovering content published since the last run and writing
the extracted records as batch files that merge into one corpus.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults apply without one)")
	cmd.PersistentFlags().StringVar(&sourceName, "source", "lorient", "source to operate on (lorient or the961)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newMergeCmd())

	return cmd
}

// buildApp loads config, constructs the logger and wires the application.
// The returned cleanup flushes the logger.
func buildApp(cmd *cobra.Command) (*app.App, *zap.Logger, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.File)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	cleanup := func() {
		_ = logger.Sync()
	}
	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("init application: %w", err)
	}
	return application, logger, cleanup, nil
}

// Execute is the main entry point. Any top-level failure is logged, printed
// and converted to a nonzero exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
