package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMergeCmd creates the 'merge' subcommand, which rebuilds the
// deduplicated, time-sorted corpus from a source's batch files.
func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge a source's batches into one deduplicated corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, logger, cleanup, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := application.Merge(sourceName); err != nil {
				logger.Error("merge failed", zap.String("source", sourceName), zap.Error(err))
				return err
			}
			return nil
		},
	}
}
