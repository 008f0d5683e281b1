package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cutoffLayout parses --until values. The offset pins the cutoff to the
// source's local publication timezone.
const cutoffLayout = "2006-01-02-0700"

// newBackfillCmd creates the 'backfill' subcommand, which scrapes backward
// from the source's minimum frontier to a cutoff date.
func newBackfillCmd() *cobra.Command {
	var until string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Harvest older articles back to a cutoff date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sourceName != "lorient" {
				return fmt.Errorf("source %q does not support backfill", sourceName)
			}
			cutoff, err := time.Parse(cutoffLayout, until+"+0200")
			if err != nil {
				return fmt.Errorf("invalid --until date %q (want YYYY-MM-DD): %w", until, err)
			}

			application, logger, cleanup, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := application.BackfillLorient(cmd.Context(), cutoff); err != nil {
				logger.Error("backfill failed", zap.String("source", sourceName), zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&until, "until", "", "cutoff date, format YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("until")

	return cmd
}
