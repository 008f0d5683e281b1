package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newHarvestCmd creates the 'harvest' subcommand, which scrapes everything
// published since the source's forward frontier.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Harvest articles published since the last run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, logger, cleanup, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			switch sourceName {
			case "lorient":
				err = application.HarvestLorient(cmd.Context())
			case "the961":
				err = application.HarvestThe961(cmd.Context())
			default:
				err = fmt.Errorf("unknown source %q", sourceName)
			}
			if err != nil {
				logger.Error("harvest failed", zap.String("source", sourceName), zap.Error(err))
			}
			return err
		},
	}
}
