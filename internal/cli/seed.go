package cli

import (
	"github.com/spf13/cobra"

	"renal-risk-stream/internal/app"
)

var (
	seedScenario bool
	seedDryRun   bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write sample fusion logs to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SeedOptions{
			Scenario: seedScenario,
			DryRun:   seedDryRun,
		}

		return getApp().Seed(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedScenario, "scenario", false, "Persist every refreshed assessment of one scripted run")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Run without writing to storage")
}
