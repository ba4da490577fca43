package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"renal-risk-stream/internal/app"
)

var (
	simulateStep  time.Duration
	simulateAlert bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play the scripted deterioration offline and print each assessment",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateStep < 0 {
			return errors.New("--step cannot be negative")
		}

		opts := app.SimulateOptions{
			Step:  simulateStep,
			Alert: simulateAlert,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().DurationVar(&simulateStep, "step", 0, "Virtual clock step (defaults to export.step)")
	simulateCmd.Flags().BoolVar(&simulateAlert, "alert", false, "Send the final assessment through the configured alert channels")
}
