package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"renal-risk-stream/internal/app"
)

var (
	showLimit    int
	showStreamID string
	showReadings bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent fusion logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:    showLimit,
			StreamID: showStreamID,
			Readings: showReadings,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of fusion logs to display")
	showCmd.Flags().StringVar(&showStreamID, "stream", "", "Only show logs of this stream id")
	showCmd.Flags().BoolVar(&showReadings, "readings", false, "Also list the sensor readings behind each log")
}
