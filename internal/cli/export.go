package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"renal-risk-stream/internal/app"
)

var (
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportStep      time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the scripted deterioration timeline as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportStep < 0 {
			return fmt.Errorf("--step cannot be negative")
		}

		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			Step:      exportStep,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().DurationVar(&exportStep, "step", 0, "Virtual clock step (defaults to config)")
}
