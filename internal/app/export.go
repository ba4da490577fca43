package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"renal-risk-stream/internal/stream"
)

// Export renders the scenario trajectory as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.Step <= 0 {
		opts.Step = a.Config.Export.Step
	}

	snaps, err := a.Timeline(opts.Step)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	downsampled := downsampleSnapshots(snaps, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snaps)).Int("exported", len(downsampled)).Msg("exporting scenario timeline")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSnapshots(snaps []stream.Snapshot, max int) []stream.Snapshot {
	if max <= 0 || len(snaps) <= max {
		return snaps
	}
	if max == 1 {
		return snaps[len(snaps)-1:]
	}

	result := make([]stream.Snapshot, 0, max)
	step := float64(len(snaps)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snaps) {
			idx = len(snaps) - 1
		}
		result = append(result, snaps[idx])
	}
	return result
}

var csvHeader = []string{
	"elapsed_ms", "urea", "urea_risk", "ecw_tbw", "phase_angle", "fluid_risk",
	"heart_rate", "heart_rate_risk", "spo2", "spo2_risk", "final_risk", "score", "strategy",
}

func writeSnapshotsCSV(path string, snaps []stream.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, snap := range snaps {
		score := ""
		if snap.Fusion.Score != nil {
			score = strconv.FormatFloat(*snap.Fusion.Score, 'f', 2, 64)
		}
		record := []string{
			strconv.FormatInt(snap.ElapsedMS, 10),
			strconv.FormatFloat(snap.Urea.Value, 'f', 1, 64),
			snap.Urea.Risk.String(),
			strconv.FormatFloat(snap.Fluid.Value, 'f', 2, 64),
			strconv.FormatFloat(phaseAngle(snap), 'f', 1, 64),
			snap.Fluid.Risk.String(),
			strconv.FormatFloat(snap.HeartRate.Value, 'f', 0, 64),
			snap.HeartRate.Risk.String(),
			strconv.FormatFloat(snap.SpO2.Value, 'f', 0, 64),
			snap.SpO2.Risk.String(),
			snap.Fusion.FinalRisk.String(),
			score,
			snap.Fusion.Strategy,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSnapshotsPNG(path string, snaps []stream.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(snaps))
	urea := make([]float64, len(snaps))
	heartRate := make([]float64, len(snaps))
	spo2 := make([]float64, len(snaps))
	severity := make([]float64, len(snaps))

	for i, snap := range snaps {
		x[i] = snap.GeneratedAt
		urea[i] = snap.Urea.Value
		heartRate[i] = snap.HeartRate.Value
		spo2[i] = snap.SpO2.Value
		severity[i] = float64(snap.Fusion.FinalRisk.Severity())
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Urea (mg/dL) / HR (bpm) / SpO2 (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Fused severity (0 GREEN .. 4 RED)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
			Range: &chart.ContinuousRange{Min: 0, Max: 4},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Urea", XValues: x, YValues: urea},
			chart.TimeSeries{Name: "Heart rate", XValues: x, YValues: heartRate},
			chart.TimeSeries{Name: "SpO2", XValues: x, YValues: spo2},
			chart.TimeSeries{Name: "Fused risk", XValues: x, YValues: severity, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
