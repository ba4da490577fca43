package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"renal-risk-stream/internal/service"
	"renal-risk-stream/internal/simulator"
	"renal-risk-stream/internal/stream"
)

// timelineStart anchors offline runs so their output is reproducible.
var timelineStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Timeline plays one scripted run on a virtual clock advancing by step and
// returns the initial snapshot plus every refreshed one.
func (a *App) Timeline(step time.Duration) ([]stream.Snapshot, error) {
	if step <= 0 {
		return nil, errors.New("step must be greater than zero")
	}
	opts, err := a.publisherOptions()
	if err != nil {
		return nil, err
	}
	sim, err := opts.NewSimulator()
	if err != nil {
		return nil, err
	}
	sess, err := stream.NewSession(uuid.New(), timelineStart, sim, opts.Profile, opts.Strategy, opts.Cadence)
	if err != nil {
		return nil, err
	}

	end := simulator.Duration(sim.Frames())
	out := []stream.Snapshot{sess.Snapshot()}
	for elapsed := step; elapsed <= end; elapsed += step {
		snap, refreshed, err := sess.Advance(elapsed)
		if err != nil {
			return nil, err
		}
		if refreshed {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Simulate prints the classified timeline of one scripted run and
// optionally pushes the terminal assessment through the alert channels.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	return a.simulate(ctx, opts, os.Stdout)
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions, out io.Writer) error {
	if opts.Step <= 0 {
		opts.Step = a.Config.Export.Step
	}
	snaps, err := a.Timeline(opts.Step)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Elapsed\tUrea\tECW/TBW\tPA\tHR\tSpO2\tFinal\tScore\tSummary")
	for _, snap := range snaps {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%.1f\t%s\t%s\t%s\t%s\t%s\n",
			time.Duration(snap.ElapsedMS)*time.Millisecond,
			cell(snap.Urea.Value, 1, snap.Urea.Risk.String()),
			cell(snap.Fluid.Value, 2, snap.Fluid.Risk.String()),
			phaseAngle(snap),
			cell(snap.HeartRate.Value, 0, snap.HeartRate.Risk.String()),
			cell(snap.SpO2.Value, 0, snap.SpO2.Risk.String()),
			snap.Fusion.FinalRisk,
			formatScore(snap.Fusion.Score),
			snap.Fusion.Summary,
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if !opts.Alert {
		return nil
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}
	final := snaps[len(snaps)-1]
	dispatcher := service.New(service.Options{Timeout: a.Config.Dispatch.Timeout}, nil, nil, a.newEscalator(notifier), a.Logger)
	dispatcher.Process(ctx, final)
	return nil
}

func cell(v float64, places int, level string) string {
	return fmt.Sprintf("%.*f %s", places, v, level)
}

func phaseAngle(snap stream.Snapshot) float64 {
	if snap.Fluid.PhaseAngle == nil {
		return 0
	}
	return *snap.Fluid.PhaseAngle
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}
