package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/service"
	"renal-risk-stream/internal/storage"
	"renal-risk-stream/internal/stream"
)

// Baseline measurements of a healthy patient.
const (
	baselineUrea       = 32.5
	baselineECW        = 0.38
	baselinePhaseAngle = 5.8
	baselineHeartRate  = 72
	baselineSpO2       = 98
)

// Seed writes sample fusion logs: one baseline record, or every refreshed
// assessment of a scripted run with --scenario.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	var fusionStore storage.FusionLogStore
	if opts.DryRun {
		a.Logger.Warn().Msg("seed dry-run: nothing will be written to the database")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot seed")
		}
		if closeStore != nil {
			defer closeStore()
		}
		fusionStore = store
	}
	return a.seed(ctx, fusionStore, opts)
}

func (a *App) seed(ctx context.Context, store storage.FusionLogStore, opts SeedOptions) error {
	var snaps []stream.Snapshot
	if opts.Scenario {
		timeline, err := a.Timeline(a.Config.Export.Step)
		if err != nil {
			return err
		}
		snaps = timeline
	} else {
		snap, err := a.baseline(time.Now().UTC())
		if err != nil {
			return err
		}
		snaps = []stream.Snapshot{snap}
	}

	if store == nil {
		for _, snap := range snaps {
			a.Logger.Info().
				Int64("elapsed_ms", snap.ElapsedMS).
				Stringer("final_risk", snap.Fusion.FinalRisk).
				Str("summary", snap.Fusion.Summary).
				Msg("seed dry-run record")
		}
		return nil
	}

	dispatcher := service.New(service.Options{Timeout: a.Config.Dispatch.Timeout}, store, nil, nil, a.Logger)
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return err
		}
		dispatcher.Process(ctx, snap)
	}

	a.Logger.Info().Int("records", len(snaps)).Bool("scenario", opts.Scenario).Msg("seed complete")
	return nil
}

func (a *App) baseline(at time.Time) (stream.Snapshot, error) {
	profile, strategy, err := a.classification()
	if err != nil {
		return stream.Snapshot{}, err
	}

	snap := stream.Snapshot{StreamID: uuid.New(), GeneratedAt: at}
	for _, r := range []struct {
		dst    *risk.Reading
		signal risk.Signal
		value  float64
		pa     float64
	}{
		{&snap.Urea, risk.SignalUrea, baselineUrea, 0},
		{&snap.Fluid, risk.SignalFluid, baselineECW, baselinePhaseAngle},
		{&snap.HeartRate, risk.SignalHeartRate, baselineHeartRate, 0},
		{&snap.SpO2, risk.SignalSpO2, baselineSpO2, 0},
	} {
		reading, err := profile.Read(r.signal, r.value, r.pa, at)
		if err != nil {
			return stream.Snapshot{}, err
		}
		*r.dst = reading
	}

	snap.Fusion = strategy.Fuse(fusion.Inputs{
		Urea:      snap.Urea.Risk,
		Fluid:     snap.Fluid.Risk,
		HeartRate: snap.HeartRate.Risk,
		SpO2:      snap.SpO2.Risk,
	})
	return snap, nil
}
