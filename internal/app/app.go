package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"renal-risk-stream/internal/alerting"
	"renal-risk-stream/internal/cache"
	"renal-risk-stream/internal/config"
	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/risk"
	"renal-risk-stream/internal/server"
	"renal-risk-stream/internal/service"
	"renal-risk-stream/internal/simulator"
	"renal-risk-stream/internal/storage"
	"renal-risk-stream/internal/stream"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) classification() (risk.Profile, fusion.Strategy, error) {
	profile, err := risk.ProfileByName(a.Config.Risk.Profile)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := fusion.ByName(a.Config.Fusion.Strategy)
	if err != nil {
		return nil, nil, err
	}
	return profile, strategy, nil
}

func (a *App) newSimulator() (*simulator.Simulator, error) {
	opts := simulator.Options{
		PhaseAngleMin: a.Config.Simulation.PhaseAngleMin,
		PhaseAngleMax: a.Config.Simulation.PhaseAngleMax,
	}
	if a.Config.Simulation.Seed != 0 {
		opts.Source = simulator.NewSource(a.Config.Simulation.Seed)
	}
	return simulator.New(opts)
}

func (a *App) publisherOptions() (stream.Options, error) {
	profile, strategy, err := a.classification()
	if err != nil {
		return stream.Options{}, err
	}
	return stream.Options{
		TickInterval: a.Config.Stream.TickInterval,
		Cadence: stream.Cadence{
			Fast: a.Config.Stream.FastRefresh,
			Slow: a.Config.Stream.SlowRefresh,
		},
		Profile:      profile,
		Strategy:     strategy,
		NewSimulator: a.newSimulator,
	}, nil
}

func (a *App) newNotifier() alerting.Notifier {
	var channels alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
			}
		case "log":
			channels = append(channels, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	default:
		return channels
	}
}

func (a *App) newEscalator(notifier alerting.Notifier) *alerting.Escalator {
	return alerting.NewEscalator(notifier, a.Config.AlertMinLevel(), a.Config.Alerting.Cooldown, nil)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) openCache(ctx context.Context) (*cache.SnapshotCache, func(), error) {
	if a.Config.Redis.Addr == "" {
		return nil, nil, nil
	}

	c := cache.New(cache.NewClient(a.Config.Redis), cache.OptionsFromConfig(a.Config.Redis))
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	closer := func() {
		if err := c.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return c, closer, nil
}

// Serve runs the HTTP feed until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshots, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	if closeCache != nil {
		defer closeCache()
	}

	// typed nils must not reach the dispatcher's interfaces
	var (
		fusionStore storage.FusionLogStore
		snapCache   service.SnapshotCache
		latest      server.LatestReader
		alerter     service.Alerter
	)
	if store != nil {
		fusionStore = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if snapshots != nil {
		snapCache = snapshots
		latest = snapshots
	} else {
		a.Logger.Warn().Msg("redis.addr not configured; snapshot cache disabled")
	}
	if a.Config.Alerting.Enabled {
		if notifier := a.newNotifier(); notifier != nil {
			alerter = a.newEscalator(notifier)
		} else {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
	}

	dispatcher := service.New(service.Options{
		QueueSize: a.Config.Dispatch.QueueSize,
		Timeout:   a.Config.Dispatch.Timeout,
	}, fusionStore, snapCache, alerter, a.Logger)

	pubOpts, err := a.publisherOptions()
	if err != nil {
		return err
	}
	publisher := stream.NewPublisher(pubOpts, dispatcher, a.Logger)

	srv := server.New(server.Options{AllowedOrigins: a.Config.Server.AllowedOrigins}, publisher, latest, a.Logger)
	httpServer := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		_ = dispatcher.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", httpServer.Addr).
			Str("profile", pubOpts.Profile.Name()).
			Str("strategy", pubOpts.Strategy.Name()).
			Msg("starting risk stream server")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		cancel()
		<-dispatchDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("server terminated with error")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-dispatchDone

	a.Logger.Info().Uint64("dropped", dispatcher.Dropped()).Msg("risk stream server stopped")
	return nil
}

// ExportOptions hold parameters for exporting the scenario trajectory.
type ExportOptions struct {
	PNGPath   string
	CSVPath   string
	MaxPoints int
	Step      time.Duration
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	StreamID string
	// Readings also lists the sensor readings behind each log.
	Readings bool
}

// SeedOptions configure the seed command.
type SeedOptions struct {
	// Scenario persists every refreshed assessment of one scripted run
	// instead of the single baseline record.
	Scenario bool
	DryRun   bool
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Step  time.Duration
	Alert bool
}
