// Package main is the entry point for the weather announcer.
//
// It loads configuration, opens the settings store, connects to Home
// Assistant over REST and websocket, arms the announcement triggers and
// serves the control API and webhook surface until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"homeweather/internal/api/handlers"
	"homeweather/internal/config"
	"homeweather/internal/core"
	"homeweather/internal/external"
	"homeweather/internal/forecasts"
	"homeweather/internal/notifications/tts"
	"homeweather/internal/scheduler"
	"homeweather/internal/settings"
	"homeweather/internal/triggers"
	"homeweather/internal/types"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("home weather announcer starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"timezone", time.Local.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Settings store.
	store, closeStore, err := settings.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	settingsSvc := settings.NewService(store, typedLogger.With("component", "settings"))
	if _, err := settingsSvc.Load(ctx); err != nil {
		return err
	}

	// Host connections.
	hass := external.NewHomeAssistantClient(
		&http.Client{Timeout: cfg.HomeAssistant.RequestTimeout},
		external.HomeAssistantConfig{
			BaseURL: cfg.HomeAssistant.URL,
			Token:   cfg.HomeAssistant.Token,
			Logger:  logger.With("component", "home_assistant"),
		},
	)
	wsURL := cfg.HomeAssistant.WSURL
	if wsURL == "" {
		if wsURL, err = external.WebsocketURL(cfg.HomeAssistant.URL); err != nil {
			return fmt.Errorf("deriving websocket url: %w", err)
		}
	}
	events := external.NewEventStream(external.EventStreamConfig{
		URL:    wsURL,
		Token:  cfg.HomeAssistant.Token,
		Logger: logger.With("component", "event_stream"),
	})

	// Metrics.
	backend, err := newMetricsBackend(ctx, cfg.Metrics, typedLogger.With("component", "metrics"))
	if err != nil {
		return err
	}

	// Domain wiring.
	clock := types.RealClock{}
	coordinator := forecasts.NewCoordinator(hass, settingsSvc.Current,
		typedLogger.With("component", "forecasts"), clock, cfg.Weather.MinRefreshSpacing)
	cron := scheduler.NewCronScheduler(time.Local, typedLogger.With("component", "scheduler"))
	dispatcher := tts.NewDispatcher(hass, backend.announcements, typedLogger.With("component", "dispatcher"),
		tts.WithInterSinkDelay(cfg.Announce.InterSinkDelay),
		tts.WithDefaults(cfg.Announce.DefaultVolume, cfg.Announce.DefaultPreroll),
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = backend.requests
	srv.MetricsHandler = backend.handler

	engine, err := triggers.NewEngine(triggers.Deps{
		Config:     settingsSvc.Current,
		Snapshot:   coordinator.Snapshot,
		Refresher:  coordinator,
		Scheduler:  cron,
		States:     events,
		Reader:     hass,
		Webhooks:   srv.Webhooks,
		Dispatcher: dispatcher,
		Metrics:    backend.announcements,
		Logger:     typedLogger.With("component", "triggers"),
		Clock:      clock,
	})
	if err != nil {
		return fmt.Errorf("creating trigger engine: %w", err)
	}

	srv.HealthProbes = []core.HealthProbe{hass, events, store}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) {
			r.Route("/config", handlers.NewSettingsHandler(settingsSvc, engine, logger).RegisterRoutes)
		},
		handlers.NewAnnounceHandler(engine, coordinator, settingsSvc.Current, logger).RegisterRoutes,
	)
	srv.MountRoutes()
	httpServer := srv.HTTPServer(":" + cfg.Server.Port)

	// Prime the snapshot so the first announcement has data.
	if _, err := coordinator.Refresh(ctx); err != nil {
		logger.Warn("initial weather refresh failed", "error", err)
	}

	cron.Start()
	if err := engine.Start(ctx); err != nil {
		logger.Warn("trigger engine started with failures", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return events.Run(gctx)
	})
	g.Go(func() error {
		return coordinator.Run(gctx, cfg.Weather.RefreshInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		return shutdown(srv, httpServer, engine, cron, typedLogger)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("announcer stopped cleanly")
	return nil
}

// shutdown releases triggers first so no new firings start, then drains the
// HTTP server and the scheduler.
func shutdown(srv *core.Server, httpServer *http.Server, engine *triggers.Engine, cron *scheduler.CronScheduler, logger types.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := engine.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping trigger engine: %w", err))
	}
	if err := srv.Shutdown(ctx, httpServer); err != nil {
		errs = append(errs, err)
	}
	if err := cron.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping scheduler: %w", err))
	}

	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("announcements still in flight at shutdown")
	}
	return errors.Join(errs...)
}
