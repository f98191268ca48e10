package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker.gpmetro.org/internal/app"
	"tracker.gpmetro.org/internal/appconf"
	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/config"
	"tracker.gpmetro.org/internal/gtfs"
	"tracker.gpmetro.org/internal/logging"
	"tracker.gpmetro.org/internal/metrics"
	"tracker.gpmetro.org/internal/notify"
	"tracker.gpmetro.org/internal/restapi"
	"tracker.gpmetro.org/internal/rt"
	"tracker.gpmetro.org/internal/store"
)

const poolStatsInterval = 15 * time.Second

// BuildApplication assembles the process from its configuration: the store,
// the static schedule manager, the live feed poller, and the shared
// observability pieces. Nothing is started yet.
func BuildApplication(cfg *config.Config) (*app.Application, error) {
	env := appconf.EnvFromString(cfg.Server.Env)

	level := slog.LevelInfo
	if env == appconf.Development {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(os.Stdout, level)

	timezone, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading feed timezone %q: %w", cfg.Feed.Timezone, err)
	}

	cleanupAt, err := gtfs.ParseTimeOfDay(cfg.Refresh.CleanupTimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("parsing cleanup time of day: %w", err)
	}

	st, err := store.New(cfg.Redis.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	m := metrics.NewWithLogger(logger)
	m.StartPoolStatsCollector(st, poolStatsInterval)

	clk := clock.RealClock{}

	manager := gtfs.NewManager(gtfs.ManagerOptions{
		Fetcher: gtfs.NewFetcher(cfg.Feed.StaticURL,
			cfg.Feed.AuthHeaderKey, cfg.Feed.AuthHeaderValue, logger),
		Store: st,
		Materializer: &gtfs.Materializer{
			WindowDays:    cfg.Refresh.WindowDays,
			RetentionDays: cfg.Refresh.RetentionDays,
			Location:      timezone,
		},
		Disambiguator: gtfs.NewDisambiguator(cfg.StopNameOverrides, cfg.HubDestinations, logger),
		Notifier:      notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Token, logger),
		Clock:         clk,
		Metrics:       m,
		Logger:        logger,
		Interval:      time.Duration(cfg.Refresh.StaticIntervalSeconds) * time.Second,
		CleanupAt:     cleanupAt,
	})

	poller := rt.NewPoller(rt.PollerOptions{
		Store:               st,
		Clock:               clk,
		Metrics:             m,
		Logger:              logger,
		Timezone:            timezone,
		TripUpdatesURL:      cfg.Feed.TripUpdatesURL,
		VehiclePositionsURL: cfg.Feed.VehiclePositionsURL,
		ServiceAlertsURL:    cfg.Feed.ServiceAlertsURL,
		AuthHeaderKey:       cfg.Feed.AuthHeaderKey,
		AuthHeaderValue:     cfg.Feed.AuthHeaderValue,
		RealtimeInterval:    time.Duration(cfg.Refresh.RealtimeIntervalSeconds) * time.Second,
		AlertsInterval:      time.Duration(cfg.Refresh.AlertsIntervalSeconds) * time.Second,
	})

	rateLimiter := restapi.NewRateLimitMiddleware(
		cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.ExemptIPs, clk)

	return &app.Application{
		Config:        cfg,
		Env:           env,
		Logger:        logger,
		Store:         st,
		StaticManager: manager,
		FeedPoller:    poller,
		RateLimiter:   rateLimiter,
		Clock:         clk,
		Metrics:       m,
	}, nil
}

// CreateServer builds the HTTP server around the REST API handler.
func CreateServer(coreApp *app.Application) *http.Server {
	api := &restapi.RestAPI{
		Store:       coreApp.Store,
		Clock:       coreApp.Clock,
		Metrics:     coreApp.Metrics,
		Logger:      coreApp.Logger,
		RateLimiter: coreApp.RateLimiter,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", coreApp.Config.Server.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the feeders and the HTTP server and blocks until the process
// receives an interrupt, then shuts everything down in dependency order.
func Run(coreApp *app.Application, srv *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	err := coreApp.StaticManager.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}
	coreApp.FeedPoller.Start()

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(coreApp.Logger, "server_listening",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Env.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		shutdown(coreApp, srv)
		return err
	case <-ctx.Done():
		logging.LogOperation(coreApp.Logger, "shutdown_signal_received")
		shutdown(coreApp, srv)
		return nil
	}
}

// shutdown stops accepting requests first, then the feeders, then the
// supporting pieces, and closes the store last so everything above it can
// still flush writes.
func shutdown(coreApp *app.Application, srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(coreApp.Logger, "Error shutting down HTTP server", err)
	}

	coreApp.FeedPoller.Shutdown()
	coreApp.StaticManager.Shutdown()
	coreApp.RateLimiter.Stop()
	coreApp.Metrics.Shutdown()
	logging.SafeCloseWithLogging(coreApp.Store, coreApp.Logger, "store")
}
