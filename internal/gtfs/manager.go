package gtfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/logging"
	"tracker.gpmetro.org/internal/metrics"
	"tracker.gpmetro.org/internal/store"
)

// Notifier is told when a static ingest replaced the route, trip, or stop
// tables, so downstream caches can be invalidated.
type Notifier interface {
	StaticChanged(ctx context.Context)
}

// ManagerOptions bundles the collaborators a Manager needs.
type ManagerOptions struct {
	Fetcher       *Fetcher
	Store         *store.Store
	Materializer  *Materializer
	Disambiguator *Disambiguator
	Notifier      Notifier
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Interval      time.Duration
	CleanupAt     time.Duration // local time-of-day for the retention sweep
}

// Manager owns the static schedule lifecycle: periodic bundle refresh,
// materialization of the prediction window, and the daily retention sweep.
type Manager struct {
	fetcher       *Fetcher
	store         *store.Store
	materializer  *Materializer
	disambiguator *Disambiguator
	notifier      Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        *slog.Logger
	interval      time.Duration
	cleanupAt     time.Duration

	refreshMutex sync.Mutex
	lastStatic   *gtfs.Static

	wg           sync.WaitGroup
	shutdownChan chan struct{}
}

// NewManager builds a Manager. Start must be called to load data and begin
// the update loops.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		fetcher:       opts.Fetcher,
		store:         opts.Store,
		materializer:  opts.Materializer,
		disambiguator: opts.Disambiguator,
		notifier:      opts.Notifier,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		interval:      opts.Interval,
		cleanupAt:     opts.CleanupAt,
		shutdownChan:  make(chan struct{}),
	}
}

// Start performs the initial ingest and launches the refresh and cleanup
// loops. The initial ingest must succeed; a process that cannot load a
// schedule has nothing to serve.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("initial static ingest: %w", err)
	}

	m.wg.Add(2)
	go m.refreshLoop()
	go m.cleanupLoop()
	return nil
}

// Shutdown stops the background loops and waits for them to exit.
func (m *Manager) Shutdown() {
	close(m.shutdownChan)
	m.wg.Wait()
}

func (m *Manager) refreshLoop() {
	defer m.wg.Done()

	logger := m.logger.With(slog.String("component", "static_updater"))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			start := time.Now()
			err := m.Refresh(ctx)
			cancel()

			if m.metrics != nil {
				m.metrics.ObserveFeedCycle("static", time.Since(start), err)
			}
			if err != nil {
				logging.LogError(logger, "Error refreshing static schedule", err)
			}

		case <-m.shutdownChan:
			logging.LogOperation(logger, "shutting_down_static_updates")
			return
		}
	}
}

// Refresh fetches the bundle, replaces the static tables when it changed,
// and re-materializes the prediction window. Safe to call concurrently with
// itself and with readers.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMutex.Lock()
	defer m.refreshMutex.Unlock()

	logger := m.logger.With(slog.String("component", "static_updater"))

	// Only revalidate when a parsed bundle is in memory to fall back on.
	var previousETag string
	if m.lastStatic != nil {
		etag, err := m.store.StaticETag(ctx)
		if err != nil {
			return fmt.Errorf("reading static etag: %w", err)
		}
		previousETag = etag
	}

	static, etag, err := m.fetcher.Fetch(ctx, previousETag)
	switch {
	case errors.Is(err, ErrNotModified):
		static = m.lastStatic
	case err != nil:
		return err
	default:
		if err := m.ingest(ctx, static, etag); err != nil {
			return err
		}
		m.lastStatic = static
	}

	instances := m.materializer.Materialize(static, m.clock.Now())
	if err := m.store.SetStopTimeInstances(ctx, instances); err != nil {
		return fmt.Errorf("writing stop time instances: %w", err)
	}

	logging.LogOperation(logger, "static_refresh_complete",
		slog.Int("stop_time_instances", len(instances)))
	return nil
}

func (m *Manager) ingest(ctx context.Context, static *gtfs.Static, etag string) error {
	routes := BuildRoutes(static)
	trips := BuildTrips(static)
	stops, err := BuildStops(static, m.disambiguator, m.logger)
	if err != nil {
		return fmt.Errorf("building stops: %w", err)
	}

	if err := m.store.SetRoutes(ctx, routes); err != nil {
		return fmt.Errorf("writing routes: %w", err)
	}
	if err := m.store.SetTrips(ctx, trips); err != nil {
		return fmt.Errorf("writing trips: %w", err)
	}
	if err := m.store.SetStops(ctx, stops); err != nil {
		return fmt.Errorf("writing stops: %w", err)
	}
	if err := m.store.SetStopsLastUpdatedAt(ctx, m.clock.Now()); err != nil {
		return fmt.Errorf("writing stop table timestamp: %w", err)
	}
	if etag != "" {
		if err := m.store.SetStaticETag(ctx, etag); err != nil {
			return fmt.Errorf("writing static etag: %w", err)
		}
	}

	logging.LogOperation(m.logger, "static_tables_replaced",
		slog.Int("routes", len(routes)),
		slog.Int("trips", len(trips)),
		slog.Int("stops", len(stops)))

	if m.notifier != nil {
		m.notifier.StaticChanged(ctx)
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	logger := m.logger.With(slog.String("component", "retention_sweeper"))

	for {
		wait := m.untilNextCleanup()
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			cutoff := m.clock.Now().AddDate(0, 0, -m.materializer.RetentionDays)
			err := m.store.CleanupStopTimes(ctx, cutoff)
			cancel()

			if err != nil {
				logging.LogError(logger, "Error sweeping expired stop times", err)
			} else {
				logging.LogOperation(logger, "retention_sweep_complete",
					slog.Time("cutoff", cutoff))
			}

		case <-m.shutdownChan:
			timer.Stop()
			logging.LogOperation(logger, "shutting_down_retention_sweeps")
			return
		}
	}
}

// untilNextCleanup returns the wait until the next local occurrence of the
// configured sweep time.
func (m *Manager) untilNextCleanup() time.Duration {
	now := m.clock.Now().In(m.materializer.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.materializer.Location)
	next := midnight.Add(m.cleanupAt)
	if !next.After(now) {
		next = midnight.AddDate(0, 0, 1).Add(m.cleanupAt)
	}
	return next.Sub(now)
}
