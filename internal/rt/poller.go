package rt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"

	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/logging"
	"tracker.gpmetro.org/internal/metrics"
	"tracker.gpmetro.org/internal/store"
)

// pollTimeout bounds a single fetch-reconcile-write cycle.
const pollTimeout = 15 * time.Second

// PollerOptions bundles the collaborators and feed endpoints a Poller needs.
// ServiceAlertsURL may be empty, in which case no alerts loop runs.
type PollerOptions struct {
	Store               *store.Store
	Clock               clock.Clock
	Metrics             *metrics.Metrics
	Logger              *slog.Logger
	Timezone            *time.Location
	TripUpdatesURL      string
	VehiclePositionsURL string
	ServiceAlertsURL    string
	AuthHeaderKey       string
	AuthHeaderValue     string
	RealtimeInterval    time.Duration
	AlertsInterval      time.Duration
}

// Poller runs one goroutine per GTFS-RT feed, each on its own cadence, and
// writes the reconciled records to the store. Feeds fail independently; a
// bad trip updates fetch never blocks vehicle positions.
type Poller struct {
	store    *store.Store
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	timezone *time.Location

	tripUpdatesURL      string
	vehiclePositionsURL string
	serviceAlertsURL    string
	authHeaderKey       string
	authHeaderValue     string
	realtimeInterval    time.Duration
	alertsInterval      time.Duration

	wg           sync.WaitGroup
	shutdownChan chan struct{}
}

// NewPoller builds a Poller. Start launches the feed loops.
func NewPoller(opts PollerOptions) *Poller {
	return &Poller{
		store:               opts.Store,
		clock:               opts.Clock,
		metrics:             opts.Metrics,
		logger:              opts.Logger,
		timezone:            opts.Timezone,
		tripUpdatesURL:      opts.TripUpdatesURL,
		vehiclePositionsURL: opts.VehiclePositionsURL,
		serviceAlertsURL:    opts.ServiceAlertsURL,
		authHeaderKey:       opts.AuthHeaderKey,
		authHeaderValue:     opts.AuthHeaderValue,
		realtimeInterval:    opts.RealtimeInterval,
		alertsInterval:      opts.AlertsInterval,
		shutdownChan:        make(chan struct{}),
	}
}

// Start launches the feed loops.
func (p *Poller) Start() {
	p.wg.Add(2)
	go p.loop("trip_updates", p.realtimeInterval, p.pollTripUpdates)
	go p.loop("vehicle_positions", p.realtimeInterval, p.pollVehiclePositions)

	if p.serviceAlertsURL != "" {
		p.wg.Add(1)
		go p.loop("service_alerts", p.alertsInterval, p.pollServiceAlerts)
	}
}

// Shutdown stops the feed loops and waits for them to exit.
func (p *Poller) Shutdown() {
	close(p.shutdownChan)
	p.wg.Wait()
}

func (p *Poller) loop(feed string, interval time.Duration, poll func(context.Context) error) {
	defer p.wg.Done()

	logger := p.logger.With(slog.String("component", feed+"_poller"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
			start := time.Now()
			err := poll(ctx)
			cancel()

			if p.metrics != nil {
				p.metrics.ObserveFeedCycle(feed, time.Since(start), err)
			}
			if err != nil {
				logging.LogError(logger, "Error polling feed", err)
			}

		case <-p.shutdownChan:
			logging.LogOperation(logger, "shutting_down_feed_poller")
			return
		}
	}
}

func (p *Poller) pollTripUpdates(ctx context.Context) error {
	feed, err := p.fetchFeed(ctx, p.tripUpdatesURL)
	if err != nil {
		return err
	}
	updates := reconcileTripUpdates(feed, p.timezone, p.clock.Now(), p.logger)
	return p.store.SetStopTimeUpdates(ctx, updates, p.feedUpdatedAt(feed))
}

func (p *Poller) pollVehiclePositions(ctx context.Context) error {
	feed, err := p.fetchFeed(ctx, p.vehiclePositionsURL)
	if err != nil {
		return err
	}
	vehicles, err := reconcileVehicles(ctx, feed, p.store, p.logger)
	if err != nil {
		return err
	}
	return p.store.SetVehiclePositions(ctx, vehicles, p.feedUpdatedAt(feed))
}

func (p *Poller) pollServiceAlerts(ctx context.Context) error {
	feed, err := p.fetchFeed(ctx, p.serviceAlertsURL)
	if err != nil {
		return err
	}
	return p.store.SetAlerts(ctx, reconcileAlerts(feed))
}

// feedUpdatedAt prefers the feed's own header timestamp so freshness
// reflects the producer, falling back to the local clock for feeds that
// omit it.
func (p *Poller) feedUpdatedAt(feed *gtfsrt.FeedMessage) time.Time {
	if ts := feed.GetHeader().GetTimestamp(); ts != 0 {
		return time.Unix(int64(ts), 0)
	}
	return p.clock.Now()
}
