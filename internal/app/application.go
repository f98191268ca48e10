// Package app bundles the long-lived components of the tracker process.
package app

import (
	"log/slog"

	"tracker.gpmetro.org/internal/appconf"
	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/config"
	"tracker.gpmetro.org/internal/gtfs"
	"tracker.gpmetro.org/internal/metrics"
	"tracker.gpmetro.org/internal/restapi"
	"tracker.gpmetro.org/internal/rt"
	"tracker.gpmetro.org/internal/store"
)

// Application holds the dependencies for the HTTP handlers and the feed
// loops. Everything here is built once at startup and shut down together.
type Application struct {
	Config        *config.Config
	Env           appconf.Environment
	Logger        *slog.Logger
	Store         *store.Store
	StaticManager *gtfs.Manager
	FeedPoller    *rt.Poller
	RateLimiter   *restapi.RateLimitMiddleware
	Clock         clock.Clock
	Metrics       *metrics.Metrics
}
