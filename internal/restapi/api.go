// Package restapi serves the rider-facing JSON API backed by the prediction
// store.
package restapi

import (
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/metrics"
	"tracker.gpmetro.org/internal/store"
)

// Cache-Control tiers. Live data is always revalidated; static tables only
// change on an ingest, so a short shared cache is safe.
const (
	staticCacheSeconds = 300
	liveCacheSeconds   = 0
)

// RestAPI carries the dependencies of the HTTP handlers.
type RestAPI struct {
	Store       *store.Store
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	RateLimiter *RateLimitMiddleware
}

// Handler builds the full HTTP handler: routes wrapped in the middleware
// chain. Order matters: the request ID must exist before logging, logging
// and metrics wrap everything downstream, rate limiting runs before any
// work is done, and compression sits innermost so limited or rejected
// responses skip it.
func (api *RestAPI) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/arrivals/{stopCode}",
		api.route("/api/arrivals/{stopCode}", liveCacheSeconds, api.arrivalsHandler))
	mux.Handle("GET /api/vehicle-positions",
		api.route("/api/vehicle-positions", liveCacheSeconds, api.vehiclePositionsHandler))
	mux.Handle("GET /api/alerts",
		api.route("/api/alerts", liveCacheSeconds, api.alertsHandler))
	mux.Handle("GET /api/stops",
		api.route("/api/stops", staticCacheSeconds, api.stopsHandler))
	mux.Handle("GET /api/stops/{stopCode}",
		api.route("/api/stops/{stopCode}", staticCacheSeconds, api.stopHandler))
	mux.Handle("GET /api/routes",
		api.route("/api/routes", staticCacheSeconds, api.routesHandler))
	mux.Handle("GET /healthz",
		api.route("/healthz", liveCacheSeconds, api.healthHandler))

	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = gzhttp.GzipHandler(handler)
	if api.RateLimiter != nil {
		handler = api.RateLimiter.Handler()(handler)
	}
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

// route wraps one handler with its per-route concerns: metrics labeled by
// the route pattern rather than the raw path, and the cache tier.
func (api *RestAPI) route(pattern string, cacheSeconds int, h http.HandlerFunc) http.Handler {
	return CacheControlMiddleware(cacheSeconds, api.instrument(pattern, h))
}
