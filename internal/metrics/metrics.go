// Package metrics provides Prometheus metrics for the tracker application.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolStatser exposes the connection pool statistics of a Redis client.
// Satisfied by *redis.Client; tests may substitute their own.
type PoolStatser interface {
	PoolStats() *redis.PoolStats
}

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Feeder cycle metrics
	FeedCyclesTotal   *prometheus.CounterVec
	FeedCycleDuration *prometheus.HistogramVec

	// Store pool metrics
	StoreConnectionsTotal  prometheus.Gauge
	StoreConnectionsIdle   prometheus.Gauge
	StorePoolTimeoutsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the pool stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the pool stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	feedCyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_feed_cycles_total",
			Help: "Total number of feeder poll cycles by outcome",
		},
		[]string{"feed", "status"},
	)

	feedCycleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_feed_cycle_duration_seconds",
			Help:    "Feeder poll cycle duration distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"feed"},
	)

	storeConnectionsTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_store_connections_total",
		Help: "Number of connections in the store pool",
	})

	storeConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_store_connections_idle",
		Help: "Number of idle connections in the store pool",
	})

	storePoolTimeoutsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracker_store_pool_timeouts_total",
		Help: "Total number of times a store connection wait timed out",
	})

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feedCyclesTotal,
		feedCycleDuration,
		storeConnectionsTotal,
		storeConnectionsIdle,
		storePoolTimeoutsTotal,
	)

	return &Metrics{
		Registry:               registry,
		HTTPRequestsTotal:      httpRequestsTotal,
		HTTPRequestDuration:    httpRequestDuration,
		FeedCyclesTotal:        feedCyclesTotal,
		FeedCycleDuration:      feedCycleDuration,
		StoreConnectionsTotal:  storeConnectionsTotal,
		StoreConnectionsIdle:   storeConnectionsIdle,
		StorePoolTimeoutsTotal: storePoolTimeoutsTotal,
		logger:                 logger,
	}
}

// ObserveFeedCycle records one feeder poll cycle.
func (m *Metrics) ObserveFeedCycle(feed string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FeedCyclesTotal.WithLabelValues(feed, status).Inc()
	m.FeedCycleDuration.WithLabelValues(feed).Observe(duration.Seconds())
}

// StartPoolStatsCollector starts a goroutine that periodically collects store
// connection pool statistics and updates the corresponding metrics.
// This method is idempotent - calling it multiple times has no effect after
// the first call. Call Shutdown() to stop the collector.
func (m *Metrics) StartPoolStatsCollector(client PoolStatser, interval time.Duration) {
	if client == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastTimeouts uint32

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in pool stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := client.PoolStats()
				m.StoreConnectionsTotal.Set(float64(stats.TotalConns))
				m.StoreConnectionsIdle.Set(float64(stats.IdleConns))

				if delta := stats.Timeouts - lastTimeouts; delta > 0 {
					m.StorePoolTimeoutsTotal.Add(float64(delta))
				}
				lastTimeouts = stats.Timeouts

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the pool stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
