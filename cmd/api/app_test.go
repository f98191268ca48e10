package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker.gpmetro.org/internal/appconf"
	"tracker.gpmetro.org/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	mr := miniredis.RunT(t)

	return &config.Config{
		Server: config.ServerConfig{Port: 4000, Env: "test"},
		Redis:  config.RedisConfig{URL: "redis://" + mr.Addr()},
		Feed: config.FeedConfig{
			StaticURL:           "https://transit.example.com/gtfs.zip",
			TripUpdatesURL:      "https://transit.example.com/trip-updates.pb",
			VehiclePositionsURL: "https://transit.example.com/vehicle-positions.pb",
			Timezone:            "America/New_York",
		},
		Refresh: config.RefreshConfig{
			StaticIntervalSeconds:   600,
			RealtimeIntervalSeconds: 1,
			AlertsIntervalSeconds:   3600,
			CleanupTimeOfDay:        "03:30:00",
			WindowDays:              3,
			RetentionDays:           3,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100},
	}
}

func TestBuildApplication(t *testing.T) {
	cfg := testConfig(t)

	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)
	defer coreApp.Metrics.Shutdown()
	defer coreApp.RateLimiter.Stop()
	defer coreApp.Store.Close()

	assert.NotNil(t, coreApp.Logger)
	assert.NotNil(t, coreApp.Store)
	assert.NotNil(t, coreApp.StaticManager)
	assert.NotNil(t, coreApp.FeedPoller)
	assert.NotNil(t, coreApp.RateLimiter)
	assert.NotNil(t, coreApp.Metrics)
	assert.Equal(t, appconf.Test, coreApp.Env)
}

func TestBuildApplicationRejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.Timezone = "Not/AZone"

	_, err := BuildApplication(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading feed timezone")
}

func TestBuildApplicationRejectsBadCleanupTime(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refresh.CleanupTimeOfDay = "3:30"

	_, err := BuildApplication(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup time of day")
}

func TestCreateServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 8080

	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)
	defer coreApp.Metrics.Shutdown()
	defer coreApp.RateLimiter.Stop()
	defer coreApp.Store.Close()

	srv := CreateServer(coreApp)

	assert.Equal(t, ":8080", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.Equal(t, time.Minute, srv.IdleTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
}

func TestCreateServerHandlerResponds(t *testing.T) {
	cfg := testConfig(t)

	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err)
	defer coreApp.Metrics.Shutdown()
	defer coreApp.RateLimiter.Stop()
	defer coreApp.Store.Close()

	srv := CreateServer(coreApp)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
