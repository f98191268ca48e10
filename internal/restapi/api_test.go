package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker.gpmetro.org/internal/clock"
	"tracker.gpmetro.org/internal/models"
	"tracker.gpmetro.org/internal/store"
)

var testNow = time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)

type testEnv struct {
	api     *RestAPI
	store   *store.Store
	clock   *clock.MockClock
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewWithClient(client, nil)
	clk := clock.NewMockClock(testNow)
	api := &RestAPI{
		Store:  st,
		Clock:  clk,
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	return &testEnv{api: api, store: st, clock: clk, handler: api.Handler()}
}

func (env *testEnv) get(t *testing.T, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedStop(t *testing.T) {
	t.Helper()
	require.NoError(t, env.store.SetStops(context.Background(), []models.Stop{
		{
			ID:       "s1",
			Code:     "101",
			Name:     "Congress St + High St",
			Location: models.Location{Lat: 43.66, Lng: -70.25},
			RouteIDs: []string{"24"},
		},
	}))
}

func (env *testEnv) seedArrival(t *testing.T, scheduled time.Time) {
	t.Helper()
	require.NoError(t, env.store.SetStopTimeInstances(context.Background(), []models.StopTimeInstance{
		{
			StopTimeKey: models.StopTimeKey{
				ServiceDate: "20240501",
				TripID:      "t1",
				StopID:      "s1",
			},
			RouteID:       "24",
			RouteName:     "24 Eastern",
			Headsign:      "Downtown",
			ScheduledTime: scheduled.UnixMilli(),
		},
	}))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestArrivalsUnknownStop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/arrivals/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArrivalsReturnsUpcoming(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)
	env.seedArrival(t, testNow.Add(5*time.Minute))

	rec := env.get(t, "/api/arrivals/101", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	arrivals := decodeBody[[]models.LiveStopTimeInstance](t, rec)
	require.Len(t, arrivals, 1)
	assert.Equal(t, "t1", arrivals[0].TripID)
	assert.Equal(t, models.StatusScheduled, arrivals[0].Status)
}

func TestArrivalsEmptyBoardIsJSONArray(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)

	rec := env.get(t, "/api/arrivals/101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestArrivalsConditionalRequests(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)
	env.seedArrival(t, testNow.Add(5*time.Minute))

	marker := testNow.Add(-30 * time.Second)
	require.NoError(t, env.store.SetStopTimeUpdates(context.Background(), []models.StopTimeUpdate{
		{
			StopTimeKey: models.StopTimeKey{
				ServiceDate: "20240501",
				TripID:      "t1",
				StopID:      "s1",
			},
			PredictedTime: testNow.Add(6 * time.Minute).UnixMilli(),
			Status:        models.StatusScheduled,
		},
	}, marker))

	// unconditional request carries the marker as Last-Modified
	rec := env.get(t, "/api/arrivals/101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lastModified := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	// client at the marker revalidates to 304
	rec = env.get(t, "/api/arrivals/101", map[string]string{"If-Modified-Since": lastModified})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// stripped-header fallback behaves the same
	rec = env.get(t, "/api/arrivals/101", map[string]string{"X-If-Modified-Since": lastModified})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// client older than the marker gets a fresh body
	stale := marker.Add(-time.Minute).UTC().Format(http.TimeFormat)
	rec = env.get(t, "/api/arrivals/101", map[string]string{"If-Modified-Since": stale})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestArrivalsLimitParameter(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.store.SetStopTimeInstances(context.Background(), []models.StopTimeInstance{
			{
				StopTimeKey: models.StopTimeKey{
					ServiceDate: "20240501",
					TripID:      "t" + strconv.Itoa(i),
					StopID:      "s1",
				},
				RouteID:       "24",
				ScheduledTime: testNow.Add(time.Duration(i+1) * time.Minute).UnixMilli(),
			},
		}))
	}

	rec := env.get(t, "/api/arrivals/101?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	arrivals := decodeBody[[]models.LiveStopTimeInstance](t, rec)
	assert.Len(t, arrivals, 2)

	// malformed values fall back to the default
	rec = env.get(t, "/api/arrivals/101?limit=bogus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	arrivals = decodeBody[[]models.LiveStopTimeInstance](t, rec)
	assert.Len(t, arrivals, 5)
}

func TestArrivalsWithoutMarkerIgnoresConditional(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)
	env.seedArrival(t, testNow.Add(5*time.Minute))

	since := testNow.UTC().Format(http.TimeFormat)
	rec := env.get(t, "/api/arrivals/101", map[string]string{"If-Modified-Since": since})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVehiclePositionsETag(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SetVehiclePositions(context.Background(), []models.VehiclePosition{
		{VehicleID: "bus-12", Route: models.Route{ID: "24"}},
	}, testNow))

	rec := env.get(t, "/api/vehicle-positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	vehicles := decodeBody[[]models.VehiclePosition](t, rec)
	require.Len(t, vehicles, 1)

	// the body is the stored snapshot verbatim, not a re-encoding
	raw, err := env.store.VehiclePositionsRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, rec.Body.String())

	rec = env.get(t, "/api/vehicle-positions", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = env.get(t, "/api/vehicle-positions", map[string]string{"If-None-Match": "stale"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVehiclePositionsEmptySnapshot(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/vehicle-positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStopsListConditional(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)
	require.NoError(t, env.store.SetStopsLastUpdatedAt(context.Background(), testNow.Add(-time.Hour)))

	rec := env.get(t, "/api/stops", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lastModified := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)

	stops := decodeBody[[]models.Stop](t, rec)
	require.Len(t, stops, 1)
	assert.Equal(t, "Congress St + High St", stops[0].Name)

	rec = env.get(t, "/api/stops", map[string]string{"If-Modified-Since": lastModified})
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestStopByCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)

	rec := env.get(t, "/api/stops/101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stop := decodeBody[models.Stop](t, rec)
	assert.Equal(t, "s1", stop.ID)

	rec = env.get(t, "/api/stops/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SetRoutes(context.Background(), []models.RouteWithShape{
		{
			Route:     models.Route{ID: "24", ShortName: "24 Eastern"},
			Polylines: []string{"_p~iF~ps|U"},
		},
	}))

	rec := env.get(t, "/api/routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	routes := decodeBody[[]models.RouteWithShape](t, rec)
	require.Len(t, routes, 1)
	assert.NotEmpty(t, routes[0].Polylines)
}

func TestAlertsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SetAlerts(context.Background(), []models.Alert{
		{ID: "a1", HeaderText: "Detour"},
	}))

	rec := env.get(t, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decodeBody[[]models.Alert](t, rec)
	require.Len(t, alerts, 1)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
}

func TestCacheControlTiers(t *testing.T) {
	env := newTestEnv(t)
	env.seedStop(t)

	rec := env.get(t, "/api/stops", nil)
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))

	rec = env.get(t, "/api/arrivals/101", nil)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/healthz", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = env.get(t, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
