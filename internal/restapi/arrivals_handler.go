package restapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tracker.gpmetro.org/internal/models"
	"tracker.gpmetro.org/internal/store"
)

const (
	// arrivalsLookBack keeps just-departed buses on the board long enough
	// for a rider to see them leave.
	arrivalsLookBack     = 10 * time.Minute
	arrivalsDefaultLimit = 20
	arrivalsMaxLimit     = 100
)

// arrivalsHandler serves the live arrival board for one stop. Conditional
// requests revalidate against the stop's freshness marker, so the polling
// clients pay for a body only when live data actually moved.
func (api *RestAPI) arrivalsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stopCode := r.PathValue("stopCode")
	stopID, err := api.Store.StopIDByCode(ctx, stopCode)
	if errors.Is(err, store.ErrNotFound) {
		api.sendError(w, r, http.StatusNotFound, "stop not found")
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	lastModified, err := api.Store.StopUpdatedAt(ctx, stopID)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	if since := ifModifiedSince(r); since != "" && !lastModified.IsZero() {
		if clientTime, parseErr := http.ParseTime(since); parseErr == nil && !lastModified.After(clientTime) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	arrivals, err := api.Store.Predictions(ctx, stopID, api.Clock.Now().Add(-arrivalsLookBack), arrivalsLimit(r))
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if arrivals == nil {
		arrivals = []models.LiveStopTimeInstance{}
	}

	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	api.sendJSON(w, r, arrivals)
}

// arrivalsLimit reads the optional limit query parameter, clamped so one
// request cannot drag the whole index through the merge.
func arrivalsLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return arrivalsDefaultLimit
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return arrivalsDefaultLimit
	}
	if limit > arrivalsMaxLimit {
		return arrivalsMaxLimit
	}
	return limit
}

// ifModifiedSince reads the conditional request validator. The custom
// X-If-Modified-Since fallback exists because some CDN configurations strip
// the standard header from requests they proxy.
func ifModifiedSince(r *http.Request) string {
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		return v
	}
	return r.Header.Get("X-If-Modified-Since")
}
