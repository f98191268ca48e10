package restapi

import (
	"errors"
	"net/http"

	"tracker.gpmetro.org/internal/models"
	"tracker.gpmetro.org/internal/store"
)

// stopsHandler serves the full stop table, with Last-Modified revalidation
// against the static ingest timestamp.
func (api *RestAPI) stopsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lastModified, err := api.Store.StopsLastUpdatedAt(ctx)
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

	stops, err := api.Store.Stops(ctx)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if stops == nil {
		stops = []models.Stop{}
	}

	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	api.sendJSON(w, r, stops)
}

// stopHandler serves one stop addressed by its rider-facing code.
func (api *RestAPI) stopHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stopID, err := api.Store.StopIDByCode(ctx, r.PathValue("stopCode"))
	if errors.Is(err, store.ErrNotFound) {
		api.sendError(w, r, http.StatusNotFound, "stop not found")
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	stop, err := api.Store.Stop(ctx, stopID)
	if errors.Is(err, store.ErrNotFound) {
		api.sendError(w, r, http.StatusNotFound, "stop not found")
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, stop)
}
