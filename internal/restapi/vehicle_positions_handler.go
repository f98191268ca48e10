package restapi

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
)

// vehiclePositionsHandler serves the live vehicle snapshot. The validator
// is an ETag derived from the snapshot's freshness marker; If-None-Match
// gets a 304 when the snapshot has not moved.
func (api *RestAPI) vehiclePositionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	updatedAt, err := api.Store.VehiclePositionsUpdatedAt(ctx)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	var etag string
	if !updatedAt.IsZero() {
		sum := md5.Sum([]byte(updatedAt.UTC().Format(http.TimeFormat)))
		etag = hex.EncodeToString(sum[:])
	}

	if etag != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	// The snapshot is stored as the JSON the feeder wrote; pass it through
	// rather than decoding and re-encoding it on every poll.
	raw, err := api.Store.VehiclePositionsRaw(ctx)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	setJSONResponseType(w)
	_, _ = w.Write([]byte(raw))
}
