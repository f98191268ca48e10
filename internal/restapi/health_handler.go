package restapi

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler reports process liveness and store connectivity.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := api.Store.Ping(r.Context()); err != nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	api.sendJSON(w, r, healthResponse{Status: "ok"})
}
