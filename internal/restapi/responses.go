package restapi

import (
	"encoding/json"
	"net/http"

	"tracker.gpmetro.org/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, v any) {
	setJSONResponseType(w)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, _ *http.Request, code int, message string) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "Error handling request", err)

	setJSONResponseType(w)
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: "internal server error"})
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}
