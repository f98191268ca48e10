package restapi

import (
	"net/http"

	"tracker.gpmetro.org/internal/models"
)

// routesHandler serves every route with its encoded shape polylines.
func (api *RestAPI) routesHandler(w http.ResponseWriter, r *http.Request) {
	routes, err := api.Store.RoutesWithShapes(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if routes == nil {
		routes = []models.RouteWithShape{}
	}
	api.sendJSON(w, r, routes)
}
