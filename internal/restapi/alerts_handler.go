package restapi

import "net/http"

func (api *RestAPI) alertsHandler(w http.ResponseWriter, r *http.Request) {
	alerts, err := api.Store.Alerts(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, alerts)
}
