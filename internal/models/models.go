// Package models defines the records shared by the loaders, the prediction
// store, and the REST API. These are the wire shapes clients consume, so
// route data is denormalized into stop time instances and vehicle positions
// rather than joined at read time.
package models

// Location is a WGS84 coordinate. Bearing is only present on vehicle
// positions that report one.
type Location struct {
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Bearing *float64 `json:"bearing,omitempty"`
}

// Route is the rider-facing identity of a transit line.
type Route struct {
	ID        string `json:"routeId"`
	ShortName string `json:"shortName"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

// RouteWithShape carries a route plus its encoded shape patterns. A route
// can have several disjoint patterns, so Polylines holds one encoded
// polyline per pattern.
type RouteWithShape struct {
	Route
	Polylines []string `json:"polylines"`
}

// Trip is one scheduled run of a route.
type Trip struct {
	ID        string `json:"tripId"`
	RouteID   string `json:"routeId"`
	ServiceID string `json:"serviceId"`
	ShapeID   string `json:"shapeId,omitempty"`
	Headsign  string `json:"headsign"`
}

// Stop is a boarding location. Name is the display name after duplicate-name
// disambiguation. RouteIDs lists the routes serving the stop.
type Stop struct {
	ID       string   `json:"stopId"`
	Code     string   `json:"stopCode"`
	Name     string   `json:"stopName"`
	Location Location `json:"location"`
	RouteIDs []string `json:"routeIds"`
}

// VehiclePosition is one vehicle's live location. The route is embedded so
// map clients can color icons without a second lookup.
type VehiclePosition struct {
	VehicleID string   `json:"vehicleId"`
	Position  Location `json:"position"`
	Route     Route    `json:"route"`
}

// Alert is a rider-facing service alert.
type Alert struct {
	ID              string `json:"id"`
	HeaderText      string `json:"headerText"`
	DescriptionText string `json:"descriptionText"`
}

// StopTimeStatus is the closed set of live statuses for a stop visit. Raw
// wire codes are mapped into this enum at the feed boundary and never leak
// past it.
type StopTimeStatus string

const (
	StatusScheduled StopTimeStatus = "scheduled"
	StatusDeparted  StopTimeStatus = "departed"
	StatusSkipped   StopTimeStatus = "skipped"
)

// StopTimeKey uniquely identifies "this trip visits this stop on this
// service date". ServiceDate uses the yyyymmdd form so that post-midnight
// trips stay attached to the date their trip began.
type StopTimeKey struct {
	ServiceDate string `json:"serviceDate"`
	TripID      string `json:"tripId"`
	StopID      string `json:"stopId"`
}

// Field renders the key as the store hash field / index member.
func (k StopTimeKey) Field() string {
	return k.ServiceDate + ":" + k.TripID + ":" + k.StopID
}

// StopTimeInstance is one scheduled stop visit, written once by the schedule
// materializer and never mutated. Times are Unix milliseconds.
type StopTimeInstance struct {
	StopTimeKey
	RouteID        string `json:"routeId"`
	RouteName      string `json:"routeName"`
	RouteColor     string `json:"routeColor"`
	RouteTextColor string `json:"routeTextColor"`
	Headsign       string `json:"headsign"`
	ScheduledTime  int64  `json:"scheduledTime"`
}

// StopTimeUpdate is the live prediction for a stop visit, written only by
// the live reconciler and only for keys that already have an instance.
type StopTimeUpdate struct {
	StopTimeKey
	PredictedTime int64          `json:"predictedTime"`
	Status        StopTimeStatus `json:"status"`
}

// LiveStopTimeInstance is the read-time merge of an instance and its update.
// PredictedTime falls back to ScheduledTime and Status to scheduled when no
// update exists.
type LiveStopTimeInstance struct {
	StopTimeInstance
	PredictedTime int64          `json:"predictedTime"`
	Status        StopTimeStatus `json:"status"`
}
