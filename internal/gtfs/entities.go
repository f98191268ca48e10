package gtfs

import (
	"log/slog"
	"sort"

	"github.com/OneBusAway/go-gtfs"
	"github.com/twpayne/go-polyline"

	"tracker.gpmetro.org/internal/models"
)

// BuildRoutes converts parsed routes to store records, attaching one encoded
// polyline per distinct shape serving the route.
func BuildRoutes(static *gtfs.Static) []models.RouteWithShape {
	shapesByRoute := make(map[string][]*gtfs.Shape)
	seen := make(map[string]map[string]struct{})
	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil || trip.Shape == nil {
			continue
		}
		routeID := trip.Route.Id
		if seen[routeID] == nil {
			seen[routeID] = make(map[string]struct{})
		}
		if _, ok := seen[routeID][trip.Shape.ID]; ok {
			continue
		}
		seen[routeID][trip.Shape.ID] = struct{}{}
		shapesByRoute[routeID] = append(shapesByRoute[routeID], trip.Shape)
	}

	routes := make([]models.RouteWithShape, 0, len(static.Routes))
	for _, r := range static.Routes {
		route := models.RouteWithShape{
			Route: models.Route{
				ID:        r.Id,
				ShortName: r.ShortName,
				Color:     cssColor(r.Color),
				TextColor: cssColor(r.TextColor),
			},
		}
		for _, shape := range shapesByRoute[r.Id] {
			route.Polylines = append(route.Polylines, encodeShape(shape))
		}
		routes = append(routes, route)
	}
	return routes
}

// cssColor turns a bare GTFS hex color into a CSS-ready value. Empty colors
// stay empty rather than becoming a lone "#".
func cssColor(c string) string {
	if c == "" {
		return ""
	}
	return "#" + c
}

func encodeShape(shape *gtfs.Shape) string {
	coords := make([][]float64, len(shape.Points))
	for i, p := range shape.Points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// BuildTrips converts parsed trips to store records.
func BuildTrips(static *gtfs.Static) []models.Trip {
	trips := make([]models.Trip, 0, len(static.Trips))
	for i := range static.Trips {
		trip := &static.Trips[i]
		record := models.Trip{
			ID:       trip.ID,
			Headsign: trip.Headsign,
		}
		if trip.Route != nil {
			record.RouteID = trip.Route.Id
		}
		if trip.Service != nil {
			record.ServiceID = trip.Service.Id
		}
		if trip.Shape != nil {
			record.ShapeID = trip.Shape.ID
		}
		trips = append(trips, record)
	}
	return trips
}

// BuildStops converts parsed stops to store records: display names are
// disambiguated and re-cased, and each stop carries the sorted IDs of the
// routes serving it. Stops without a rider-facing code are dropped since
// nothing can address them.
func BuildStops(static *gtfs.Static, d *Disambiguator, logger *slog.Logger) ([]models.Stop, error) {
	routesByStop := make(map[string]map[string]struct{})
	destinations := make(map[string][]string)
	headsignSeen := make(map[string]map[string]struct{})
	for i := range static.Trips {
		trip := &static.Trips[i]
		for _, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			stopID := st.Stop.Id
			if trip.Route != nil {
				if routesByStop[stopID] == nil {
					routesByStop[stopID] = make(map[string]struct{})
				}
				routesByStop[stopID][trip.Route.Id] = struct{}{}
			}
			if trip.Headsign != "" {
				if headsignSeen[stopID] == nil {
					headsignSeen[stopID] = make(map[string]struct{})
				}
				if _, ok := headsignSeen[stopID][trip.Headsign]; !ok {
					headsignSeen[stopID][trip.Headsign] = struct{}{}
					destinations[stopID] = append(destinations[stopID], trip.Headsign)
				}
			}
		}
	}

	stopNames := make(map[string]string, len(static.Stops))
	for _, s := range static.Stops {
		stopNames[s.Id] = s.Name
	}
	overrides, err := d.Overrides(stopNames, destinations)
	if err != nil {
		return nil, err
	}

	stops := make([]models.Stop, 0, len(static.Stops))
	for _, s := range static.Stops {
		if s.Code == "" {
			if logger != nil {
				logger.Warn("stop has no rider-facing code, skipping",
					slog.String("stop_id", s.Id),
					slog.String("stop_name", s.Name))
			}
			continue
		}

		name := overrides[s.Id]
		if name == "" {
			name = FixCapitalization(s.Name)
		}

		routeIDs := make([]string, 0, len(routesByStop[s.Id]))
		for routeID := range routesByStop[s.Id] {
			routeIDs = append(routeIDs, routeID)
		}
		sort.Strings(routeIDs)

		stop := models.Stop{
			ID:       s.Id,
			Code:     s.Code,
			Name:     name,
			RouteIDs: routeIDs,
		}
		if s.Latitude != nil {
			stop.Location.Lat = *s.Latitude
		}
		if s.Longitude != nil {
			stop.Location.Lng = *s.Longitude
		}
		stops = append(stops, stop)
	}
	return stops, nil
}
