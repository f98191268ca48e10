package rt

import (
	"context"
	"errors"
	"log/slog"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"

	"tracker.gpmetro.org/internal/models"
	"tracker.gpmetro.org/internal/store"
)

// StaticLookup resolves feed references against the current static snapshot.
// Satisfied by *store.Store.
type StaticLookup interface {
	Trip(ctx context.Context, tripID string) (*models.Trip, error)
	Route(ctx context.Context, routeID string) (*models.Route, error)
}

// reconcileVehicles maps a vehicle positions feed to store records. Entities
// missing a vehicle ID, trip, or position are dropped, as are vehicles whose
// trip or route is absent from the static snapshot; each drop is logged so a
// schedule/feed mismatch is visible. Store errors other than a missed lookup
// abort the whole pass.
func reconcileVehicles(ctx context.Context, feed *gtfsrt.FeedMessage, static StaticLookup, logger *slog.Logger) ([]models.VehiclePosition, error) {
	vehicles := make([]models.VehiclePosition, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		v := entity.GetVehicle()
		if v == nil {
			continue
		}

		vehicleID := v.GetVehicle().GetId()
		tripID := v.GetTrip().GetTripId()
		pos := v.GetPosition()
		if vehicleID == "" || tripID == "" || pos == nil || pos.Latitude == nil || pos.Longitude == nil {
			logger.Warn("vehicle entity missing id, trip, or position",
				slog.String("entity_id", entity.GetId()))
			continue
		}

		trip, err := static.Trip(ctx, tripID)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("vehicle references unknown trip", slog.String("trip_id", tripID))
			continue
		}
		if err != nil {
			return nil, err
		}

		route, err := static.Route(ctx, trip.RouteID)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("trip references unknown route",
				slog.String("trip_id", tripID),
				slog.String("route_id", trip.RouteID))
			continue
		}
		if err != nil {
			return nil, err
		}

		position := models.Location{
			Lat: float64(pos.GetLatitude()),
			Lng: float64(pos.GetLongitude()),
		}
		if pos.Bearing != nil {
			bearing := float64(pos.GetBearing())
			position.Bearing = &bearing
		}

		vehicles = append(vehicles, models.VehiclePosition{
			VehicleID: vehicleID,
			Position:  position,
			Route:     *route,
		})
	}
	return vehicles, nil
}
