package rt

import (
	"log/slog"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"

	"tracker.gpmetro.org/internal/gtfs"
	"tracker.gpmetro.org/internal/models"
)

// reconcileTripUpdates maps a trip updates feed to store records.
//
// The feed does not carry the trip's start date, so the service date is
// derived from the first stop time update's event time rendered in the feed
// timezone. It must be the date the trip began: a trip crossing midnight
// belongs to the service date it started on, and deriving from the first
// stop keeps every update of the trip on that date.
func reconcileTripUpdates(feed *gtfsrt.FeedMessage, loc *time.Location, now time.Time, logger *slog.Logger) []models.StopTimeUpdate {
	var updates []models.StopTimeUpdate
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			logger.Warn("entity carries no trip update", slog.String("entity_id", entity.GetId()))
			continue
		}
		tripID := tu.GetTrip().GetTripId()
		if tripID == "" {
			logger.Warn("trip update missing trip id", slog.String("entity_id", entity.GetId()))
			continue
		}

		stus := tu.GetStopTimeUpdate()
		if len(stus) == 0 {
			continue
		}
		firstTime := eventTime(stus[0])
		if firstTime == 0 {
			logger.Warn("trip update has no usable first stop time", slog.String("trip_id", tripID))
			continue
		}
		serviceDate := gtfs.FormatServiceDate(time.Unix(firstTime, 0), loc)

		for _, stu := range stus {
			stopID := stu.GetStopId()
			predicted := eventTime(stu)
			if stopID == "" || predicted == 0 {
				logger.Warn("stop time update missing stop or time", slog.String("trip_id", tripID))
				continue
			}

			updates = append(updates, models.StopTimeUpdate{
				StopTimeKey: models.StopTimeKey{
					ServiceDate: serviceDate,
					TripID:      tripID,
					StopID:      stopID,
				},
				PredictedTime: predicted * 1000,
				Status:        stopTimeStatus(stu, predicted, now),
			})
		}
	}
	return updates
}

// eventTime picks the update's arrival time, falling back to departure. The
// first stop of a trip only has a departure and the last only an arrival;
// for everything in between the arrival is what a waiting rider cares about.
func eventTime(stu *gtfsrt.TripUpdate_StopTimeUpdate) int64 {
	if t := stu.GetArrival().GetTime(); t != 0 {
		return t
	}
	return stu.GetDeparture().GetTime()
}

// stopTimeStatus folds the wire schedule relationship and the clock into the
// closed status enum. Skipped wins over everything; a predicted time in the
// past means the vehicle already left.
func stopTimeStatus(stu *gtfsrt.TripUpdate_StopTimeUpdate, predicted int64, now time.Time) models.StopTimeStatus {
	if stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED {
		return models.StatusSkipped
	}
	if now.Unix() > predicted {
		return models.StatusDeparted
	}
	return models.StatusScheduled
}
