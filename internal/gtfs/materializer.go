package gtfs

import (
	"time"

	"github.com/OneBusAway/go-gtfs"

	"tracker.gpmetro.org/internal/models"
)

// Materializer expands the parsed schedule into dated stop time instances.
// Each refresh covers service dates from RetentionDays back through
// WindowDays ahead; going back as far as retention keeps post-midnight trips
// from yesterday's service date alive, and re-running over dates already
// written is safe because the store ignores duplicate instances.
type Materializer struct {
	WindowDays    int
	RetentionDays int
	Location      *time.Location
}

// Materialize builds every stop time instance for services active in the
// window around now.
func (m *Materializer) Materialize(static *gtfs.Static, now time.Time) []models.StopTimeInstance {
	var instances []models.StopTimeInstance
	for offset := -m.RetentionDays; offset <= m.WindowDays; offset++ {
		day := now.In(m.Location).AddDate(0, 0, offset)
		serviceDate := FormatServiceDate(day, m.Location)
		dayStart, err := ParseServiceDate(serviceDate, m.Location)
		if err != nil {
			continue
		}

		for i := range static.Trips {
			trip := &static.Trips[i]
			if trip.Route == nil || trip.Service == nil {
				continue
			}
			if !serviceActiveOn(trip.Service, dayStart) {
				continue
			}
			for _, st := range trip.StopTimes {
				if st.Stop == nil {
					continue
				}
				instances = append(instances, models.StopTimeInstance{
					StopTimeKey: models.StopTimeKey{
						ServiceDate: serviceDate,
						TripID:      trip.ID,
						StopID:      st.Stop.Id,
					},
					RouteID:        trip.Route.Id,
					RouteName:      trip.Route.ShortName,
					RouteColor:     cssColor(trip.Route.Color),
					RouteTextColor: cssColor(trip.Route.TextColor),
					Headsign:       trip.Headsign,
					ScheduledTime:  dayStart.Add(st.ArrivalTime).UnixMilli(),
				})
			}
		}
	}
	return instances
}

// serviceActiveOn reports whether a service runs on the given local date.
// Calendar exceptions take precedence over the weekly pattern.
func serviceActiveOn(svc *gtfs.Service, day time.Time) bool {
	for _, removed := range svc.RemovedDates {
		if sameDate(removed, day) {
			return false
		}
	}
	for _, added := range svc.AddedDates {
		if sameDate(added, day) {
			return true
		}
	}
	if svc.StartDate.IsZero() || svc.EndDate.IsZero() {
		return false
	}
	// Calendar-date comparison: the parsed range and the candidate day can
	// carry different locations, so comparing instants would shave a day off
	// one end of the range.
	if dateBefore(day, svc.StartDate) || dateBefore(svc.EndDate, day) {
		return false
	}
	switch day.Weekday() {
	case time.Monday:
		return svc.Monday
	case time.Tuesday:
		return svc.Tuesday
	case time.Wednesday:
		return svc.Wednesday
	case time.Thursday:
		return svc.Thursday
	case time.Friday:
		return svc.Friday
	case time.Saturday:
		return svc.Saturday
	case time.Sunday:
		return svc.Sunday
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
