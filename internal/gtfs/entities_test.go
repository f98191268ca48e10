package gtfs

import (
	"testing"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
)

func entityTestStatic() *gtfs.Static {
	lat1, lng1 := 43.6615, -70.2553
	lat2, lng2 := 43.6591, -70.2568

	route := &gtfs.Route{Id: "24", ShortName: "24 Eastern", Color: "0055A5", TextColor: "FFFFFF"}
	shape := &gtfs.Shape{ID: "sh1", Points: []gtfs.ShapePoint{
		{Latitude: 43.66, Longitude: -70.25},
		{Latitude: 43.67, Longitude: -70.26},
	}}
	svc := &gtfs.Service{Id: "wk"}
	stopA := &gtfs.Stop{Id: "s1", Code: "101", Name: "CONGRESS ST", Latitude: &lat1, Longitude: &lng1}
	stopB := &gtfs.Stop{Id: "s2", Code: "", Name: "ELM ST", Latitude: &lat2, Longitude: &lng2}

	trip := gtfs.ScheduledTrip{
		ID:       "t1",
		Route:    route,
		Service:  svc,
		Shape:    shape,
		Headsign: "DOWNTOWN",
		StopTimes: []gtfs.ScheduledStopTime{
			{Stop: stopA, ArrivalTime: 8 * time.Hour},
			{Stop: stopB, ArrivalTime: 8*time.Hour + 5*time.Minute},
		},
	}
	// second trip on the same shape must not duplicate the polyline
	trip2 := trip
	trip2.ID = "t2"

	return &gtfs.Static{
		Routes: []gtfs.Route{*route},
		Stops:  []gtfs.Stop{*stopA, *stopB},
		Trips:  []gtfs.ScheduledTrip{trip, trip2},
	}
}

func TestBuildRoutes(t *testing.T) {
	routes := BuildRoutes(entityTestStatic())
	require.Len(t, routes, 1)

	route := routes[0]
	assert.Equal(t, "24", route.ID)
	assert.Equal(t, "24 Eastern", route.ShortName)
	assert.Equal(t, "#0055A5", route.Color)
	assert.Equal(t, "#FFFFFF", route.TextColor)
	require.Len(t, route.Polylines, 1)

	coords, _, err := polyline.DecodeCoords([]byte(route.Polylines[0]))
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 43.66, coords[0][0], 1e-5)
	assert.InDelta(t, -70.25, coords[0][1], 1e-5)
}

func TestBuildTrips(t *testing.T) {
	trips := BuildTrips(entityTestStatic())
	require.Len(t, trips, 2)

	assert.Equal(t, "t1", trips[0].ID)
	assert.Equal(t, "24", trips[0].RouteID)
	assert.Equal(t, "wk", trips[0].ServiceID)
	assert.Equal(t, "sh1", trips[0].ShapeID)
	assert.Equal(t, "DOWNTOWN", trips[0].Headsign)
}

func TestBuildStops(t *testing.T) {
	d := NewDisambiguator(nil, []string{"PULSE"}, nil)

	stops, err := BuildStops(entityTestStatic(), d, nil)
	require.NoError(t, err)
	// s2 has no rider-facing code and is dropped
	require.Len(t, stops, 1)

	stop := stops[0]
	assert.Equal(t, "s1", stop.ID)
	assert.Equal(t, "101", stop.Code)
	assert.Equal(t, "Congress St", stop.Name)
	assert.Equal(t, []string{"24"}, stop.RouteIDs)
	assert.InDelta(t, 43.6615, stop.Location.Lat, 1e-6)
	assert.InDelta(t, -70.2553, stop.Location.Lng, 1e-6)
}

func TestBuildStopsAppliesDisambiguation(t *testing.T) {
	lat, lng := 43.66, -70.25
	route := &gtfs.Route{Id: "24", ShortName: "24 Eastern"}
	svc := &gtfs.Service{Id: "wk"}
	stopA := &gtfs.Stop{Id: "s1", Code: "101", Name: "STEVENS AVE", Latitude: &lat, Longitude: &lng}
	stopB := &gtfs.Stop{Id: "s2", Code: "102", Name: "STEVENS AVE", Latitude: &lat, Longitude: &lng}

	inbound := gtfs.ScheduledTrip{
		ID: "t1", Route: route, Service: svc, Headsign: "PULSE",
		StopTimes: []gtfs.ScheduledStopTime{{Stop: stopA}},
	}
	outbound := gtfs.ScheduledTrip{
		ID: "t2", Route: route, Service: svc, Headsign: "NORTH GATE",
		StopTimes: []gtfs.ScheduledStopTime{{Stop: stopB}},
	}
	static := &gtfs.Static{
		Routes: []gtfs.Route{*route},
		Stops:  []gtfs.Stop{*stopA, *stopB},
		Trips:  []gtfs.ScheduledTrip{inbound, outbound},
	}

	d := NewDisambiguator(nil, []string{"PULSE"}, nil)
	stops, err := BuildStops(static, d, nil)
	require.NoError(t, err)
	require.Len(t, stops, 2)

	names := map[string]string{}
	for _, s := range stops {
		names[s.ID] = s.Name
	}
	assert.Equal(t, "Stevens Ave (Inbound)", names["s1"])
	assert.Equal(t, "Stevens Ave (Outbound)", names["s2"])
}
