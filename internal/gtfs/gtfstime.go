// Package gtfs ingests the transit system's static schedule bundle and
// materializes it into the records the prediction store serves.
package gtfs

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// serviceDateLayout is the GTFS calendar date form, yyyymmdd.
const serviceDateLayout = "20060102"

// GTFS hours may exceed 24 for trips that run past midnight of their
// service date, so only minutes and seconds are range-checked here.
var timeOfDayPattern = regexp.MustCompile(`^(\d{1,2}):([0-5]\d):([0-5]\d)$`)

// ParseTimeOfDay converts a GTFS HH:MM:SS local time into an offset from
// midnight of the service date. Anything outside the strict HH:MM:SS shape,
// including missing seconds, is rejected.
func ParseTimeOfDay(value string) (time.Duration, error) {
	m := timeOfDayPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid GTFS time of day %q", value)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

// Timestamp resolves a service date plus a time-of-day offset to an absolute
// instant. The offset is applied to local midnight of the service date in
// the feed's timezone, so the result never depends on the process timezone
// and stays well-defined across DST transitions.
func Timestamp(serviceDate string, offset time.Duration, loc *time.Location) (time.Time, error) {
	day, err := ParseServiceDate(serviceDate, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(offset), nil
}

// ParseServiceDate parses a yyyymmdd service date as local midnight in loc.
func ParseServiceDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(serviceDateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid GTFS service date %q: %w", value, err)
	}
	return t, nil
}

// FormatServiceDate renders t's calendar date in loc as yyyymmdd.
func FormatServiceDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(serviceDateLayout)
}
