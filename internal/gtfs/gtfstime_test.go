package gtfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"00:00:00", 0},
		{"01:23:45", time.Hour + 23*time.Minute + 45*time.Second},
		{"9:05:00", 9*time.Hour + 5*time.Minute},
		// extended hours for trips running past midnight
		{"25:00:00", 25 * time.Hour},
		{"27:59:59", 27*time.Hour + 59*time.Minute + 59*time.Second},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.value)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}
}

func TestParseTimeOfDayRejectsMalformed(t *testing.T) {
	for _, value := range []string{
		"",
		"24:00",     // missing seconds
		"12:60:00",  // minutes out of range
		"12:00:60",  // seconds out of range
		"12:5:00",   // minutes must be two digits
		"12:00:5",   // seconds must be two digits
		"noon",
		"12:00:00 ", // trailing whitespace
		"-1:00:00",
	} {
		_, err := ParseTimeOfDay(value)
		assert.Error(t, err, value)
	}
}

func TestTimestamp(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	offset, err := ParseTimeOfDay("08:30:00")
	require.NoError(t, err)

	got, err := Timestamp("20240110", offset, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 10, 13, 30, 0, 0, time.UTC), got.UTC())
}

func TestTimestampAcrossDSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-03-10: clocks jump from 02:00 EST to 03:00 EDT. Midnight is
	// 05:00 UTC, and the offset counts absolute hours from that instant,
	// so eight hours later is 13:00 UTC regardless of the jump.
	offset, err := ParseTimeOfDay("08:00:00")
	require.NoError(t, err)

	got, err := Timestamp("20240310", offset, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC), got.UTC())
}

func TestTimestampExtendedHoursCrossMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	offset, err := ParseTimeOfDay("25:15:00")
	require.NoError(t, err)

	got, err := Timestamp("20231001", offset, loc)
	require.NoError(t, err)
	// 01:15 the next calendar morning, still attached to Oct 1 service
	assert.Equal(t, time.Date(2023, 10, 2, 5, 15, 0, 0, time.UTC), got.UTC())
}

func TestTimestampRejectsBadServiceDate(t *testing.T) {
	loc := time.UTC
	_, err := Timestamp("2024-01-10", time.Hour, loc)
	assert.Error(t, err)

	_, err = Timestamp("20241301", time.Hour, loc)
	assert.Error(t, err)
}

func TestServiceDateRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	day, err := ParseServiceDate("20240501", loc)
	require.NoError(t, err)
	assert.Equal(t, "20240501", FormatServiceDate(day, loc))

	// an instant late in the UTC evening is still the same local date
	evening := time.Date(2024, 5, 2, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "20240501", FormatServiceDate(evening, loc))
}
