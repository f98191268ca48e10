// Package store persists the transit snapshot and the live prediction index
// in Redis. Static tables are replaced atomically via temp-key renames; stop
// time data is keyed by serviceDate:tripId:stopId and indexed per stop in a
// sorted set scored by epoch milliseconds.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	routesKey           = "routes"
	routesWithShapesKey = "routes_with_shapes"
	tripsKey            = "trips"
	stopsKey            = "stops"
	stopCodesKey        = "stop_codes"

	alertsKey                    = "alerts"
	vehiclePositionsKey          = "vehicle_positions"
	vehiclePositionsUpdatedAtKey = "vehicle_positions_updated_at"

	stopTimeInstancesKey = "stop_time_instances"
	stopTimeUpdatesKey   = "stop_time_updates"
	stopTimeIndexPrefix  = "stop_time_sorted_set:"
	stopUpdatedAtKey     = "stop_updated_at"

	stopsLastUpdatedAtKey = "stops_last_updated_at"
	staticETagKey         = "static_etag"

	tempKeySuffix = ":loading"
)

// timestampFormat is the stored form of freshness markers. It matches the
// HTTP date format so handlers can echo markers into Last-Modified headers
// without reformatting.
const timestampFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a Redis client with the application's key schema.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis using a redis:// URL and returns a Store. The
// connection pool is shared by every feeder and request handler in the
// process.
func New(redisURL string, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 10 * time.Second
	opts.MaxRetries = 3

	return &Store{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// PoolStats exposes the connection pool statistics for metrics collection.
func (s *Store) PoolStats() *redis.PoolStats {
	return s.client.PoolStats()
}

func stopTimeIndexKey(stopID string) string {
	return stopTimeIndexPrefix + stopID
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func parseTimestamp(v string) (time.Time, error) {
	return time.Parse(timestampFormat, v)
}
