package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker.gpmetro.org/internal/models"
)

// replaceHash writes items into a temporary hash and renames it over the
// target, so readers always see either the previous snapshot or the new one,
// never a partially written hash.
func replaceHash[T any](ctx context.Context, client *redis.Client, key string, items []T, id func(T) string) error {
	if len(items) == 0 {
		return client.Del(ctx, key).Err()
	}

	temp := key + tempKeySuffix
	pairs := make([]any, 0, len(items)*2)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling %s entry: %w", key, err)
		}
		pairs = append(pairs, id(item), data)
	}

	pipe := client.TxPipeline()
	pipe.Del(ctx, temp)
	pipe.HSet(ctx, temp, pairs...)
	pipe.Rename(ctx, temp, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func hashValues[T any](ctx context.Context, client *redis.Client, key string) ([]T, error) {
	raw, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raw))
	for _, v := range raw {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("unmarshaling %s entry: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func hashValue[T any](ctx context.Context, client *redis.Client, key, field string) (*T, error) {
	v, err := client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var item T
	if err := json.Unmarshal([]byte(v), &item); err != nil {
		return nil, fmt.Errorf("unmarshaling %s entry: %w", key, err)
	}
	return &item, nil
}

// SetRoutes replaces the route table. The hash holds the slim route records
// used for joins; the full records with encoded shapes are stored separately
// for the routes endpoint.
func (s *Store) SetRoutes(ctx context.Context, routes []models.RouteWithShape) error {
	slim := make([]models.Route, len(routes))
	for i, r := range routes {
		slim[i] = r.Route
	}
	if err := replaceHash(ctx, s.client, routesKey, slim, func(r models.Route) string { return r.ID }); err != nil {
		return err
	}

	data, err := json.Marshal(routes)
	if err != nil {
		return fmt.Errorf("marshaling routes with shapes: %w", err)
	}
	return s.client.Set(ctx, routesWithShapesKey, data, 0).Err()
}

// Routes returns every route in the current snapshot.
func (s *Store) Routes(ctx context.Context) ([]models.Route, error) {
	return hashValues[models.Route](ctx, s.client, routesKey)
}

// RoutesWithShapes returns every route along with its encoded polylines.
func (s *Store) RoutesWithShapes(ctx context.Context) ([]models.RouteWithShape, error) {
	v, err := s.client.Get(ctx, routesWithShapesKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var routes []models.RouteWithShape
	if err := json.Unmarshal([]byte(v), &routes); err != nil {
		return nil, fmt.Errorf("unmarshaling routes with shapes: %w", err)
	}
	return routes, nil
}

// Route returns one route, or ErrNotFound.
func (s *Store) Route(ctx context.Context, routeID string) (*models.Route, error) {
	return hashValue[models.Route](ctx, s.client, routesKey, routeID)
}

// SetTrips replaces the trip table.
func (s *Store) SetTrips(ctx context.Context, trips []models.Trip) error {
	return replaceHash(ctx, s.client, tripsKey, trips, func(t models.Trip) string { return t.ID })
}

// Trip returns one trip, or ErrNotFound.
func (s *Store) Trip(ctx context.Context, tripID string) (*models.Trip, error) {
	return hashValue[models.Trip](ctx, s.client, tripsKey, tripID)
}

// SetStops replaces the stop table and the code-to-ID lookup used by the
// rider-facing endpoints, which address stops by their posted code.
func (s *Store) SetStops(ctx context.Context, stops []models.Stop) error {
	if err := replaceHash(ctx, s.client, stopsKey, stops, func(st models.Stop) string { return st.ID }); err != nil {
		return err
	}

	type codeEntry struct {
		code string
		id   string
	}
	entries := make([]codeEntry, 0, len(stops))
	for _, st := range stops {
		if st.Code != "" {
			entries = append(entries, codeEntry{code: st.Code, id: st.ID})
		}
	}
	if len(entries) == 0 {
		return s.client.Del(ctx, stopCodesKey).Err()
	}

	temp := stopCodesKey + tempKeySuffix
	pairs := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		pairs = append(pairs, e.code, e.id)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, temp)
	pipe.HSet(ctx, temp, pairs...)
	pipe.Rename(ctx, temp, stopCodesKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing %s: %w", stopCodesKey, err)
	}
	return nil
}

// Stops returns every stop in the current snapshot.
func (s *Store) Stops(ctx context.Context) ([]models.Stop, error) {
	return hashValues[models.Stop](ctx, s.client, stopsKey)
}

// Stop returns one stop by ID, or ErrNotFound.
func (s *Store) Stop(ctx context.Context, stopID string) (*models.Stop, error) {
	return hashValue[models.Stop](ctx, s.client, stopsKey, stopID)
}

// StopIDByCode resolves a rider-facing stop code to the internal stop ID.
func (s *Store) StopIDByCode(ctx context.Context, code string) (string, error) {
	id, err := s.client.HGet(ctx, stopCodesKey, code).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return id, err
}

// SetStopsLastUpdatedAt records when the stop table last changed. Served as
// the Last-Modified validator for the stop list.
func (s *Store) SetStopsLastUpdatedAt(ctx context.Context, t time.Time) error {
	return s.client.Set(ctx, stopsLastUpdatedAtKey, formatTimestamp(t), 0).Err()
}

// StopsLastUpdatedAt returns the stop table timestamp, or the zero time if
// no static load has completed yet.
func (s *Store) StopsLastUpdatedAt(ctx context.Context) (time.Time, error) {
	v, err := s.client.Get(ctx, stopsLastUpdatedAtKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(v)
}

// StaticETag returns the entity tag of the last ingested static bundle, or
// "" when none has been recorded.
func (s *Store) StaticETag(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, staticETagKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// SetStaticETag records the entity tag of the static bundle just ingested.
func (s *Store) SetStaticETag(ctx context.Context, etag string) error {
	return s.client.Set(ctx, staticETagKey, etag, 0).Err()
}
