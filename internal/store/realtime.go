package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker.gpmetro.org/internal/models"
)

const cleanupBatchSize = 100

// SetStopTimeInstances writes scheduled stop visits. Both the JSON record
// and the index score use NX semantics, so re-materializing an already
// stored visit never changes its scheduled time and never clobbers a live
// prediction score.
func (s *Store) SetStopTimeInstances(ctx context.Context, instances []models.StopTimeInstance) error {
	if len(instances) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, inst := range instances {
		data, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("marshaling stop time instance: %w", err)
		}
		field := inst.Field()
		pipe.HSetNX(ctx, stopTimeInstancesKey, field, data)
		pipe.ZAddNX(ctx, stopTimeIndexKey(inst.StopID), redis.Z{
			Score:  float64(inst.ScheduledTime),
			Member: field,
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetStopTimeUpdates applies live predictions. Update records land first,
// then index re-scores, then the per-stop freshness markers, in that order
// within one pipeline. The XX flag confines re-scoring to visits the
// materializer has already indexed, so a prediction for an unknown trip
// cannot invent an entry. Markers go last so a reader that sees a fresh
// marker is guaranteed to see the data writes that preceded it.
func (s *Store) SetStopTimeUpdates(ctx context.Context, updates []models.StopTimeUpdate, updatedAt time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	stamp := formatTimestamp(updatedAt)
	touched := make(map[string]struct{}, len(updates))

	pipe := s.client.Pipeline()
	for _, upd := range updates {
		data, err := json.Marshal(upd)
		if err != nil {
			return fmt.Errorf("marshaling stop time update: %w", err)
		}
		field := upd.Field()
		pipe.HSet(ctx, stopTimeUpdatesKey, field, data)
		pipe.ZAddXX(ctx, stopTimeIndexKey(upd.StopID), redis.Z{
			Score:  float64(upd.PredictedTime),
			Member: field,
		})
		touched[upd.StopID] = struct{}{}
	}
	for stopID := range touched {
		pipe.HSet(ctx, stopUpdatedAtKey, stopID, stamp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Predictions returns up to limit upcoming visits at a stop with effective
// time at or after since, merged with any live updates and ordered by
// effective time. Index members whose instance record is missing (a cleanup
// race) are skipped.
func (s *Store) Predictions(ctx context.Context, stopID string, since time.Time, limit int) ([]models.LiveStopTimeInstance, error) {
	fields, err := s.client.ZRangeByScore(ctx, stopTimeIndexKey(stopID), &redis.ZRangeBy{
		Min:    strconv.FormatInt(since.UnixMilli(), 10),
		Max:    "+inf",
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	instVals, err := s.client.HMGet(ctx, stopTimeInstancesKey, fields...).Result()
	if err != nil {
		return nil, err
	}
	updVals, err := s.client.HMGet(ctx, stopTimeUpdatesKey, fields...).Result()
	if err != nil {
		return nil, err
	}

	results := make([]models.LiveStopTimeInstance, 0, len(fields))
	for i := range fields {
		raw, ok := instVals[i].(string)
		if !ok {
			continue
		}
		var inst models.StopTimeInstance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			return nil, fmt.Errorf("unmarshaling stop time instance: %w", err)
		}

		live := models.LiveStopTimeInstance{
			StopTimeInstance: inst,
			PredictedTime:    inst.ScheduledTime,
			Status:           models.StatusScheduled,
		}
		if rawUpd, ok := updVals[i].(string); ok {
			var upd models.StopTimeUpdate
			if err := json.Unmarshal([]byte(rawUpd), &upd); err != nil {
				return nil, fmt.Errorf("unmarshaling stop time update: %w", err)
			}
			live.PredictedTime = upd.PredictedTime
			live.Status = upd.Status
		}
		results = append(results, live)
	}
	return results, nil
}

// StopUpdatedAt returns when live data for a stop last changed, or the zero
// time if the stop has never received an update.
func (s *Store) StopUpdatedAt(ctx context.Context, stopID string) (time.Time, error) {
	v, err := s.client.HGet(ctx, stopUpdatedAtKey, stopID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(v)
}

// CleanupStopTimes removes stop visits whose effective time is before the
// cutoff. Each per-stop index is drained in small batches so the loop never
// holds Redis for long; the index entry goes last so a concurrent read
// cannot find a member whose records were already gone.
func (s *Store) CleanupStopTimes(ctx context.Context, before time.Time) error {
	cutoff := strconv.FormatInt(before.UnixMilli(), 10)

	iter := s.client.Scan(ctx, 0, stopTimeIndexPrefix+"*", cleanupBatchSize).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		for {
			fields, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
				Min:    "-inf",
				Max:    "(" + cutoff,
				Offset: 0,
				Count:  cleanupBatchSize,
			}).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				break
			}

			members := make([]any, len(fields))
			for i, f := range fields {
				members[i] = f
			}
			pipe := s.client.Pipeline()
			pipe.HDel(ctx, stopTimeInstancesKey, fields...)
			pipe.HDel(ctx, stopTimeUpdatesKey, fields...)
			pipe.ZRem(ctx, indexKey, members...)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			if len(fields) < cleanupBatchSize {
				break
			}
		}
	}
	return iter.Err()
}

// SetVehiclePositions replaces the vehicle position snapshot together with
// its freshness marker. The two are written in one transaction so the ETag
// the handlers derive from the marker always matches the payload.
func (s *Store) SetVehiclePositions(ctx context.Context, vehicles []models.VehiclePosition, updatedAt time.Time) error {
	if vehicles == nil {
		vehicles = []models.VehiclePosition{}
	}
	data, err := json.Marshal(vehicles)
	if err != nil {
		return fmt.Errorf("marshaling vehicle positions: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, vehiclePositionsKey, data, 0)
	pipe.Set(ctx, vehiclePositionsUpdatedAtKey, formatTimestamp(updatedAt), 0)
	_, err = pipe.Exec(ctx)
	return err
}

// VehiclePositions returns the current vehicle snapshot and its timestamp.
func (s *Store) VehiclePositions(ctx context.Context) ([]models.VehiclePosition, time.Time, error) {
	v, err := s.client.Get(ctx, vehiclePositionsKey).Result()
	if err == redis.Nil {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var vehicles []models.VehiclePosition
	if err := json.Unmarshal([]byte(v), &vehicles); err != nil {
		return nil, time.Time{}, fmt.Errorf("unmarshaling vehicle positions: %w", err)
	}

	updatedAt, err := s.VehiclePositionsUpdatedAt(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	return vehicles, updatedAt, nil
}

// VehiclePositionsRaw returns the stored vehicle snapshot JSON without
// decoding it, so the HTTP path can pass the payload through as written.
// Returns an empty array when no snapshot exists.
func (s *Store) VehiclePositionsRaw(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, vehiclePositionsKey).Result()
	if err == redis.Nil {
		return "[]", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// VehiclePositionsUpdatedAt returns the vehicle snapshot timestamp, or the
// zero time when no snapshot has been written.
func (s *Store) VehiclePositionsUpdatedAt(ctx context.Context) (time.Time, error) {
	v, err := s.client.Get(ctx, vehiclePositionsUpdatedAtKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(v)
}

// SetAlerts replaces the service alert snapshot.
func (s *Store) SetAlerts(ctx context.Context, alerts []models.Alert) error {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshaling alerts: %w", err)
	}
	return s.client.Set(ctx, alertsKey, data, 0).Err()
}

// Alerts returns the current service alerts, empty when none are stored.
func (s *Store) Alerts(ctx context.Context) ([]models.Alert, error) {
	v, err := s.client.Get(ctx, alertsKey).Result()
	if err == redis.Nil {
		return []models.Alert{}, nil
	}
	if err != nil {
		return nil, err
	}
	var alerts []models.Alert
	if err := json.Unmarshal([]byte(v), &alerts); err != nil {
		return nil, fmt.Errorf("unmarshaling alerts: %w", err)
	}
	return alerts, nil
}
