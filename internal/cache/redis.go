package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"iot-monitor/internal/models"

	"github.com/go-redis/redis/v8"
)

// Key layout:
//
//	current:<id>                 latest reading (JSON)
//	history:<id>                 hash of timestamp -> history entry (JSON)
//	history:<id>:index           sorted set of timestamps, all scores 0 (lexicographic order)
//	history:<id>:state:<state>   same, restricted to entries with that state label
//	threshold:<id>               threshold (JSON)
func currentKey(id string) string { return "current:" + id }
func historyKey(id string) string { return "history:" + id }
func indexKey(id string) string { return "history:" + id + ":index" }
func stateKey(id, state string) string { return "history:" + id + ":state:" + state }
func thresholdKey(id string) string { return "threshold:" + id }

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type RedisClient struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisClient(ctx context.Context, opts RedisOptions, log *slog.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &RedisClient{
		client: client,
		log:    log,
	}, nil
}

func (r *RedisClient) Current(ctx context.Context, ids []string) (map[string]models.Reading, error) {
	out := make(map[string]models.Reading, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = currentKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get current readings from Redis: %w", err)
	}

	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var reading models.Reading
		if err := json.Unmarshal([]byte(data), &reading); err != nil {
			r.log.Warn("skipping malformed reading", "key", keys[i], "error", err)
			continue
		}
		out[ids[i]] = reading
	}
	return out, nil
}

func (r *RedisClient) Range(ctx context.Context, id, startKey, endKey string) ([]models.RawRecord, error) {
	stamps, err := r.client.ZRangeByLex(ctx, indexKey(id), &redis.ZRangeBy{
		Min: "[" + startKey,
		Max: "[" + endKey,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history range: %w", err)
	}
	return r.records(ctx, id, stamps)
}

func (r *RedisClient) LastN(ctx context.Context, id string, n int) ([]models.RawRecord, error) {
	if n <= 0 {
		return []models.RawRecord{}, nil
	}
	stamps, err := r.client.ZRange(ctx, indexKey(id), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent history keys: %w", err)
	}
	return r.records(ctx, id, stamps)
}

func (r *RedisClient) ByState(ctx context.Context, id, state string) ([]models.RawRecord, error) {
	stamps, err := r.client.ZRange(ctx, stateKey(id, state), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s history keys: %w", state, err)
	}
	records, err := r.records(ctx, id, stamps)
	if err != nil {
		return nil, err
	}

	// The index is only a hint; the stored label decides.
	out := records[:0]
	for _, rec := range records {
		if rec.State == state {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisClient) records(ctx context.Context, id string, stamps []string) ([]models.RawRecord, error) {
	records := make([]models.RawRecord, 0, len(stamps))
	if len(stamps) == 0 {
		return records, nil
	}

	values, err := r.client.HMGet(ctx, historyKey(id), stamps...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history entries: %w", err)
	}

	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue // index entry without a payload
		}
		var rec models.RawRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			r.log.Warn("skipping malformed history entry", "sensor", id, "timestamp", stamps[i], "error", err)
			continue
		}
		rec.Timestamp = stamps[i]
		records = append(records, rec)
	}
	return records, nil
}

func (r *RedisClient) Threshold(ctx context.Context, id string) (models.Threshold, bool, error) {
	data, err := r.client.Get(ctx, thresholdKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Threshold{}, false, nil
	}
	if err != nil {
		return models.Threshold{}, false, fmt.Errorf("failed to get threshold from Redis: %w", err)
	}

	var t models.Threshold
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		r.log.Warn("ignoring malformed threshold", "sensor", id, "error", err)
		return models.Threshold{}, false, nil
	}
	return t, true, nil
}

func (r *RedisClient) SetThreshold(ctx context.Context, id string, t models.Threshold) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal threshold: %w", err)
	}
	if err := r.client.Set(ctx, thresholdKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store threshold in Redis: %w", err)
	}
	return nil
}

// Record writes a reading as the sensor's current value and appends it to its history.
func (r *RedisClient) Record(ctx context.Context, id string, reading models.Reading, state string) error {
	current, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	entry, err := json.Marshal(models.RawRecord{
		Timestamp: reading.Timestamp,
		Current:   reading.Current,
		Power:     reading.Power,
		State:     state,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, currentKey(id), current, 0)
		pipe.HSet(ctx, historyKey(id), reading.Timestamp, entry)
		pipe.ZAdd(ctx, indexKey(id), &redis.Z{Member: reading.Timestamp})
		pipe.ZAdd(ctx, stateKey(id, state), &redis.Z{Member: reading.Timestamp})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record reading in Redis: %w", err)
	}
	return nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
