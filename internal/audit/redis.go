package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prasenjit/antbee/internal/config"
	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/storage"
)

const redisBatch = 200

// RedisSink stores request logs in redis. Each log is a hash field keyed by
// ID, indexed by sorted sets scored by timestamp: one global and one per
// endpoint.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

// DialRedis connects to redis and verifies the connection
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	addr := cfg.Address
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisSink creates a sink writing under the given key prefix
func NewRedisSink(rdb *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "antbee:logs"
	}
	return &RedisSink{rdb: rdb, prefix: prefix}
}

func (s *RedisSink) entriesKey() string { return s.prefix + ":entries" }
func (s *RedisSink) indexKey() string   { return s.prefix + ":index" }
func (s *RedisSink) endpointsKey() string {
	return s.prefix + ":endpoints"
}
func (s *RedisSink) endpointKey(id string) string {
	return s.prefix + ":endpoint:" + id
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// AppendLog stores a log and indexes it
func (s *RedisSink) AppendLog(ctx context.Context, log *models.RequestLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal request log: %w", err)
	}

	z := &redis.Z{Score: score(log.Timestamp), Member: log.ID}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.entriesKey(), log.ID, data)
	pipe.ZAdd(ctx, s.indexKey(), z)
	pipe.ZAdd(ctx, s.endpointKey(log.EndpointID), z)
	pipe.SAdd(ctx, s.endpointsKey(), log.EndpointID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store request log: %w", err)
	}
	return nil
}

// ListLogs returns logs matching the filter, newest first
func (s *RedisSink) ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.RequestLog, error) {
	key := s.indexKey()
	from := "-inf"
	limit := 100
	if filter != nil {
		if filter.EndpointID != "" {
			key = s.endpointKey(filter.EndpointID)
		}
		if !filter.Since.IsZero() {
			from = strconv.FormatFloat(score(filter.Since), 'f', 0, 64)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	ids, err := s.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{Min: from, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}

	logs := make([]*models.RequestLog, 0)
	for start := 0; start < len(ids) && len(logs) < limit; start += redisBatch {
		end := start + redisBatch
		if end > len(ids) {
			end = len(ids)
		}

		values, err := s.rdb.HMGet(ctx, s.entriesKey(), ids[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load request logs: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var log models.RequestLog
			if err := json.Unmarshal([]byte(raw), &log); err != nil {
				continue
			}
			if !filter.Matches(&log) {
				continue
			}
			logs = append(logs, &log)
			if len(logs) >= limit {
				break
			}
		}
	}

	return logs, nil
}

// GetLog returns a single log by ID
func (s *RedisSink) GetLog(ctx context.Context, id string) (*models.RequestLog, error) {
	raw, err := s.rdb.HGet(ctx, s.entriesKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("request log %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request log: %w", err)
	}

	var log models.RequestLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("failed to decode request log %s: %w", id, err)
	}
	return &log, nil
}

// ClearLogs deletes every key the sink owns
func (s *RedisSink) ClearLogs(ctx context.Context) error {
	endpoints, err := s.rdb.SMembers(ctx, s.endpointsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list logged endpoints: %w", err)
	}

	keys := []string{s.entriesKey(), s.indexKey(), s.endpointsKey()}
	for _, id := range endpoints {
		keys = append(keys, s.endpointKey(id))
	}

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear request logs: %w", err)
	}
	return nil
}

// PruneBefore deletes logs older than cutoff
func (s *RedisSink) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	upto := "(" + strconv.FormatFloat(score(cutoff), 'f', 0, 64)

	ids, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: upto}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find expired request logs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	endpoints, err := s.rdb.SMembers(ctx, s.endpointsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list logged endpoints: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, s.entriesKey(), ids...)
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", upto)
	for _, id := range endpoints {
		pipe.ZRemRangeByScore(ctx, s.endpointKey(id), "-inf", upto)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune request logs: %w", err)
	}

	return int64(len(ids)), nil
}

// Close closes the redis client
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
