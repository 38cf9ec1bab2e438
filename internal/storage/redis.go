package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bashkirian/payment-health/pkg/models"
)

const DefaultRedisKey = "payment-health:events"

var errNoDate = errors.New("event has no valid date")

// RedisStorage хранит события в sorted set, score - время события в миллисекундах.
type RedisStorage struct {
	client *redis.Client
	key    string
}

func NewRedisStorage(addr, password string, db int) *RedisStorage {
	return NewRedisStorageWithKey(addr, password, db, DefaultRedisKey)
}

func NewRedisStorageWithKey(addr, password string, db int, key string) *RedisStorage {
	if key == "" {
		key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStorage{client: client, key: key}
}

// Ping checks connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) AddEvent(ctx context.Context, event models.Event) error {
	member, score, err := encodeMember(event)
	if err != nil {
		return err
	}
	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

func (s *RedisStorage) Events(ctx context.Context, q models.Query) ([]models.Event, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: scoreBound(q.From, "-inf"),
		Max: scoreBound(q.To, "+inf"),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	return decodeMembers(members, q), nil
}

func (s *RedisStorage) Prune(ctx context.Context, before time.Time) (int, error) {
	// "(" делает границу исключающей
	n, err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", "("+strconv.FormatInt(before.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return int(n), nil
}

func encodeMember(event models.Event) (string, float64, error) {
	if !event.Date.Valid {
		return "", 0, errNoDate
	}
	b, err := json.Marshal(event)
	if err != nil {
		return "", 0, fmt.Errorf("encode event: %w", err)
	}
	return string(b), float64(event.Date.Time.UnixMilli()), nil
}

// decodeMembers skips members that no longer decode and applies the categorical filter.
func decodeMembers(members []string, q models.Query) []models.Event {
	out := make([]models.Event, 0, len(members))
	for _, m := range members {
		var e models.Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue
		}
		if q.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func scoreBound(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
