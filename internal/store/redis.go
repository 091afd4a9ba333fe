package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// RedisKV stores keys as plain Redis strings under a common prefix.
type RedisKV struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisKV returns a KV whose keys are prefix+key.
func NewRedisKV(rdb redis.UniversalClient, prefix string) *RedisKV {
	return &RedisKV{rdb: rdb, prefix: prefix}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *RedisKV) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

// RedisHistory keeps the log in a Redis list (head = newest), trimmed with
// LTRIM in the same MULTI as the push.
type RedisHistory struct {
	rdb redis.UniversalClient
	key string
	max int
	now func() time.Time
}

// NewRedisHistory returns a History stored in the list prefix+veritasHistory.
func NewRedisHistory(rdb redis.UniversalClient, prefix string, max int) *RedisHistory {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &RedisHistory{rdb: rdb, key: prefix + domain.KeyHistory, max: max, now: time.Now}
}

func (s *RedisHistory) Append(ctx context.Context, v domain.Verdict) (domain.Verdict, bool, error) {
	if !v.Cacheable() {
		return v, false, nil
	}
	out := v.Clone()
	out.ID = uuid.NewString()
	out.Timestamp = s.now().UnixMilli()
	out.Cached = false
	b, err := json.Marshal(out)
	if err != nil {
		return v, false, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.key, b)
		p.LTrim(ctx, s.key, 0, int64(s.max-1))
		return nil
	})
	if err != nil {
		return v, false, err
	}
	return out, true, nil
}

func (s *RedisHistory) List(ctx context.Context, limit int) ([]domain.Verdict, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.rdb.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Verdict, 0, len(raw))
	for _, r := range raw {
		var v domain.Verdict
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RedisHistory) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *RedisHistory) Version(ctx context.Context) (int64, int64, error) {
	n, err := s.rdb.LLen(ctx, s.key).Result()
	if err != nil || n == 0 {
		return 0, 0, err
	}
	head, err := s.rdb.LIndex(ctx, s.key, 0).Result()
	if err != nil {
		return 0, 0, err
	}
	var v domain.Verdict
	if err := json.Unmarshal([]byte(head), &v); err != nil {
		return n, 0, nil
	}
	return n, v.Timestamp, nil
}
