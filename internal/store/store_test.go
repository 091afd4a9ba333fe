package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// newRedis returns a client for REDIS_ADDR or skips the test.
func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(context.Background(), config.StorageConfig{RedisAddr: addr})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func verdict(claim string, flag domain.Flag) domain.Verdict {
	return domain.Verdict{
		Flag:             flag,
		Claim:            claim,
		ReasoningBullets: []string{"r"},
		Sources:          domain.NoExternalSources(),
	}
}

type backend struct {
	name string
	kv   KV
	hist func(max int) History
}

func backends(t *testing.T) []backend {
	db := newTestDB(t)
	out := []backend{{
		name: "gorm",
		kv:   NewGormKV(db),
		hist: func(max int) History { return NewGormHistory(db, max) },
	}}
	if os.Getenv("REDIS_ADDR") != "" {
		rdb := newRedis(t)
		prefix := fmt.Sprintf("veritas-test:%d:", time.Now().UnixNano())
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := rdb.Keys(ctx, prefix+"*").Result()
			if len(keys) > 0 {
				rdb.Del(ctx, keys...)
			}
		})
		out = append(out, backend{
			name: "redis",
			kv:   NewRedisKV(rdb, prefix),
			hist: func(max int) History { return NewRedisHistory(rdb, prefix+fmt.Sprint(max)+":", max) },
		})
	}
	return out
}

func TestKV_Contract(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.kv.Set(ctx, "k", "v1"))
			require.NoError(t, b.kv.Set(ctx, "k", "v2"))
			got, err := b.kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", got)

			require.NoError(t, b.kv.Delete(ctx, "k"))
			_, err = b.kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestHistory_BoundedNewestFirst(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := b.hist(3)
			for i := 0; i < 4; i++ {
				stored, ok, err := h.Append(ctx, verdict(fmt.Sprintf("c%d", i), domain.FlagFact))
				require.NoError(t, err)
				require.True(t, ok)
				assert.NotZero(t, stored.Timestamp)
				assert.NotEmpty(t, stored.ID)
			}
			list, err := h.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "c3", list[0].Claim)
			assert.Equal(t, "c1", list[2].Claim)

			n, newest, err := h.Version(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)
			assert.Equal(t, list[0].Timestamp, newest)

			limited, err := h.List(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestHistory_IgnoresErrorVerdicts(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := b.hist(20)
			_, ok, err := h.Append(ctx, domain.ErrorVerdict("c", "boom", "dbg"))
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = h.Append(ctx, domain.LoadingVerdict("c"))
			require.NoError(t, err)
			assert.False(t, ok)

			list, err := h.List(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestHistory_Clear(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h := b.hist(20)
			_, _, _ = h.Append(ctx, verdict("a", domain.FlagCaution))
			require.NoError(t, h.Clear(ctx))
			list, err := h.List(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, list)
			n, _, err := h.Version(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestSurface(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewSurface(b.kv)

			_, _, ok, err := s.LastVerdict(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetLastVerdict(ctx, domain.LoadingVerdict("c"), true))
			v, contextual, ok, err := s.LastVerdict(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, domain.FlagLoading, v.Flag)
			assert.True(t, contextual)

			require.NoError(t, s.SetLastVerdict(ctx, verdict("c", domain.FlagFact), false))
			v, contextual, _, _ = s.LastVerdict(ctx)
			assert.Equal(t, domain.FlagFact, v.Flag)
			assert.False(t, contextual)

			key, err := s.Credential(ctx)
			require.NoError(t, err)
			assert.Empty(t, key)
			require.NoError(t, s.SetCredential(ctx, "secret"))
			key, _ = s.Credential(ctx)
			assert.Equal(t, "secret", key)
			require.NoError(t, s.ClearCredential(ctx))
			key, _ = s.Credential(ctx)
			assert.Empty(t, key)

			seen, err := s.Onboarded(ctx)
			require.NoError(t, err)
			assert.False(t, seen)
			require.NoError(t, s.SetOnboarded(ctx, true))
			seen, _ = s.Onboarded(ctx)
			assert.True(t, seen)
		})
	}
}

func TestBuild(t *testing.T) {
	db := newTestDB(t)

	kv, h, err := Build(config.StorageConfig{Backend: "gorm"}, 5, db, nil)
	require.NoError(t, err)
	assert.IsType(t, &GormKV{}, kv)
	assert.IsType(t, &GormHistory{}, h)

	_, _, err = Build(config.StorageConfig{Backend: "redis"}, 5, db, nil)
	assert.Error(t, err)
	_, _, err = Build(config.StorageConfig{Backend: "gorm"}, 5, nil, nil)
	assert.Error(t, err)
	_, _, err = Build(config.StorageConfig{Backend: "etcd"}, 5, db, nil)
	assert.Error(t, err)
}
