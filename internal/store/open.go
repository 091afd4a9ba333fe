package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/config"
)

// NewRedisClient builds a client from cfg and pings it.
func NewRedisClient(ctx context.Context, cfg config.StorageConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// Build selects the KV and History implementations for cfg.Backend. db is
// used for the gorm backend and rdb for the redis backend.
func Build(cfg config.StorageConfig, historyMax int, db *gorm.DB, rdb redis.UniversalClient) (KV, History, error) {
	switch cfg.Backend {
	case "", "gorm":
		if db == nil {
			return nil, nil, fmt.Errorf("store: gorm backend requires a database")
		}
		return NewGormKV(db), NewGormHistory(db, historyMax), nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("store: redis backend requires a client")
		}
		return NewRedisKV(rdb, cfg.RedisPrefix), NewRedisHistory(rdb, cfg.RedisPrefix, historyMax), nil
	default:
		return nil, nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}
