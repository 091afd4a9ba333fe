package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/cache"
	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/delivery"
	"github.com/tbourn/veritas-backend/internal/fetch"
	"github.com/tbourn/veritas-backend/internal/http/handlers"
	"github.com/tbourn/veritas-backend/internal/model"
	"github.com/tbourn/veritas-backend/internal/repo"
	"github.com/tbourn/veritas-backend/internal/services"
	"github.com/tbourn/veritas-backend/internal/store"
)

// app is the wired object graph shared by serve and the one-shot commands.
type app struct {
	cfg config.Config
	db  *gorm.DB
	rdb *redis.Client

	surface    *store.Surface
	verifier   *services.Verifier
	settings   *services.Settings
	dispatcher *services.Dispatcher
	hub        *delivery.Hub
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	db, err := repo.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if err := repo.AutoMigrate(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.Storage.Backend == "redis" {
		rdb, err := store.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
	}
	var rdb redis.UniversalClient
	if a.rdb != nil {
		rdb = a.rdb
	}
	kv, history, err := store.Build(cfg.Storage, cfg.Verify.HistoryMax, db, rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.surface = store.NewSurface(kv)

	cloud := model.NewGemini(model.GeminiOptions{
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
	})
	a.settings = &services.Settings{Surface: a.surface, Cloud: cloud, EnvKey: cfg.Gemini.APIKey}

	a.verifier = &services.Verifier{
		Cache:       cache.New(cfg.Verify.CacheCapacity),
		History:     history,
		Cloud:       cloud,
		Credentials: a.settings,
		Fetcher: fetch.New(fetch.Options{
			MaxContent: cfg.Verify.MaxContentLength,
			MaxImage:   cfg.Verify.MaxImageBytes,
			Timeout:    cfg.Verify.FetchTimeout,
		}),
		Preprocess:    cfg.Verify.Preprocess,
		Dedupe:        cfg.Verify.DedupeInflight,
		MaxClaimRunes: cfg.Verify.MaxClaimRunes,
		MaxImageBytes: cfg.Verify.MaxImageBytes,
	}
	if cfg.Local.Enabled {
		local, err := model.NewOllama(model.OllamaOptions{
			URL:          cfg.Local.URL,
			Model:        cfg.Local.Model,
			ProbeTimeout: cfg.Local.ProbeTimeout,
			Timeout:      cfg.Gemini.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.verifier.Local = local
	}

	a.hub = delivery.NewHub(8)
	var ch delivery.Channel = a.hub
	if cfg.Delivery.WebhookURL != "" {
		ch = delivery.Multi{a.hub, delivery.NewWebhook(cfg.Delivery.WebhookURL)}
	}
	a.dispatcher = &services.Dispatcher{
		Surface: a.surface,
		Channel: ch,
		Retrier: delivery.NewRetrier(cfg.Delivery.Attempts, cfg.Delivery.Backoff),
	}
	return a, nil
}

// handlerDeps exposes the graph to the HTTP layer.
func (a *app) handlerDeps() handlers.Deps {
	return handlers.Deps{
		Verifier:       a.verifier,
		Dispatcher:     a.dispatcher,
		Settings:       a.settings,
		Verdicts:       a.surface,
		Events:         a.hub,
		DB:             a.db,
		IdempotencyTTL: a.cfg.IdempotencyTTL,
	}
}

// purgeIdempotency deletes expired replay records every interval until ctx
// is done.
func (a *app) purgeIdempotency(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, a.db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency records purged")
			}
		}
	}
}

// Close waits for background dispatches and releases connections.
func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
