package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/repo"
)

// GormKV stores keys in the kv_entries table.
type GormKV struct {
	db *gorm.DB
}

// NewGormKV returns a KV backed by db. The kv_entries table must exist.
func NewGormKV(db *gorm.DB) *GormKV { return &GormKV{db: db} }

func (s *GormKV) Get(ctx context.Context, key string) (string, error) {
	v, err := repo.GetValue(ctx, s.db, key)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *GormKV) Set(ctx context.Context, key, value string) error {
	return repo.SetValue(ctx, s.db, key, value)
}

func (s *GormKV) Delete(ctx context.Context, key string) error {
	return repo.DeleteValue(ctx, s.db, key)
}

// GormHistory stores verdicts in the history_entries table.
type GormHistory struct {
	db  *gorm.DB
	max int
	now func() time.Time
}

// NewGormHistory returns a History bounded to max entries.
func NewGormHistory(db *gorm.DB, max int) *GormHistory {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &GormHistory{db: db, max: max, now: time.Now}
}

func (s *GormHistory) Append(ctx context.Context, v domain.Verdict) (domain.Verdict, bool, error) {
	if !v.Cacheable() {
		return v, false, nil
	}
	row, err := repo.PrependHistory(ctx, s.db, v, s.now(), s.max)
	if err != nil {
		return v, false, err
	}
	out := v.Clone()
	out.ID = row.ID
	out.Timestamp = row.Timestamp
	return out, true, nil
}

func (s *GormHistory) List(ctx context.Context, limit int) ([]domain.Verdict, error) {
	rows, err := repo.ListHistory(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Verdict, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Verdict())
	}
	return out, nil
}

func (s *GormHistory) Clear(ctx context.Context) error {
	_, err := repo.ClearHistory(ctx, s.db)
	return err
}

func (s *GormHistory) Version(ctx context.Context) (int64, int64, error) {
	return repo.HistoryStats(ctx, s.db)
}
