// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the verdict
// history log.
//
// The log is newest-first and bounded: PrependHistory inserts a row and
// deletes everything beyond the configured maximum inside one transaction.
// Error verdicts are rejected before reaching the database (and the table
// carries a CHECK constraint as a second line).
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrNotCommittable is returned when a verdict that must never enter history
// (Error or Loading) is offered to PrependHistory.
var ErrNotCommittable = errors.New("verdict is not committable to history")

// staleScanLimit bounds the trim query; SQLite needs a LIMIT with OFFSET.
const staleScanLimit = 1 << 20

// PrependHistory stamps v with now, inserts it, and trims the log to the
// max newest rows. It returns the stored row.
func PrependHistory(ctx context.Context, db *gorm.DB, v domain.Verdict, now time.Time, max int) (*domain.HistoryEntry, error) {
	if !v.Cacheable() {
		return nil, ErrNotCommittable
	}
	var row domain.HistoryEntry

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Timestamps are strictly increasing so newest-first order is total
		// even for commits within the same millisecond.
		var last struct{ Timestamp int64 }
		if err := tx.Model(&domain.HistoryEntry{}).Select("timestamp").
			Order("timestamp desc").Limit(1).Scan(&last).Error; err != nil {
			return err
		}
		ts := now
		if ts.UnixMilli() <= last.Timestamp {
			ts = time.UnixMilli(last.Timestamp + 1)
		}
		row = domain.NewHistoryEntry(uuid.NewString(), v, ts)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if max <= 0 {
			return nil
		}
		var stale []string
		if err := tx.Model(&domain.HistoryEntry{}).
			Order("timestamp desc").
			Offset(max).Limit(staleScanLimit).
			Pluck("id", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		return tx.Where("id IN ?", stale).Delete(&domain.HistoryEntry{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListHistory returns up to limit entries, newest first. A non-positive
// limit returns every row.
func ListHistory(ctx context.Context, db *gorm.DB, limit int) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	q := db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// FindHistoryByClaim returns the newest entry whose normalized claim equals
// key, or ErrNotFound.
func FindHistoryByClaim(ctx context.Context, db *gorm.DB, key string) (*domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	err := db.WithContext(ctx).
		Where("claim_key = ?", key).
		Order("timestamp desc").
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ClearHistory deletes every history row and reports how many were removed.
func ClearHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Where("1 = 1").Delete(&domain.HistoryEntry{})
	return res.RowsAffected, res.Error
}
