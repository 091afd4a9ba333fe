// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// HistoryStats returns the number of history rows and the newest timestamp
// (ms since epoch, 0 when empty).
func HistoryStats(ctx context.Context, db *gorm.DB) (count int64, newest int64, err error) {
	q := db.WithContext(ctx).Model(&domain.HistoryEntry{})

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		Timestamp int64
	}
	if err = db.WithContext(ctx).Model(&domain.HistoryEntry{}).
		Select("timestamp").Order("timestamp desc").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.Timestamp, nil
}
