// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the flat key-value table used for the
// storage surface (last verdict, contextual flag, credential, onboarding).
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// GetValue returns the value stored under key or ErrNotFound.
func GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var e domain.KVEntry
	err := db.WithContext(ctx).First(&e, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// SetValue upserts key = value.
func SetValue(ctx context.Context, db *gorm.DB, key, value string) error {
	e := domain.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

// DeleteValue removes key. Deleting a missing key is not an error.
func DeleteValue(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("`key` = ?", key).Delete(&domain.KVEntry{}).Error
}
