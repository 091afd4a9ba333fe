// Package store adapts the durable backends (GORM or Redis) to the two
// storage contracts the verification pipeline depends on: a flat key-value
// surface and a bounded, newest-first verdict history.
package store

import (
	"context"
	"errors"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// DefaultHistoryMax is the history length used when none is configured.
const DefaultHistoryMax = 20

// ErrNotFound is returned by KV.Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// KV is the durable key-value storage surface. Keys are flat strings.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// History is the bounded verdict log.
type History interface {
	// Append stamps v with the commit time and prepends it, dropping the
	// oldest entries beyond the maximum. Error and Loading verdicts are
	// ignored: ok is false and nothing is written.
	Append(ctx context.Context, v domain.Verdict) (stored domain.Verdict, ok bool, err error)
	// List returns up to limit entries newest first (all when limit <= 0).
	List(ctx context.Context, limit int) ([]domain.Verdict, error)
	Clear(ctx context.Context) error
	// Version returns the entry count and newest timestamp, used for ETags.
	Version(ctx context.Context) (count int64, newest int64, err error)
}
