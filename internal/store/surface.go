package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// Surface wraps a KV with typed accessors for the well-known keys.
type Surface struct {
	kv KV
}

// NewSurface returns typed accessors over kv.
func NewSurface(kv KV) *Surface { return &Surface{kv: kv} }

// KV returns the underlying store.
func (s *Surface) KV() KV { return s.kv }

// LastVerdict returns the verdict in the last-verdict slot and whether it
// came from a page-context check. ok is false when the slot is empty.
func (s *Surface) LastVerdict(ctx context.Context) (v domain.Verdict, contextual bool, ok bool, err error) {
	raw, err := s.kv.Get(ctx, domain.KeyLastVerdict)
	if errors.Is(err, ErrNotFound) {
		return domain.Verdict{}, false, false, nil
	}
	if err != nil {
		return domain.Verdict{}, false, false, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return domain.Verdict{}, false, false, err
	}
	contextual, err = s.getBool(ctx, domain.KeyContextual)
	return v, contextual, true, err
}

// SetLastVerdict overwrites the last-verdict slot. The slot is last write
// wins across concurrent runs.
func (s *Surface) SetLastVerdict(ctx context.Context, v domain.Verdict, contextual bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, domain.KeyLastVerdict, string(b)); err != nil {
		return err
	}
	return s.kv.Set(ctx, domain.KeyContextual, strconv.FormatBool(contextual))
}

// Credential returns the stored cloud API key, or "" when none is stored.
func (s *Surface) Credential(ctx context.Context) (string, error) {
	v, err := s.kv.Get(ctx, domain.KeyCredential)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Surface) SetCredential(ctx context.Context, key string) error {
	return s.kv.Set(ctx, domain.KeyCredential, key)
}

func (s *Surface) ClearCredential(ctx context.Context) error {
	return s.kv.Delete(ctx, domain.KeyCredential)
}

// Onboarded reports whether the onboarding screen was dismissed.
func (s *Surface) Onboarded(ctx context.Context) (bool, error) {
	return s.getBool(ctx, domain.KeyOnboarding)
}

func (s *Surface) SetOnboarded(ctx context.Context, seen bool) error {
	return s.kv.Set(ctx, domain.KeyOnboarding, strconv.FormatBool(seen))
}

func (s *Surface) getBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, _ := strconv.ParseBool(raw)
	return b, nil
}
