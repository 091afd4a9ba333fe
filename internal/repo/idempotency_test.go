package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/veritas-backend/internal/domain"
)

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})

	rec, err := GetIdempotency(context.Background(), db, "c1", "/verify/text", "   ", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:        "expired",
		ClientID:  "c1",
		Route:     "/verify/text",
		Key:       "k1",
		Verdict:   fact("x"),
		Status:    200,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	rec, err := GetIdempotency(context.Background(), db, "c1", "/verify/text", "k1", now)
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	rec2, err2 := GetIdempotency(context.Background(), db, "c1", "/verify/text", "missing", now)
	if rec2 != nil || err2 != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec2, err2)
	}
}

func TestCreateIdempotency_SuccessReplayAndDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	ttl := 90 * time.Minute
	start := time.Now().UTC()

	v := domain.ErrorVerdict("claim", "API Error: boom", "status 500")
	rec, err := CreateIdempotency(ctx, db, "c9", "/verify/url", "k9", v, 200, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency error: %v", err)
	}
	if rec.ID == "" || rec.ClientID != "c9" || rec.Route != "/verify/url" || rec.Key != "k9" || rec.Status != 200 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	got, err := GetIdempotency(ctx, db, "c9", "/verify/url", "k9", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.Verdict.Flag != domain.FlagError || got.Verdict.Message != "API Error: boom" {
		t.Fatalf("verdict did not replay: %+v", got.Verdict)
	}

	if _, err := CreateIdempotency(ctx, db, "c9", "/verify/url", "k9", fact("y"), 200, ttl); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// same key on a different route is independent
	if _, err := CreateIdempotency(ctx, db, "c9", "/verify/text", "k9", fact("y"), 200, ttl); err != nil {
		t.Fatalf("expected distinct route to succeed, got %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newTestDB(t, &domain.KVEntry{})
	_, err := CreateIdempotency(context.Background(), db, "cX", "/r", "kX", fact("x"), 200, time.Minute)
	if err == nil {
		t.Fatalf("expected error when table is missing")
	}
	if err == ErrDuplicate {
		t.Fatalf("expected non-duplicate error, got ErrDuplicate")
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := CreateIdempotency(ctx, db, "c", "/r", "live", fact("x"), 200, time.Hour); err != nil {
		t.Fatalf("seed live: %v", err)
	}
	old := &domain.Idempotency{ID: "old", ClientID: "c", Route: "/r", Key: "old", Verdict: fact("x"),
		Status: 200, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed old: %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredIdempotency: n=%d err=%v", n, err)
	}
}
