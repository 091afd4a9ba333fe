package domain

import (
	"time"
)

// Storage-surface keys. They are flat strings shared by every KV backend.
const (
	KeyLastVerdict = "lastFactCheckResult"
	KeyContextual  = "isContextualCheck"
	KeyCredential  = "geminiApiKey"
	KeyOnboarding  = "hasSeenOnboarding"
	KeyHistory     = "veritasHistory"
)

// HistoryEntry is a committed, non-error verdict. Rows are ordered newest
// first by Timestamp and truncated to a fixed maximum on insert.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ClaimKey: normalized claim text, indexed for lookups.
//   - Timestamp: commit time in ms since epoch; indexed for ordering.
//   - Reasoning / Sources: stored as JSON text via the gorm json serializer.
type HistoryEntry struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Flag      Flag      `json:"flag"       gorm:"type:varchar(16);not null;check:flag IN ('Fact','Misinformation','Caution')"`
	Claim     string    `json:"claim"      gorm:"type:text;not null"`
	ClaimKey  string    `json:"-"          gorm:"type:varchar(512);not null;index:idx_history_claim_key"`
	Reasoning []string  `json:"reasoning"  gorm:"type:text;serializer:json"`
	Sources   []Source  `json:"sources"    gorm:"type:text;serializer:json"`
	LocalOnly bool      `json:"local_only"`
	Notice    string    `json:"notice,omitempty" gorm:"type:text"`
	Backend   Backend   `json:"backend"    gorm:"type:varchar(16)"`
	Timestamp int64     `json:"timestamp"  gorm:"not null;index:idx_history_ts"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for HistoryEntry.
func (HistoryEntry) TableName() string { return "history_entries" }

// NewHistoryEntry stamps v with ts and converts it to a persisted row.
func NewHistoryEntry(id string, v Verdict, ts time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		Flag:      v.Flag,
		Claim:     v.Claim,
		ClaimKey:  NormalizeClaim(v.Claim),
		Reasoning: append([]string(nil), v.ReasoningBullets...),
		Sources:   append([]Source(nil), v.Sources...),
		LocalOnly: v.LocalOnly,
		Notice:    v.Notice,
		Backend:   v.Backend,
		Timestamp: ts.UnixMilli(),
		CreatedAt: ts.UTC(),
	}
}

// Verdict converts a history row back to a Verdict value.
func (h HistoryEntry) Verdict() Verdict {
	return Verdict{
		ID:               h.ID,
		Flag:             h.Flag,
		Claim:            h.Claim,
		ReasoningBullets: append([]string(nil), h.Reasoning...),
		Sources:          append([]Source(nil), h.Sources...),
		Timestamp:        h.Timestamp,
		LocalOnly:        h.LocalOnly,
		Notice:           h.Notice,
		Backend:          h.Backend,
	}
}

// KVEntry is one row of the durable key-value store.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(191);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }
