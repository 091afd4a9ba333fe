package repo

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test and migrates the
// given models (all models when none are given).
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) == 0 {
		migrate = []any{&domain.HistoryEntry{}, &domain.KVEntry{}, &domain.Idempotency{}}
	}
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func fact(claim string) domain.Verdict {
	return domain.Verdict{
		Flag:             domain.FlagFact,
		Claim:            claim,
		ReasoningBullets: []string{"ok"},
		Sources:          domain.NoExternalSources(),
		Backend:          domain.BackendCloud,
	}
}
