package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/domain"
)

func TestOpenSQLite_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veritas", "state", "veritas.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file: %v", err)
	}
}

func TestOpenSQLite_ParentIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	db, err := OpenSQLite(filepath.Join(blocker, "veritas.db"))
	if err == nil || db != nil {
		t.Fatalf("expected error, got db=%v", db)
	}
	if !strings.Contains(err.Error(), "repo: create") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenSQLite_PragmasAndPool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "veritas.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
	}
	for name, want := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != want {
			t.Errorf("PRAGMA %s = %q; want %q", name, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Errorf("MaxOpenConnections = %d", n)
	}
}

func TestOpen_Drivers(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr string
	}{
		{"default sqlite", config.StorageConfig{DBPath: filepath.Join(t.TempDir(), "a.db")}, ""},
		{"memory dsn", config.StorageConfig{Driver: "sqlite", DBPath: "file:open_drivers?mode=memory&cache=shared"}, ""},
		{"unknown", config.StorageConfig{Driver: "postgres"}, "unsupported driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, err := Open(tc.cfg)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v; want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				t.Cleanup(func() { _ = sqlDB.Close() })
			}
			if err := AutoMigrate(db); err != nil {
				t.Fatalf("AutoMigrate: %v", err)
			}
			for _, tbl := range []any{&domain.HistoryEntry{}, &domain.KVEntry{}, &domain.Idempotency{}} {
				if !db.Migrator().HasTable(tbl) {
					t.Errorf("missing table for %T", tbl)
				}
			}
		})
	}
}
