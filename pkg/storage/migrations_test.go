package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestGetMigrationHistory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	history, err := store.GetMigrationHistory()
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}

	if len(history) != len(migrations) {
		t.Fatalf("GetMigrationHistory() returned %d migrations, want %d", len(history), len(migrations))
	}
	for i, h := range history {
		if h.Version != migrations[i].Version {
			t.Errorf("migration %d version = %d, want %d", i, h.Version, migrations[i].Version)
		}
		if h.Name != migrations[i].Name {
			t.Errorf("migration %d name = %q, want %q", i, h.Name, migrations[i].Name)
		}
		if h.AppliedAt == "" {
			t.Errorf("migration %d applied_at is empty", i)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store1, err := New(dbPath)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	version1, _ := store1.GetSchemaVersion()
	store1.Close()

	store2, err := New(dbPath)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer store2.Close()
	version2, _ := store2.GetSchemaVersion()

	if version1 != version2 {
		t.Errorf("version changed after reopen: %d -> %d", version1, version2)
	}

	history, err := store2.GetMigrationHistory()
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}
	if len(history) != len(migrations) {
		t.Errorf("duplicate migrations recorded: got %d, want %d", len(history), len(migrations))
	}
}

// An early run table had no confirmation or exhaustion columns.
func TestMigrationAddsMissionRunColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`,
		`INSERT INTO schema_migrations (version, name) VALUES (1, 'initial_schema')`,
		`CREATE TABLE mission_runs (id TEXT PRIMARY KEY, started_at DATETIME NOT NULL, ended_at DATETIME NOT NULL,
			status TEXT NOT NULL, utterance TEXT NOT NULL DEFAULT '', sequence TEXT NOT NULL DEFAULT '',
			parse_error TEXT NOT NULL DEFAULT '')`,
		`INSERT INTO mission_runs (id, started_at, ended_at, status) VALUES ('old', '2024-01-01 00:00:00', '2024-01-01 00:05:00', 'succeeded')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	db.Close()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	cols, err := tableColumns(store.DB(), "mission_runs")
	if err != nil {
		t.Fatalf("tableColumns() error = %v", err)
	}
	for _, name := range []string{"rejected", "enter_exhausted", "approach_exhausted", "exit_exhausted"} {
		if !cols[name] {
			t.Errorf("column %s missing after migration", name)
		}
	}

	version, _ := store.GetSchemaVersion()
	if version != len(migrations) {
		t.Errorf("GetSchemaVersion() = %d, want %d", version, len(migrations))
	}
}
