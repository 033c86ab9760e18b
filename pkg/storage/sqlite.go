// Package storage keeps the history of mission runs in SQLite.
package storage

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Store manages SQLite database operations
type Store struct {
	db         *sql.DB
	observers  []Observer
	observerMu sync.RWMutex
}

// ErrStoreClosed indicates the underlying database connection is unavailable.
var ErrStoreClosed = errors.New("storage: closed")

// New opens (creating if needed) the database at dsn and migrates it.
func New(dsn string) (*Store, error) {
	filePath, onDisk := sqliteFilePathFromDSN(dsn)
	if onDisk {
		if dir := filepath.Dir(filePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "create database directory")
			}
		}
		// the database file is owner-only
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "create database file")
		}
		f.Close()
		if err := os.Chmod(filePath, 0o600); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "restrict database file")
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "open database")
	}

	// one writer at a time; WAL lets readers proceed alongside it
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	if !onDisk {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, p)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "run migrations")
	}

	return &Store{db: db}, nil
}

func sqliteFilePathFromDSN(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || dsn == ":memory:" {
		return "", false
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", false
		}
		if u.Query().Get("mode") == "memory" {
			return "", false
		}
		path := strings.TrimSpace(u.Path)
		if path == "" {
			path = strings.TrimSpace(u.Opaque)
		}
		if path == "" || path == ":memory:" {
			return "", false
		}
		return path, true
	}
	if strings.Contains(dsn, "://") {
		return "", false
	}
	return dsn, true
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// AddObserver registers a new observer that will receive storage events.
func (s *Store) AddObserver(observer Observer) {
	s.observerMu.Lock()
	s.observers = append(s.observers, observer)
	s.observerMu.Unlock()
}

// notify fans out events to observers without blocking the writer.
func (s *Store) notify(event Event) {
	s.observerMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observerMu.RUnlock()

	for _, observer := range observers {
		go observer.HandleStorageEvent(event)
	}
}

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Apply   func(db *sql.DB) error
}

// migrations is the ordered list of all migrations
var migrations = []Migration{
	{1, "initial_schema", func(db *sql.DB) error { return nil }},
	{2, "mission_run_columns", ensureMissionRunColumns},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := recordMigration(db, m.Version, m.Name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

func recordMigration(db *sql.DB, version int, name string) error {
	_, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

// GetSchemaVersion returns the current schema version.
func (s *Store) GetSchemaVersion() (int, error) {
	return getSchemaVersion(s.db)
}

// MigrationRecord is one applied migration.
type MigrationRecord struct {
	Version   int
	Name      string
	AppliedAt string
}

// GetMigrationHistory lists applied migrations in version order.
func (s *Store) GetMigrationHistory() ([]MigrationRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query("SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "migration history")
	}
	defer rows.Close()

	var history []MigrationRecord
	for rows.Next() {
		var (
			rec       MigrationRecord
			appliedAt sql.NullString
		)
		if err := rows.Scan(&rec.Version, &rec.Name, &appliedAt); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "scan migration")
		}
		rec.AppliedAt = appliedAt.String
		history = append(history, rec)
	}
	return history, rows.Err()
}

// ensureMissionRunColumns upgrades run tables created before confirmation
// and exhaustion tracking existed.
func ensureMissionRunColumns(db *sql.DB) error {
	cols, err := tableColumns(db, "mission_runs")
	if err != nil {
		return err
	}
	adds := []struct{ name, ddl string }{
		{"rejected", "ALTER TABLE mission_runs ADD COLUMN rejected INTEGER NOT NULL DEFAULT 0"},
		{"enter_exhausted", "ALTER TABLE mission_runs ADD COLUMN enter_exhausted BOOLEAN NOT NULL DEFAULT FALSE"},
		{"approach_exhausted", "ALTER TABLE mission_runs ADD COLUMN approach_exhausted BOOLEAN NOT NULL DEFAULT FALSE"},
		{"exit_exhausted", "ALTER TABLE mission_runs ADD COLUMN exit_exhausted BOOLEAN NOT NULL DEFAULT FALSE"},
	}
	for _, add := range adds {
		if cols[add.name] {
			continue
		}
		if _, err := db.Exec(add.ddl); err != nil {
			return fmt.Errorf("add mission_runs.%s: %w", add.name, err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}
