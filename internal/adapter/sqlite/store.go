package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store holds the SQLite connection backing the repositories
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dbPath. A zero
// busyTimeout uses 5s.
func Open(dbPath string, busyTimeout time.Duration) (*Store, error) {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	timeoutMs := busyTimeout.Milliseconds()
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dbPath, timeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout = %d", timeoutMs),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Timestamps are unix milliseconds
		`CREATE TABLE IF NOT EXISTS checkpoints (
			url TEXT PRIMARY KEY,
			cursor INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT -1,
			etag TEXT,
			last_error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_checkpoints_updated_at ON checkpoints(updated_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
