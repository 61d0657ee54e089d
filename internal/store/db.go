// Package store persists profiles, sessions and name changes in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed width so that timestamps stored as text sort chronologically
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New opens the SQLite database at dataSourceName and creates the schema
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer, and ":memory:" databases only live on one connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}

	store := &DB{db}
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the tables that do not exist yet
func (db *DB) Migrate() error {
	migration := `
CREATE TABLE IF NOT EXISTS player_profiles (
    uid TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    last_seen TEXT,
    total_playtime REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_profiles_name ON player_profiles(display_name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    uid TEXT NOT NULL,
    region TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    duration REAL,
    CHECK ((end_time IS NULL) = (duration IS NULL)),
    CHECK (duration IS NULL OR duration >= 0)
);
CREATE INDEX IF NOT EXISTS idx_sessions_uid ON sessions(uid, start_time);
CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(uid) WHERE end_time IS NULL;

CREATE TABLE IF NOT EXISTS name_changes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT NOT NULL,
    old_name TEXT NOT NULL,
    new_name TEXT NOT NULL,
    changed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_name_changes_uid ON name_changes(uid, changed_at);
`
	if _, err := db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrDataInconsistency, value)
	}
	return t, nil
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func fromSeconds(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
