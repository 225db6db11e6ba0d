package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Storage is the local bulk store for the encrypted-at-rest entry cache.
type Storage interface {
	// ReadAll returns every cached entry.
	ReadAll(ctx context.Context) ([]Entry, error)

	// WriteAll atomically replaces the cache with the given entries.
	WriteAll(ctx context.Context, entries []Entry) error
}

// Storage schema versions.
const (
	storageSchemaV1      = 1
	currentStorageSchema = storageSchemaV1
)

// SQLiteStorage implements Storage over a local SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenDB opens the journal database in single-connection mode, which
// avoids "database is locked" errors for local single-device use.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// NewSQLiteStorage binds storage to an open database and ensures the
// schema exists at the current version.
func NewSQLiteStorage(db *sql.DB) (*SQLiteStorage, error) {
	s := &SQLiteStorage{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("journal: failed to create schema_version table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			date TEXT NOT NULL,
			updated_at TEXT,
			mood TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			user_id TEXT NOT NULL DEFAULT '',
			encrypted INTEGER NOT NULL DEFAULT 1,
			restored_at TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("journal: failed to create entries table: %w", err)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", currentStorageSchema)
	if err != nil {
		return fmt.Errorf("journal: failed to set schema version: %w", err)
	}
	return nil
}

// ReadAll returns every cached entry, validated at the boundary.
func (s *SQLiteStorage) ReadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, date, updated_at, mood, tags, user_id, encrypted, restored_at
		FROM entries
	`)
	if err != nil {
		return nil, fmt.Errorf("journal: failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// WriteAll replaces the cache in a single transaction so a crash never
// leaves a partial entry set behind.
func (s *SQLiteStorage) WriteAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("journal: failed to clear entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, title, content, date, updated_at, mood, tags, user_id, encrypted, restored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("journal: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("journal: failed to encode tags for %s: %w", e.ID, err)
		}
		var updatedAt, restoredAt any
		if e.UpdatedAt != nil {
			updatedAt = e.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		if e.RestoredAt != nil {
			restoredAt = e.RestoredAt.UTC().Format(time.RFC3339Nano)
		}
		encrypted := 0
		if e.Encrypted {
			encrypted = 1
		}
		_, err = stmt.ExecContext(ctx,
			e.ID, e.Title, e.Content, e.Date.UTC().Format(time.RFC3339Nano),
			updatedAt, e.Mood, string(tags), e.UserID, encrypted, restoredAt)
		if err != nil {
			return fmt.Errorf("journal: failed to insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: failed to commit entries: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		date       string
		updatedAt  sql.NullString
		restoredAt sql.NullString
		tags       string
		encrypted  int
	)
	if err := rows.Scan(&e.ID, &e.Title, &e.Content, &date, &updatedAt, &e.Mood, &tags, &e.UserID, &encrypted, &restoredAt); err != nil {
		return Entry{}, fmt.Errorf("journal: failed to scan entry: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: entry has malformed date %q: %w", date, err)
	}
	e.Date = parsed

	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return Entry{}, fmt.Errorf("journal: entry has malformed updated_at %q: %w", updatedAt.String, err)
		}
		e.UpdatedAt = &t
	}
	if restoredAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, restoredAt.String)
		if err != nil {
			return Entry{}, fmt.Errorf("journal: entry has malformed restored_at %q: %w", restoredAt.String, err)
		}
		e.RestoredAt = &t
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return Entry{}, fmt.Errorf("journal: entry has malformed tags: %w", err)
	}
	e.Encrypted = encrypted == 1
	return e, nil
}
