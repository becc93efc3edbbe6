// Package localstore provides the durable client-side cache backing the
// sync engine.
//
// Entities are persisted whole as JSON values keyed by (collection, id),
// matching the read-modify-write contract of the sync layer: writes are
// whole-item replacements, never partial patches. A separate meta table
// holds scalar keys such as the last-successful-fetch timestamp.
//
// The database runs in embedded SQLite mode with WAL so concurrent readers
// are tolerated during a write in progress; two writers to the same key
// resolve last-write-wins.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nesttask/nesttask/internal/routine"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Collection names used by the sync layer. Routines embed their slots, so
// slots have no collection of their own.
const (
	CollectionRoutines = "routines"
	CollectionCourses  = "courses"
	CollectionTeachers = "teachers"
)

// metaLastFetched is the meta key holding the freshness timestamp in
// epoch milliseconds.
const metaLastFetched = "last_fetched_ms"

// Store is the durable key-value container for cached entities.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the given path, creating parent directories and
// the schema as needed.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	store, err := localstore.Open(filepath.Join(home, ".nesttask", "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL keeps readers unblocked during writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file location, used by the daemon's file
// watcher to detect out-of-process writes.
func (s *Store) Path() string {
	return s.path
}

// Close closes the store after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_collection ON entities(collection);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// Put writes one entity, replacing any existing value for the same key.
func (s *Store) Put(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
	}

	query := `
	INSERT INTO entities (collection, id, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.ExecContext(ctx, query, collection, id, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

// SaveAll upserts the given id-keyed items in one transaction. Items not
// named are left untouched; use ReplaceAll to mirror a full remote result.
func (s *Store) SaveAll(ctx context.Context, collection string, items map[string]any) error {
	return s.writeAll(ctx, collection, items, false)
}

// ReplaceAll clears the collection and writes the given items in one
// transaction, making the collection exactly mirror the input.
func (s *Store) ReplaceAll(ctx context.Context, collection string, items map[string]any) error {
	return s.writeAll(ctx, collection, items, true)
}

func (s *Store) writeAll(ctx context.Context, collection string, items map[string]any, clear bool) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE collection = ?", collection); err != nil {
			return fmt.Errorf("failed to clear collection %s: %w", collection, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entities (collection, id, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for id, v := range items {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, id, string(data), now); err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetAll returns the raw JSON values of every entity in the collection.
func (s *Store) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT data FROM entities WHERE collection = ? ORDER BY id", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection %s: %w", collection, err)
	}
	return out, nil
}

// GetByID returns the raw JSON value of one entity.
// Returns routine.ErrNotFound if the entity is absent.
func (s *Store) GetByID(ctx context.Context, collection, id string) ([]byte, error) {
	var data string
	err := s.conn.QueryRowContext(ctx,
		"SELECT data FROM entities WHERE collection = ? AND id = ?", collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, routine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return []byte(data), nil
}

// Delete removes one entity. Deleting an absent entity is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM entities WHERE collection = ? AND id = ?", collection, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Clear removes every entity in the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM entities WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of entities in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return n, nil
}

// LastFetched returns the freshness timestamp of the last successful full
// remote fetch. ok is false when no fetch has been recorded.
func (s *Store) LastFetched(ctx context.Context) (t time.Time, ok bool, err error) {
	var value string
	err = s.conn.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", metaLastFetched).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read freshness timestamp: %w", err)
	}
	ms, perr := strconv.ParseInt(value, 10, 64)
	if perr != nil {
		return time.Time{}, false, fmt.Errorf("corrupt freshness timestamp %q: %w", value, perr)
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastFetched records the freshness timestamp in epoch milliseconds.
func (s *Store) SetLastFetched(ctx context.Context, t time.Time) error {
	query := `
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, metaLastFetched, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to set freshness timestamp: %w", err)
	}
	return nil
}

// ClearLastFetched invalidates the freshness timestamp, forcing the next
// load to refetch from the remote backend.
func (s *Store) ClearLastFetched(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM meta WHERE key = ?", metaLastFetched); err != nil {
		return fmt.Errorf("failed to clear freshness timestamp: %w", err)
	}
	return nil
}
