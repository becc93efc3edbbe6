// Package remote wraps the hosted libSQL backend that owns the routine
// data. It exposes per-collection CRUD, filtered listing, a join fetch of
// a routine together with its slots, and bulk slot insertion with schema
// drift tolerance for the optional display-name columns.
//
// The client is the authoritative side of the sync protocol: ids it
// assigns replace the temporary ids of entities created offline.
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Client talks to the hosted backend over the libsql driver.
type Client struct {
	conn   *sql.DB
	logger *log.Logger

	// Capability negotiation for the optional course_name/teacher_name
	// columns, decided by a single probe instead of per-call
	// error-message matching.
	probeOnce   sync.Once
	extendedOK  bool
	probeLogged bool
}

// Open connects to the hosted backend.
//
// The URL is a libsql connection string, e.g.
// "libsql://nesttask-example.turso.io?authToken=...". The connection is
// verified with a ping before returning.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(url string, logger *log.Logger) (*Client, error) {
	conn, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote connection: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping remote backend: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return NewWithDB(conn, logger), nil
}

// NewWithDB wraps an existing database handle. This is useful for tests
// and for integrating with an externally managed connection pool.
func NewWithDB(conn *sql.DB, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{conn: conn, logger: logger}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close remote connection: %w", err)
	}
	c.conn = nil
	return nil
}

// Ping verifies reachability of the backend.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("remote backend unreachable: %w", err)
	}
	return nil
}

// InitSchema creates the backend schema if it doesn't exist. Idempotent.
//
// Production deployments run migrations out of band; this exists for
// self-hosted instances and tests.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS routines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		semester TEXT,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		created_by TEXT
	);

	CREATE TABLE IF NOT EXISTS routine_slots (
		id TEXT PRIMARY KEY,
		routine_id TEXT NOT NULL,
		day_of_week TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		room_number TEXT,
		section TEXT,
		course_id TEXT,
		teacher_id TEXT,
		course_name TEXT,
		teacher_name TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (routine_id) REFERENCES routines(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_slots_routine ON routine_slots(routine_id);
	CREATE INDEX IF NOT EXISTS idx_slots_day ON routine_slots(routine_id, day_of_week);
	CREATE INDEX IF NOT EXISTS idx_routines_semester ON routines(semester);
	`
	if _, err := c.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

// SupportsExtendedSlotColumns reports whether the backend schema carries
// the optional course_name/teacher_name columns. The answer is decided by
// a single probe and cached for the lifetime of the client.
func (c *Client) SupportsExtendedSlotColumns(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		_, err := c.conn.ExecContext(ctx,
			"SELECT course_name, teacher_name FROM routine_slots LIMIT 1")
		c.extendedOK = err == nil
		if !c.probeLogged {
			c.logger.Printf("Extended slot columns supported: %v", c.extendedOK)
			c.probeLogged = true
		}
	})
	return c.extendedOK
}
