// Package store is the relay's persistence layer: a single SQL database
// holding teams, contacts, conversations, tez, peers, the outbound
// delivery queue and the audit journal. It follows the package-global
// Open/accessor pattern; all multi-row writes that must be atomic run in
// one transaction here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	mu sync.RWMutex
	db *sql.DB
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Open opens (creating if necessary) the sqlite database under dir and
// runs schema migration. It must be called before any accessor.
func Open(dir string) error {
	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(dir, "relay.db")
	d, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent request handling.
	d.SetMaxOpenConns(1)
	if err := migrate(d); err != nil {
		_ = d.Close()
		return err
	}
	db = d
	return nil
}

// Close closes the database.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// Ready reports whether the store is open and reachable.
func Ready() bool {
	mu.RLock()
	d := db
	mu.RUnlock()
	if d == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.PingContext(ctx) == nil
}

func handle() (*sql.DB, error) {
	mu.RLock()
	defer mu.RUnlock()
	if db == nil {
		return nil, fmt.Errorf("store not opened")
	}
	return db, nil
}

// inTx runs fn inside a transaction, rolling back on error.
func inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d, err := handle()
	if err != nil {
		return err
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func migrate(d *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS team_members (
		team_id TEXT NOT NULL REFERENCES teams(id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (team_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		email TEXT,
		avatar_url TEXT,
		tez_address TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT,
		created_by TEXT NOT NULL,
		dm_key TEXT UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		user_id TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		last_read_at TEXT,
		PRIMARY KEY (conversation_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS tez (
		id TEXT PRIMARY KEY,
		team_id TEXT,
		conversation_id TEXT,
		thread_id TEXT NOT NULL,
		parent_tez_id TEXT,
		surface_text TEXT NOT NULL,
		type TEXT NOT NULL,
		urgency TEXT NOT NULL,
		action_requested TEXT,
		sender_user_id TEXT NOT NULL,
		visibility TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tez_thread ON tez(thread_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_tez_team ON tez(team_id, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_tez_conversation ON tez(conversation_id, created_at);
	CREATE TABLE IF NOT EXISTS tez_context (
		id TEXT PRIMARY KEY,
		tez_id TEXT NOT NULL REFERENCES tez(id),
		seq INTEGER NOT NULL,
		layer TEXT NOT NULL,
		content TEXT NOT NULL,
		mime_type TEXT,
		confidence INTEGER,
		source TEXT,
		derived_from TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tez_context_tez ON tez_context(tez_id, seq);
	CREATE TABLE IF NOT EXISTS tez_recipients (
		tez_id TEXT NOT NULL REFERENCES tez(id),
		user_id TEXT NOT NULL,
		delivered_at TEXT NOT NULL,
		read_at TEXT,
		acknowledged_at TEXT,
		PRIMARY KEY (tez_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tez_recipients_user ON tez_recipients(user_id);
	CREATE TABLE IF NOT EXISTS peers (
		host TEXT PRIMARY KEY,
		server_id TEXT NOT NULL UNIQUE,
		public_key TEXT NOT NULL,
		display_name TEXT,
		trust_level TEXT NOT NULL,
		first_seen_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS outbound_deliveries (
		id TEXT PRIMARY KEY,
		target_host TEXT NOT NULL,
		bundle TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outbound_status ON outbound_deliveries(status, next_attempt_at);
	CREATE INDEX IF NOT EXISTS idx_outbound_host ON outbound_deliveries(target_host, created_at);
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		team_id TEXT,
		actor_user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		metadata TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action, created_at);
	`
	_, err := d.ExecContext(context.Background(), schema)
	return err
}

// --- time helpers shared by the accessor files ---

// TimeFormat is the fixed-width UTC layout for every timestamp column.
// The fraction is zero padded so lexicographic string order in SQL
// equals chronological order; RFC3339Nano would trim trailing zeros and
// sort "...05.5Z" before "...05Z".
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(TimeFormat) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}
