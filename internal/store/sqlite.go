package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Store is the SQLite-backed coordination store.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	// memCache is an optional in-memory front for cache entries.
	memCache *lru.LRU[string, *CacheEntry]

	// now is the clock, overridable in tests for TTL behavior.
	now func() time.Time
}

// Open opens (creating if needed) the store at dir/docdex.db and acquires an
// exclusive file lock so two processes cannot share one store.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "docdex.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store at %s is locked by another docdex process", dir)
	}

	dbPath := filepath.Join(dir, "docdex.db")
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single process owns the store; one connection avoids SQLITE_BUSY
	// between concurrent job goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:   db,
		path: dbPath,
		lock: lock,
		now:  time.Now,
	}

	if err := s.init(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

// init applies pragmas and creates the schema.
func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		collection TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		target_path TEXT NOT NULL,
		collection TEXT NOT NULL DEFAULT '',
		shard TEXT NOT NULL DEFAULT '',
		incremental INTEGER NOT NULL DEFAULT 0,
		total_docs INTEGER NOT NULL DEFAULT 0,
		processed_docs INTEGER NOT NULL DEFAULT 0,
		failed_docs INTEGER NOT NULL DEFAULT 0,
		skipped_docs INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		error TEXT NOT NULL DEFAULT '',
		eta_seconds INTEGER NOT NULL DEFAULT 0
	);

	-- Active-jobs set: jobs not yet in a terminal state. Mutated only inside
	-- the same transaction as the owning job row.
	CREATE TABLE IF NOT EXISTS active_jobs (
		job_id TEXT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		root_path TEXT NOT NULL,
		doc_count INTEGER NOT NULL DEFAULT 0,
		sharded INTEGER NOT NULL DEFAULT 0,
		indexed_at TEXT,
		modified_at TEXT
	);

	CREATE TABLE IF NOT EXISTS shards (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		name TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		doc_count INTEGER NOT NULL DEFAULT 0,
		sub_path TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (collection, name)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`,
		metaKeySchemaVersion, fmt.Sprintf("%d", CurrentSchemaVersion),
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}

// Close closes the database and releases the process lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// encodeTime formats a timestamp for storage.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeTime parses a stored timestamp.
func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// getMetaInt reads an integer counter from meta, zero when absent.
func (s *Store) getMetaInt(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read meta %s: %w", key, err)
	}

	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, nil // unreadable counter, treat as zero
	}
	return n, nil
}

// incrementMeta atomically adds delta to an integer counter within tx.
func incrementMeta(tx *sql.Tx, key string, delta int64) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + ? AS TEXT)
	`, key, fmt.Sprintf("%d", delta), delta)
	if err != nil {
		return fmt.Errorf("failed to increment meta %s: %w", key, err)
	}
	return nil
}

// setMetaInt sets an integer counter within tx.
func setMetaInt(tx *sql.Tx, key string, value int64) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, fmt.Sprintf("%d", value))
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// CompletedJobCount returns the lifetime count of jobs that reached a
// terminal state.
func (s *Store) CompletedJobCount(ctx context.Context) (int64, error) {
	return s.getMetaInt(ctx, metaKeyCompletedJobs)
}

// TotalDocumentCount returns the aggregate document count across all
// collections, maintained by UpdateCollectionStats.
func (s *Store) TotalDocumentCount(ctx context.Context) (int64, error) {
	return s.getMetaInt(ctx, metaKeyTotalDocuments)
}
