package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docdex/docdex/internal/engine"
)

// allScope is the cache scope used when no collection filter applies.
const allScope = "all"

// CacheKey derives the deterministic key for a (query, collection) pair.
// Two logically identical queries against the same scope always collide.
func CacheKey(query, collection string) string {
	scope := collection
	if scope == "" {
		scope = allScope
	}
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	return hex.EncodeToString(h.Sum(nil))
}

// EnableMemoryCache puts an expiring LRU in front of the persistent cache.
// It only short-circuits entry lookup; hit counting still persists.
func (s *Store) EnableMemoryCache(entries int, ttl time.Duration) {
	if entries <= 0 {
		return
	}
	s.memCache = lru.NewLRU[string, *CacheEntry](entries, nil, ttl)
}

// GetCached returns the valid cache entry for (query, collection), or nil on
// a miss. Expired entries are evicted lazily and count as misses. A hit
// increments the persisted hit counter before returning.
func (s *Store) GetCached(ctx context.Context, query, collection string) (*CacheEntry, error) {
	key := CacheKey(query, collection)
	now := s.now()

	if s.memCache != nil {
		if entry, ok := s.memCache.Get(key); ok && now.Before(entry.ExpiresAt) {
			return s.recordHit(ctx, entry)
		}
	}

	var entry CacheEntry
	var payload, createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT key, query, collection, payload, created_at, expires_at, hits
		FROM cache_entries WHERE key = ?
	`, key).Scan(&entry.Key, &entry.Query, &entry.Collection, &payload, &createdAt, &expiresAt, &entry.Hits)
	if err == sql.ErrNoRows {
		return nil, s.recordMiss(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if entry.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, s.evictCorrupt(ctx, key, err)
	}
	if entry.ExpiresAt, err = decodeTime(expiresAt); err != nil {
		return nil, s.evictCorrupt(ctx, key, err)
	}

	// Expired reads behave identically to missing entries.
	if !now.Before(entry.ExpiresAt) {
		s.evict(ctx, key)
		return nil, s.recordMiss(ctx, key)
	}

	var decoded cachedPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, s.evictCorrupt(ctx, key, err)
	}
	if decoded.SchemaVersion != engine.ResultSchemaVersion {
		return nil, s.evictCorrupt(ctx, key,
			fmt.Errorf("payload schema version %d, want %d", decoded.SchemaVersion, engine.ResultSchemaVersion))
	}
	entry.Results = decoded.Results

	return s.recordHit(ctx, &entry)
}

// recordHit persists the hit increment and returns the entry with the
// incremented count.
func (s *Store) recordHit(ctx context.Context, entry *CacheEntry) (*CacheEntry, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET hits = hits + 1 WHERE key = ?`, entry.Key); err != nil {
		return nil, fmt.Errorf("failed to record cache hit: %w", err)
	}

	hit := *entry
	hit.Hits = entry.Hits + 1

	if s.memCache != nil {
		s.memCache.Add(hit.Key, &hit)
	}

	return &hit, nil
}

// recordMiss bumps the exact miss counter. A miss is not an error.
func (s *Store) recordMiss(ctx context.Context, key string) error {
	if s.memCache != nil {
		s.memCache.Remove(key)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
	`, metaKeyCacheMisses); err != nil {
		return fmt.Errorf("failed to record cache miss: %w", err)
	}
	return nil
}

// evict removes a cache row, ignoring failures (lazy eviction is best-effort).
func (s *Store) evict(ctx context.Context, key string) {
	if s.memCache != nil {
		s.memCache.Remove(key)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		slog.Warn("failed to evict cache entry", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// evictCorrupt treats an unreadable record as absent: evict, warn, count miss.
func (s *Store) evictCorrupt(ctx context.Context, key string, cause error) error {
	slog.Warn("evicting corrupt cache entry",
		slog.String("key", key),
		slog.String("error", cause.Error()))
	s.evict(ctx, key)
	return s.recordMiss(ctx, key)
}

// PutCached stores a fresh entry for (query, collection) with the given TTL,
// overwriting any previous entry for the same key. Hit counter starts at 0.
func (s *Store) PutCached(ctx context.Context, query, collection string, results []engine.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	key := CacheKey(query, collection)
	now := s.now()
	expires := now.Add(ttl)

	payload, err := json.Marshal(cachedPayload{
		SchemaVersion: engine.ResultSchemaVersion,
		Results:       results,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, query, collection, payload, created_at, expires_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET
			query = excluded.query,
			collection = excluded.collection,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hits = 0
	`, key, query, collection, string(payload), encodeTime(now), encodeTime(expires))
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	if s.memCache != nil {
		s.memCache.Add(key, &CacheEntry{
			Key:        key,
			Query:      query,
			Collection: collection,
			Results:    results,
			CreatedAt:  now,
			ExpiresAt:  expires,
			Hits:       0,
		})
	}

	return nil
}

// ClearCache removes every entry and returns the number removed.
func (s *Store) ClearCache(ctx context.Context) (int, error) {
	if s.memCache != nil {
		s.memCache.Purge()
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// CacheStatistics aggregates over all non-expired entries. Rows with
// unreadable timestamps are skipped, never fatal.
func (s *Store) CacheStatistics(ctx context.Context) (*CacheStats, error) {
	now := s.now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, expires_at, hits, LENGTH(payload) FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &CacheStats{}
	for rows.Next() {
		var createdAt, expiresAt string
		var hits, size int64
		if err := rows.Scan(&createdAt, &expiresAt, &hits, &size); err != nil {
			slog.Warn("skipping unreadable cache row", slog.String("error", err.Error()))
			continue
		}

		created, err := decodeTime(createdAt)
		if err != nil {
			slog.Warn("skipping cache row with corrupt created_at", slog.String("error", err.Error()))
			continue
		}
		expires, err := decodeTime(expiresAt)
		if err != nil {
			slog.Warn("skipping cache row with corrupt expires_at", slog.String("error", err.Error()))
			continue
		}

		// Hits on expired entries still count toward lifetime totals.
		stats.TotalHits += hits

		if !now.Before(expires) {
			continue
		}

		stats.EntryCount++
		stats.SizeBytes += size
		if stats.OldestEntry == nil || created.Before(*stats.OldestEntry) {
			c := created
			stats.OldestEntry = &c
		}
		if stats.NewestEntry == nil || created.After(*stats.NewestEntry) {
			c := created
			stats.NewestEntry = &c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}

	misses, err := s.getMetaInt(ctx, metaKeyCacheMisses)
	if err != nil {
		return nil, err
	}
	stats.TotalMisses = misses

	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}

	return stats, nil
}
