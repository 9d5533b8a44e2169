package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	derrors "github.com/docdex/docdex/internal/errors"
)

// RegisterCollection creates or overwrites a collection's metadata with a
// document count of zero. Shards, if any, are set later via
// UpdateCollectionStats.
func (s *Store) RegisterCollection(ctx context.Context, name, rootPath string) error {
	if name == "" {
		return derrors.InvalidInput("collection name must not be empty")
	}
	if rootPath == "" {
		return derrors.InvalidInput("collection root path must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO collections (name, root_path, doc_count, sharded, modified_at)
		VALUES (?, ?, 0, 0, ?)
		ON CONFLICT(name) DO UPDATE SET
			root_path = excluded.root_path,
			doc_count = 0,
			sharded = 0,
			modified_at = excluded.modified_at
	`, name, rootPath, encodeTime(s.now())); err != nil {
		return fmt.Errorf("failed to register collection %s: %w", name, err)
	}

	// Re-registration resets shard structure.
	if _, err := tx.Exec(`DELETE FROM shards WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to reset shards for %s: %w", name, err)
	}

	if err := recomputeTotalDocuments(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection registration: %w", err)
	}
	return nil
}

// UpdateCollectionStats updates a collection's document count, timestamps and
// shard structure after a (re)indexing run, then recomputes the aggregate
// total-document count.
//
// Shard counts are reconciled against the collection total: when shards are
// present and their counts do not sum to docCount, the shard sum wins and the
// drift is logged. This repairs the inconsistency on every call instead of
// letting it accumulate.
func (s *Store) UpdateCollectionStats(ctx context.Context, name string, docCount int, shards []Shard) error {
	if docCount < 0 {
		return derrors.InvalidInput("document count must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists == 0 {
		return derrors.NotFound("collection", name)
	}

	if len(shards) > 0 {
		sum := 0
		for _, sh := range shards {
			sum += sh.DocCount
		}
		if sum != docCount {
			slog.Warn("shard counts do not sum to collection total, repairing",
				slog.String("collection", name),
				slog.Int("collection_total", docCount),
				slog.Int("shard_sum", sum))
			docCount = sum
		}
	}

	now := encodeTime(s.now())
	if _, err := tx.Exec(`
		UPDATE collections
		SET doc_count = ?, sharded = ?, indexed_at = ?, modified_at = ?
		WHERE name = ?
	`, docCount, boolToInt(len(shards) > 0), now, now, name); err != nil {
		return fmt.Errorf("failed to update collection %s: %w", name, err)
	}

	if _, err := tx.Exec(`DELETE FROM shards WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to replace shards for %s: %w", name, err)
	}
	for i, sh := range shards {
		if sh.Name == "" {
			return derrors.InvalidInput("shard name must not be empty")
		}
		if _, err := tx.Exec(`
			INSERT INTO shards (collection, name, label, doc_count, sub_path, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, name, sh.Name, sh.Label, sh.DocCount, sh.SubPath, i); err != nil {
			return fmt.Errorf("failed to insert shard %s/%s: %w", name, sh.Name, err)
		}
	}

	if err := recomputeTotalDocuments(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection stats: %w", err)
	}
	return nil
}

// GetCollection loads one collection with its shards. Returns a not-found
// error for unknown names.
func (s *Store) GetCollection(ctx context.Context, name string) (*Collection, error) {
	coll, err := s.scanCollection(s.db.QueryRowContext(ctx, `
		SELECT name, root_path, doc_count, sharded, indexed_at, modified_at
		FROM collections WHERE name = ?
	`, name))
	if err == sql.ErrNoRows {
		return nil, derrors.NotFound("collection", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", name, err)
	}

	if err := s.loadShards(ctx, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// ListCollections returns all collections with shards, ordered by name.
// Corrupt rows are skipped with a warning.
func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, root_path, doc_count, sharded, indexed_at, modified_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var collections []*Collection
	for rows.Next() {
		coll, err := s.scanCollection(rows)
		if err != nil {
			slog.Warn("skipping unreadable collection row", slog.String("error", err.Error()))
			continue
		}
		collections = append(collections, coll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}

	for _, coll := range collections {
		if err := s.loadShards(ctx, coll); err != nil {
			slog.Warn("failed to load shards",
				slog.String("collection", coll.Name),
				slog.String("error", err.Error()))
		}
	}

	return collections, nil
}

// scanCollection reads one collection row.
func (s *Store) scanCollection(row rowScanner) (*Collection, error) {
	var coll Collection
	var sharded int
	var indexedAt, modifiedAt sql.NullString

	err := row.Scan(&coll.Name, &coll.RootPath, &coll.DocCount, &sharded, &indexedAt, &modifiedAt)
	if err != nil {
		return nil, err
	}

	coll.Sharded = sharded != 0
	if coll.IndexedAt, err = decodeNullableTime(indexedAt); err != nil {
		return nil, fmt.Errorf("corrupt indexed_at for %s: %w", coll.Name, err)
	}
	if coll.ModifiedAt, err = decodeNullableTime(modifiedAt); err != nil {
		return nil, fmt.Errorf("corrupt modified_at for %s: %w", coll.Name, err)
	}

	return &coll, nil
}

// loadShards populates a collection's shard list in stored order.
func (s *Store) loadShards(ctx context.Context, coll *Collection) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, label, doc_count, sub_path
		FROM shards WHERE collection = ? ORDER BY position
	`, coll.Name)
	if err != nil {
		return fmt.Errorf("failed to load shards for %s: %w", coll.Name, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sh Shard
		if err := rows.Scan(&sh.Name, &sh.Label, &sh.DocCount, &sh.SubPath); err != nil {
			return fmt.Errorf("failed to scan shard for %s: %w", coll.Name, err)
		}
		coll.Shards = append(coll.Shards, sh)
	}
	return rows.Err()
}

// recomputeTotalDocuments refreshes the aggregate document counter from the
// collection rows within tx.
func recomputeTotalDocuments(tx *sql.Tx) error {
	var total sql.NullInt64
	if err := tx.QueryRow(`SELECT SUM(doc_count) FROM collections`).Scan(&total); err != nil {
		return fmt.Errorf("failed to sum document counts: %w", err)
	}
	return setMetaInt(tx, metaKeyTotalDocuments, total.Int64)
}
