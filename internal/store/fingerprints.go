package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetFingerprint returns the recorded fingerprint for a path, or nil when
// none exists. Absence is a normal outcome, not an error.
func (s *Store) GetFingerprint(ctx context.Context, path string) (*Fingerprint, error) {
	var fp Fingerprint
	var modTime, indexedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT path, content_hash, size, mod_time, indexed_at
		FROM fingerprints WHERE path = ?
	`, path).Scan(&fp.Path, &fp.Hash, &fp.Size, &modTime, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint for %s: %w", path, err)
	}

	if fp.ModTime, err = decodeTime(modTime); err != nil {
		return nil, fmt.Errorf("corrupt mod_time for %s: %w", path, err)
	}
	if fp.IndexedAt, err = decodeTime(indexedAt); err != nil {
		return nil, fmt.Errorf("corrupt indexed_at for %s: %w", path, err)
	}

	return &fp, nil
}

// PutFingerprint durably overwrites the fingerprint for its path. The write
// is a single statement, so readers never observe a partial record.
func (s *Store) PutFingerprint(ctx context.Context, fp *Fingerprint) error {
	if fp.Path == "" {
		return fmt.Errorf("fingerprint path must not be empty")
	}
	if fp.Hash == "" {
		return fmt.Errorf("fingerprint hash must not be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (path, content_hash, size, mod_time, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			mod_time = excluded.mod_time,
			indexed_at = excluded.indexed_at
	`, fp.Path, fp.Hash, fp.Size, encodeTime(fp.ModTime), encodeTime(fp.IndexedAt))
	if err != nil {
		return fmt.Errorf("failed to put fingerprint for %s: %w", fp.Path, err)
	}

	return nil
}

// DeleteFingerprint removes the fingerprint for a path. Deleting a missing
// fingerprint is a no-op.
func (s *Store) DeleteFingerprint(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete fingerprint for %s: %w", path, err)
	}
	return nil
}

// ClearFingerprints removes every fingerprint and returns the number removed.
func (s *Store) ClearFingerprints(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear fingerprints: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// FingerprintCount returns the number of recorded fingerprints.
func (s *Store) FingerprintCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return n, nil
}
