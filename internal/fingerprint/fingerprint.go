// Package fingerprint computes SHA-256 content digests for change detection.
//
// Classification of a document as changed or unchanged is always by hash of
// the full byte content, never by size or timestamp. Size and mtime travel
// along for diagnostics only.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// FileDigest is the computed identity of a file's current content.
type FileDigest struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex-encoded SHA-256 digest of the file's full content.
// The entire byte stream is hashed; read errors are propagated, never
// swallowed, since a hashing failure must not pass as "unchanged".
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFile stats and hashes a file in one pass.
func ComputeFile(path string) (*FileDigest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}

	return &FileDigest{
		Path:    path,
		Hash:    hash,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
