// Package scanner discovers indexable documents under a root directory.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize caps document size when Options does not set one.
const DefaultMaxFileSize = 100 * 1024 * 1024

// Document describes one discovered document.
type Document struct {
	// Path is relative to the scan root, with forward slashes.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Result streams either a document or a traversal error.
type Result struct {
	Doc *Document
	Err error
}

// Options controls a scan.
type Options struct {
	RootDir string
	// IncludeExtensions filters by extension (".md", ".pdf", ...). Empty means
	// every non-binary file qualifies.
	IncludeExtensions []string
	// ExcludePatterns lists directory or file patterns to skip.
	ExcludePatterns []string
	// MaxFileSize in bytes; larger files are skipped.
	MaxFileSize int64
	// FollowSymlinks indexes symlinked files when true. Directories reached
	// through symlinks are never followed.
	FollowSymlinks bool
}

// Scanner discovers documents. Zero value is usable.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan streams discovered documents over a channel, closed when traversal
// finishes. Unreadable entries are skipped rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, results)
	}()

	return results, nil
}

// ScanAll drains a scan into a slice sorted by path. Traversal errors abort.
func (s *Scanner) ScanAll(ctx context.Context, opts Options) ([]*Document, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var docs []*Document
	for r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		docs = append(docs, r.Doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, maxSize int64, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip entries we cannot access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if excludedDir(relPath, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		if excludedFile(relPath, opts.ExcludePatterns) {
			return nil
		}
		if !matchesExtension(relPath, opts.IncludeExtensions) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		doc := &Document{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		select {
		case results <- Result{Doc: doc}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

// excludedDir reports whether a directory path matches an exclude pattern.
// A bare name like ".git" matches that directory anywhere in the tree.
func excludedDir(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		if pattern == "" {
			continue
		}
		if relPath == pattern || strings.HasPrefix(relPath, pattern+"/") {
			return true
		}
		for _, part := range strings.Split(relPath, "/") {
			if part == pattern {
				return true
			}
		}
	}
	return false
}

// excludedFile reports whether a file path matches an exclude pattern.
func excludedFile(relPath string, patterns []string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "*.") {
			if strings.HasSuffix(baseName, strings.TrimPrefix(pattern, "*")) {
				return true
			}
			continue
		}
		if matched, err := filepath.Match(pattern, baseName); err == nil && matched {
			return true
		}
		if relPath == pattern || strings.HasPrefix(relPath, pattern+"/") {
			return true
		}
	}
	return false
}

// matchesExtension reports whether the file carries one of the wanted
// extensions. Comparison is case-insensitive.
func matchesExtension(relPath string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// isBinaryFile sniffs the first 512 bytes for null bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
