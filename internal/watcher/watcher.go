// Package watcher observes a document tree and emits debounced batches of
// changed paths. Watch mode feeds each batch into an incremental index job;
// the coordinator's hash check decides what actually gets re-indexed.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options leaves Debounce unset.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to coalesce events before emitting a batch.
	Debounce time.Duration
	// IncludeExtensions filters events to document files. Empty means all.
	IncludeExtensions []string
	// ExcludePatterns lists directory names or path prefixes to ignore.
	ExcludePatterns []string
}

// Watcher watches a root directory recursively.
type Watcher struct {
	root string
	opts Options
	fsw  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool

	batches chan []string
	done    chan struct{}
	once    sync.Once
}

// New creates a watcher rooted at dir. Call Start to begin receiving batches.
func New(root string, opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		root:    absRoot,
		opts:    opts,
		fsw:     fsw,
		pending: make(map[string]struct{}),
		batches: make(chan []string, 16),
		done:    make(chan struct{}),
	}, nil
}

// Start registers watches on the whole tree and begins the event loop. The
// loop runs until Close or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.loop(ctx)
	slog.Info("watching for document changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.opts.Debounce))
	return nil
}

// Batches returns debounced batches of changed paths, relative to the root.
// Closed when the watcher stops.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()

		w.mu.Lock()
		w.closed = true
		if w.timer != nil {
			w.timer.Stop()
		}
		close(w.batches)
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if w.excluded(relPath) {
		return
	}

	// New directories need their own watch for recursion to hold.
	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("failed to watch new directory",
					slog.String("path", relPath),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.matchesExtension(relPath) {
		return
	}

	w.mu.Lock()
	w.pending[relPath] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
	w.mu.Unlock()
}

// flush emits the pending batch. Batches are dropped, not blocked on, when
// the consumer lags.
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || len(w.pending) == 0 {
		return
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	sort.Strings(batch)
	w.pending = make(map[string]struct{})

	select {
	case w.batches <- batch:
	default:
		slog.Warn("dropping change batch, consumer not keeping up",
			slog.Int("batch_size", len(batch)))
	}
}

// addRecursive registers watches on dir and every subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && w.excluded(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			slog.Warn("failed to watch directory",
				slog.String("path", path),
				slog.String("error", addErr.Error()))
		}
		return nil
	})
}

func (w *Watcher) excluded(relPath string) bool {
	for _, pattern := range w.opts.ExcludePatterns {
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

func (w *Watcher) matchesExtension(relPath string) bool {
	if len(w.opts.IncludeExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, want := range w.opts.IncludeExtensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
