package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w, err := New(root, opts)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// nextBatch waits for one batch or fails the test.
func nextBatch(t *testing.T, w *Watcher) []string {
	t.Helper()
	select {
	case batch := <-w.Batches():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestWatcher_BatchesRapidChanges(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, Options{})

	// When: two files change inside one debounce window
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"), []byte("bravo"), 0o644))

	// Then: one coalesced batch arrives, sorted, with each path once
	batch := nextBatch(t, w)
	assert.Equal(t, []string{"a.md", "b.md"}, batch)
}

func TestWatcher_FiltersByExtension(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, Options{IncludeExtensions: []string{".md"}})

	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.bin"), []byte("x"), 0o644))

	batch := nextBatch(t, w)
	assert.Equal(t, []string{"doc.md"}, batch)
}

func TestWatcher_IgnoresExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".docdex"), 0o755))
	w := startTestWatcher(t, root, Options{ExcludePatterns: []string{".docdex"}})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".docdex", "docdex.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.md"), []byte("x"), 0o644))

	batch := nextBatch(t, w)
	assert.Equal(t, []string{"keep.md"}, batch)
}

func TestWatcher_PicksUpNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, Options{})

	sub := filepath.Join(root, "chapter")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Give the watcher a moment to register the new directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "intro.md"), []byte("x"), 0o644))

	batch := nextBatch(t, w)
	assert.Contains(t, batch, "chapter/intro.md")
}

func TestWatcher_SeparateWindowsSeparateBatches(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root, Options{Debounce: 30 * time.Millisecond})

	require.NoError(t, os.WriteFile(filepath.Join(root, "first.md"), []byte("x"), 0o644))
	first := nextBatch(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(root, "second.md"), []byte("x"), 0o644))
	second := nextBatch(t, w)

	assert.Equal(t, []string{"first.md"}, first)
	assert.Equal(t, []string{"second.md"}, second)
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, open := <-w.Batches()
	assert.False(t, open, "batch channel closed after stop")
}
