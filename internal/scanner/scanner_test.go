package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under dir, keyed by relative path.
func writeTree(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
}

func paths(docs []*Document) []string {
	var out []string
	for _, d := range docs {
		out = append(out, d.Path)
	}
	return out
}

func TestScanAll_EmptyDirectory(t *testing.T) {
	s := New()

	docs, err := s.ScanAll(context.Background(), Options{RootDir: t.TempDir()})

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestScanAll_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"guide.md":      []byte("# guide"),
		"notes.txt":     []byte("notes"),
		"image.png":     []byte("png"),
		"sub/deep.md":   []byte("deep"),
		"sub/skip.json": []byte("{}"),
	})

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{
		RootDir:           dir,
		IncludeExtensions: []string{".md", ".txt"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"guide.md", "notes.txt", "sub/deep.md"}, paths(docs))
}

func TestScanAll_ExtensionMatchIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"README.MD": []byte("x")})

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{
		RootDir:           dir,
		IncludeExtensions: []string{".md"},
	})

	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestScanAll_ExcludesDirectories(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"keep.md":              []byte("x"),
		".git/objects/blob.md": []byte("x"),
		"vendor/dep/doc.md":    []byte("x"),
		"nested/.git/x.md":     []byte("x"),
	})

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{
		RootDir:         dir,
		ExcludePatterns: []string{".git", "vendor"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"keep.md"}, paths(docs))
}

func TestScanAll_SkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"small.md": []byte("ok"),
		"big.md":   textOfSize(2048),
	})

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{RootDir: dir, MaxFileSize: 1024})

	require.NoError(t, err)
	assert.Equal(t, []string{"small.md"}, paths(docs))
}

func TestScanAll_SkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{
		"text.md":   []byte("plain text"),
		"binary.md": {0x00, 0x01, 0x02, 'P', 'D', 'F'},
	})

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{RootDir: dir})

	require.NoError(t, err)
	assert.Equal(t, []string{"text.md"}, paths(docs))
}

func TestScanAll_SkipsSymlinksByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"real.md": []byte("x")})
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.md"), filepath.Join(dir, "link.md")))

	s := New()
	docs, err := s.ScanAll(context.Background(), Options{RootDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.md"}, paths(docs))

	docs, err = s.ScanAll(context.Background(), Options{RootDir: dir, FollowSymlinks: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"link.md", "real.md"}, paths(docs))
}

func TestScan_RootMustBeDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s := New()
	_, err := s.Scan(context.Background(), Options{RootDir: file})
	require.Error(t, err)

	_, err = s.Scan(context.Background(), Options{RootDir: filepath.Join(dir, "missing")})
	require.Error(t, err)
}

func TestScan_CancelledContextStopsTraversal(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string][]byte{"a.md": []byte("x"), "b.md": []byte("x")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation halts the walk; nothing is reported as discovered.
	s := New()
	docs, err := s.ScanAll(ctx, Options{RootDir: dir})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func textOfSize(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 'a'
	}
	return buf
}
