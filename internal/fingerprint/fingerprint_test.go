package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes_Deterministic(t *testing.T) {
	// Known SHA-256 of "hello"
	const wantHello = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	assert.Equal(t, wantHello, HashBytes([]byte("hello")))
	assert.Equal(t, HashBytes([]byte("hello")), HashBytes([]byte("hello")))
	assert.NotEqual(t, HashBytes([]byte("hello")), HashBytes([]byte("hello!")))
}

func TestHashBytes_EmptyInput(t *testing.T) {
	// SHA-256 of the empty string
	const wantEmpty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	assert.Equal(t, wantEmpty, HashBytes(nil))
	assert.Equal(t, wantEmpty, HashBytes([]byte{}))
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	// Given: a file with known content
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "doc.md")
	content := []byte("# Title\n\nBody text.\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	// When: hashing the file
	got, err := HashFile(path)
	require.NoError(t, err)

	// Then: the digest matches hashing the bytes directly
	assert.Equal(t, HashBytes(content), got)
}

func TestHashFile_MissingFilePropagatesError(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
}

func TestComputeFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "doc.txt")
	content := []byte("same size!!")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	d, err := ComputeFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, d.Path)
	assert.Equal(t, HashBytes(content), d.Hash)
	assert.Equal(t, int64(len(content)), d.Size)
	assert.False(t, d.ModTime.IsZero())
}

func TestComputeFile_SameSizeDifferentContent(t *testing.T) {
	// Given: two files with identical size but different bytes
	tmpDir := t.TempDir()
	pathA := filepath.Join(tmpDir, "a.txt")
	pathB := filepath.Join(tmpDir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("aaaaaaaa"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("bbbbbbbb"), 0o644))

	da, err := ComputeFile(pathA)
	require.NoError(t, err)
	db, err := ComputeFile(pathB)
	require.NoError(t, err)

	// Then: size matches but hashes differ, so change detection by hash holds
	assert.Equal(t, da.Size, db.Size)
	assert.NotEqual(t, da.Hash, db.Hash)
}
