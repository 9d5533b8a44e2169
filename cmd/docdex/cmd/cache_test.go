package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/engine"
	"github.com/docdex/docdex/internal/store"
)

func TestCacheStatsCmd_EmptyCache(t *testing.T) {
	out, err := runCommand(t, t.TempDir(), "cache", "stats")

	require.NoError(t, err)
	assert.Contains(t, out, "entries")
	assert.Contains(t, out, "0")
}

func TestCacheStatsCmd_WithEntries(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, func(st *store.Store) {
		results := []engine.Result{{Content: "hit", Citation: "a.md"}}
		require.NoError(t, st.PutCached(context.Background(), "foo", "", results, time.Hour))
	})

	out, err := runCommand(t, dir, "cache", "stats")

	require.NoError(t, err)
	assert.Contains(t, out, "entries")
	assert.Contains(t, out, "1")
}

func TestCacheClearCmd(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, func(st *store.Store) {
		results := []engine.Result{{Content: "hit", Citation: "a.md"}}
		require.NoError(t, st.PutCached(context.Background(), "foo", "", results, time.Hour))
		require.NoError(t, st.PutCached(context.Background(), "bar", "", results, time.Hour))
	})

	out, err := runCommand(t, dir, "cache", "clear")

	require.NoError(t, err)
	assert.Contains(t, out, "removed 2 cached results")
}
