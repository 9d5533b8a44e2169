package engine

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/docdex/docdex/internal/errors"
)

// syncBuffer makes a bytes.Buffer safe to share with the stderr drain goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeFakeEngine writes a shell script that answers each request line with a
// canned response. Request IDs are sequential, so the script tracks its own
// counter instead of parsing JSON.
func writeFakeEngine(t *testing.T, responseTemplate string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}

	script := `#!/bin/sh
n=0
while read line; do
  n=$((n+1))
  printf '` + responseTemplate + `\n' "$n"
done
`
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSubprocess_Search(t *testing.T) {
	// Given: an engine that returns one hit for any query
	path := writeFakeEngine(t,
		`{"jsonrpc":"2.0","id":%s,"result":[{"content":"hit body","citation":"docs/a.md","score":0.9}]}`)

	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// When: searching
	results, err := s.Search(ctx, "anything", "docs", 10)

	// Then: the typed result comes back
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hit body", results[0].Content)
	assert.Equal(t, "docs/a.md", results[0].Citation)
	assert.InDelta(t, 0.9, results[0].Score, 0.001)
}

func TestSubprocess_SearchNoMatchesIsEmptyNotError(t *testing.T) {
	path := writeFakeEngine(t, `{"jsonrpc":"2.0","id":%s,"result":[]}`)

	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := s.Search(ctx, "no such thing", "", 5)

	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSubprocess_BuildIndex(t *testing.T) {
	path := writeFakeEngine(t,
		`{"jsonrpc":"2.0","id":%s,"result":{"success":true,"node_count":42}}`)

	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.BuildIndex(ctx, "/docs/a.md")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 42, result.NodeCount)
}

func TestSubprocess_EngineErrorSurfacesAsUnavailable(t *testing.T) {
	path := writeFakeEngine(t,
		`{"jsonrpc":"2.0","id":%s,"error":{"code":-32603,"message":"model overloaded"}}`)

	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.Search(ctx, "q", "", 5)

	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeEngineUnavailable))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestSubprocess_TimeoutIsReportedAsEngineTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}

	// Given: an engine that reads requests but never answers
	script := "#!/bin/sh\nwhile read line; do :; done\n"
	path := filepath.Join(t.TempDir(), "silent-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = s.Search(ctx, "q", "", 5)

	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeEngineTimeout))
}

func TestSubprocess_StderrIsLogged(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}

	// Given: an engine that writes a diagnostic line to stderr on startup
	script := `#!/bin/sh
echo "model warmup took 3s" >&2
while read line; do :; done
`
	path := filepath.Join(t.TempDir(), "noisy-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	// When: spawning the engine
	s, err := NewSubprocess(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the diagnostic surfaces in the log
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "model warmup took 3s")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewSubprocess_EmptyCommandRejected(t *testing.T) {
	_, err := NewSubprocess("")

	require.Error(t, err)
	assert.True(t, derrors.IsInvalidInput(err))
}
