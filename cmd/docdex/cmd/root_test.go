package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/store"
)

// runCommand executes the CLI against a project directory and captures output.
func runCommand(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCmd()

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--dir", dir}, args...))

	err := rootCmd.Execute()
	return buf.String(), err
}

// seedStore opens the project store, hands it to fn, and closes it again so
// the command under test can take the lock.
func seedStore(t *testing.T, dir string, fn func(*store.Store)) {
	t.Helper()
	st, err := store.Open(config.DataDir(dir))
	require.NoError(t, err)
	fn(st)
	require.NoError(t, st.Close())
}

func TestRootCmd_Help(t *testing.T) {
	out, err := runCommand(t, t.TempDir(), "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "docdex")
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "jobs")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := runCommand(t, t.TempDir(), "frobnicate")
	require.Error(t, err)
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := runCommand(t, t.TempDir(), "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "docdex version")
}
