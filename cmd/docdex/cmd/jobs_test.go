package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/store"
)

func TestJobsCmd_EmptyStore(t *testing.T) {
	out, err := runCommand(t, t.TempDir(), "jobs")

	require.NoError(t, err)
	assert.Contains(t, out, "no jobs")
}

func TestJobsCmd_ListsJobs(t *testing.T) {
	dir := t.TempDir()
	var jobID string
	seedStore(t, dir, func(st *store.Store) {
		id, err := st.CreateJob(context.Background(), "/docs", "manuals", true, "")
		require.NoError(t, err)
		jobID = id
	})

	out, err := runCommand(t, dir, "jobs")

	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "/docs")
}

func TestJobsStatusCmd(t *testing.T) {
	dir := t.TempDir()
	var jobID string
	seedStore(t, dir, func(st *store.Store) {
		id, err := st.CreateJob(context.Background(), "/docs", "manuals", true, "2025")
		require.NoError(t, err)
		jobID = id
	})

	out, err := runCommand(t, dir, "jobs", "status", jobID)

	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "manuals")
	assert.Contains(t, out, "2025")
}

func TestJobsStatusCmd_UnknownJob(t *testing.T) {
	_, err := runCommand(t, t.TempDir(), "jobs", "status", "job-unknown")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJobsCancelCmd(t *testing.T) {
	dir := t.TempDir()
	var jobID string
	seedStore(t, dir, func(st *store.Store) {
		id, err := st.CreateJob(context.Background(), "/docs", "", false, "")
		require.NoError(t, err)
		jobID = id
	})

	// When: cancelling the pending job
	out, err := runCommand(t, dir, "jobs", "cancel", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	// And again: cancelling a terminal job is not an error
	out, err = runCommand(t, dir, "jobs", "cancel", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	// A completed job is left alone
	seedStore(t, dir, func(st *store.Store) {
		id, err := st.CreateJob(context.Background(), "/docs", "", false, "")
		require.NoError(t, err)
		done := store.JobStatusCompleted
		_, err = st.UpdateJob(context.Background(), id, store.JobUpdate{Status: &done})
		require.NoError(t, err)
		jobID = id
	})
	out, err = runCommand(t, dir, "jobs", "cancel", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "already completed")
}
