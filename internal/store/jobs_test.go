package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string          { return &s }
func intPtr(n int) *int                { return &n }
func statusPtr(s JobStatus) *JobStatus { return &s }

func TestNewJobID_OrderedAndUnique(t *testing.T) {
	// IDs embed a fixed-width time prefix, so lexicographic order follows time
	early := NewJobID(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	late := NewJobID(time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC))
	assert.Less(t, early, late)

	// Same instant still yields distinct IDs via the random suffix
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewJobID(now)
		assert.False(t, seen[id], "duplicate job id %s", id)
		seen[id] = true
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestCreateJob_StartsPendingAndActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// When: creating a job
	id, err := s.CreateJob(ctx, "/docs", "manuals", true, "shard-a")
	require.NoError(t, err)

	// Then: it is pending with all counters at zero
	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, "/docs", job.TargetPath)
	assert.Equal(t, "manuals", job.Collection)
	assert.Equal(t, "shard-a", job.Shard)
	assert.True(t, job.Incremental)
	assert.Zero(t, job.TotalDocs)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	// And: it is in the active set
	active, err := s.ActiveJobIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, id)
}

func TestCreateJob_RejectsEmptyPath(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateJob(context.Background(), "", "", false, "")
	require.Error(t, err)
}

func TestGetJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), "job-unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateJob_MergesPartialFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "/docs", "", false, "")
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	job, err := s.UpdateJob(ctx, id, JobUpdate{
		Status:    statusPtr(JobStatusRunning),
		TotalDocs: intPtr(10),
		StartedAt: &started,
	})
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, 10, job.TotalDocs)
	require.NotNil(t, job.StartedAt)

	// Untouched fields survive a later partial update
	job, err = s.UpdateJob(ctx, id, JobUpdate{Processed: intPtr(4), Error: strPtr("1 document failed")})
	require.NoError(t, err)
	assert.Equal(t, 10, job.TotalDocs)
	assert.Equal(t, 4, job.Processed)
	assert.Equal(t, "1 document failed", job.Error)
	assert.Equal(t, JobStatusRunning, job.Status)
}

func TestUpdateJob_TerminalTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "/docs", "", false, "")
	require.NoError(t, err)

	_, err = s.UpdateJob(ctx, id, JobUpdate{Status: statusPtr(JobStatusRunning)})
	require.NoError(t, err)

	// When: completing the job
	job, err := s.UpdateJob(ctx, id, JobUpdate{Status: statusPtr(JobStatusCompleted), Processed: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt, "terminal transition stamps completion time")

	// Then: it left the active set and the completed counter advanced
	active, err := s.ActiveJobIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, id)

	completed, err := s.CompletedJobCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)
}

func TestUpdateJob_TerminalStatesAreFinal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "/docs", "", false, "")
	require.NoError(t, err)

	_, err = s.UpdateJob(ctx, id, JobUpdate{Status: statusPtr(JobStatusCancelled)})
	require.NoError(t, err)

	// When: attempting any further transition
	job, err := s.UpdateJob(ctx, id, JobUpdate{
		Status:    statusPtr(JobStatusRunning),
		Processed: intPtr(99),
	})

	// Then: the update is ignored, not an error
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, job.Status)
	assert.Zero(t, job.Processed)

	// And: the completed counter advanced exactly once
	completed, err := s.CompletedJobCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)
}

func TestUpdateJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpdateJob(context.Background(), "job-unknown", JobUpdate{Processed: intPtr(1)})
	require.Error(t, err)
}

func TestListJobs_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Given: three jobs created at distinct clock ticks
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		s.now = func() time.Time { return tick }
		id, err := s.CreateJob(ctx, "/docs", "", false, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// When: listing
	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)

	// Then: newest first
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
	assert.Equal(t, ids[0], jobs[2].ID)
}

func TestListJobs_SkipsCorruptRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, "/docs", "", false, "")
	require.NoError(t, err)

	// Given: a corrupt row alongside the good one
	_, err = s.db.Exec(`
		INSERT INTO jobs (id, status, target_path, created_at)
		VALUES ('job-corrupt', 'exploded', '/x', 'not a time')
	`)
	require.NoError(t, err)

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestUpdateJob_ConcurrentCompletionsKeepCounterExact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Given: several jobs completing from separate goroutines
	const n = 8
	ids := make([]string, n)
	for i := range ids {
		id, err := s.CreateJob(ctx, "/docs", "", false, "")
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.UpdateJob(ctx, id, JobUpdate{Status: statusPtr(JobStatusCompleted)})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// Then: no lost updates on the shared aggregates
	completed, err := s.CompletedJobCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), completed)

	active, err := s.ActiveJobIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
