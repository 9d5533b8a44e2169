package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	derrors "github.com/docdex/docdex/internal/errors"
)

// NewJobID allocates a job identifier with a fixed-width UTC time prefix and
// a random suffix. Lexicographic order on IDs equals creation order, which
// ListJobs relies on, and the suffix makes collisions negligible.
func NewJobID(now time.Time) string {
	ts := now.UTC().Format("20060102T150405.000000000")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("job-%s-%s", ts, suffix)
}

// CreateJob persists a new pending job and registers it in the active set.
// Returns the allocated job ID.
func (s *Store) CreateJob(ctx context.Context, targetPath, collection string, incremental bool, shard string) (string, error) {
	if targetPath == "" {
		return "", derrors.InvalidInput("job target path must not be empty")
	}

	now := s.now()
	id := NewJobID(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO jobs (id, status, target_path, collection, shard, incremental, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(JobStatusPending), targetPath, collection, shard, boolToInt(incremental), encodeTime(now)); err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO active_jobs (job_id) VALUES (?)`, id); err != nil {
		return "", fmt.Errorf("failed to register active job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit job creation: %w", err)
	}

	return id, nil
}

// GetJob loads a job by ID. Returns a not-found error for unknown IDs.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT id, status, target_path, collection, shard, incremental,
		       total_docs, processed_docs, failed_docs, skipped_docs,
		       created_at, started_at, completed_at, error, eta_seconds
		FROM jobs WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, derrors.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// SaveJob overwrites the full job record for its ID.
func (s *Store) SaveJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return derrors.InvalidInput("job id must not be empty")
	}
	if !job.Status.Valid() {
		return derrors.InvalidInput("unknown job status %q", job.Status)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?, target_path = ?, collection = ?, shard = ?, incremental = ?,
			total_docs = ?, processed_docs = ?, failed_docs = ?, skipped_docs = ?,
			started_at = ?, completed_at = ?, error = ?, eta_seconds = ?
		WHERE id = ?
	`, string(job.Status), job.TargetPath, job.Collection, job.Shard, boolToInt(job.Incremental),
		job.TotalDocs, job.Processed, job.Failed, job.Skipped,
		encodeNullableTime(job.StartedAt), encodeNullableTime(job.CompletedAt),
		job.Error, job.ETASeconds, job.ID)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob merges partial fields into the stored job and re-persists it.
// Terminal transitions remove the job from the active set and bump the
// completed-jobs counter, all within one transaction. Updates against a job
// already in a terminal state are ignored, preserving status monotonicity.
func (s *Store) UpdateJob(ctx context.Context, id string, update JobUpdate) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRow(`
		SELECT id, status, target_path, collection, shard, incremental,
		       total_docs, processed_docs, failed_docs, skipped_docs,
		       created_at, started_at, completed_at, error, eta_seconds
		FROM jobs WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, derrors.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	// Terminal states are final.
	if job.Status.Terminal() {
		return job, nil
	}

	becameTerminal := false
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, derrors.InvalidInput("unknown job status %q", *update.Status)
		}
		if update.Status.Terminal() {
			becameTerminal = true
		}
		job.Status = *update.Status
	}
	if update.TotalDocs != nil {
		job.TotalDocs = *update.TotalDocs
	}
	if update.Processed != nil {
		job.Processed = *update.Processed
	}
	if update.Failed != nil {
		job.Failed = *update.Failed
	}
	if update.Skipped != nil {
		job.Skipped = *update.Skipped
	}
	if update.StartedAt != nil {
		t := *update.StartedAt
		job.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		job.CompletedAt = &t
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	if update.ETASeconds != nil {
		job.ETASeconds = *update.ETASeconds
	}

	if becameTerminal && job.CompletedAt == nil {
		t := s.now()
		job.CompletedAt = &t
	}

	if _, err := tx.Exec(`
		UPDATE jobs SET
			status = ?, total_docs = ?, processed_docs = ?, failed_docs = ?, skipped_docs = ?,
			started_at = ?, completed_at = ?, error = ?, eta_seconds = ?
		WHERE id = ?
	`, string(job.Status), job.TotalDocs, job.Processed, job.Failed, job.Skipped,
		encodeNullableTime(job.StartedAt), encodeNullableTime(job.CompletedAt),
		job.Error, job.ETASeconds, id); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}

	if becameTerminal {
		if _, err := tx.Exec(`DELETE FROM active_jobs WHERE job_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to deactivate job %s: %w", id, err)
		}
		if err := incrementMeta(tx, metaKeyCompletedJobs, 1); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}

	return job, nil
}

// ListJobs returns all jobs, newest first. Corrupt rows are skipped with a
// warning so one bad record cannot break the listing.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, target_path, collection, shard, incremental,
		       total_docs, processed_docs, failed_docs, skipped_docs,
		       created_at, started_at, completed_at, error, eta_seconds
		FROM jobs ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Warn("skipping unreadable job row", slog.String("error", err.Error()))
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

// ActiveJobIDs returns the IDs of jobs not yet in a terminal state.
func (s *Store) ActiveJobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id FROM active_jobs ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan active job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one job row. Returns sql.ErrNoRows unchanged for callers that
// map it to not-found.
func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, createdAt string
	var startedAt, completedAt sql.NullString
	var incremental int

	err := row.Scan(&job.ID, &status, &job.TargetPath, &job.Collection, &job.Shard, &incremental,
		&job.TotalDocs, &job.Processed, &job.Failed, &job.Skipped,
		&createdAt, &startedAt, &completedAt, &job.Error, &job.ETASeconds)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	if !job.Status.Valid() {
		return nil, fmt.Errorf("corrupt job status %q for %s", status, job.ID)
	}
	job.Incremental = incremental != 0

	if job.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for %s: %w", job.ID, err)
	}
	if job.StartedAt, err = decodeNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("corrupt started_at for %s: %w", job.ID, err)
	}
	if job.CompletedAt, err = decodeNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("corrupt completed_at for %s: %w", job.ID, err)
	}

	return &job, nil
}

func encodeNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
