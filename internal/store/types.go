// Package store persists docdex coordination state in SQLite: document
// fingerprints, the search result cache, indexing jobs, and the collection
// registry. One database file, one logical namespace per concern.
//
// The store is owned exclusively by the coordinator. Per-entity operations
// (one job, one cache entry, one fingerprint) are independent units; aggregate
// mutations (active-jobs set, counters, collection totals) run inside
// transactions so concurrent read-modify-write cannot lose updates.
package store

import (
	"time"

	"github.com/docdex/docdex/internal/engine"
)

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal states admit no
// further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one asynchronous indexing run.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	TargetPath  string     `json:"target_path"`
	Collection  string     `json:"collection,omitempty"`
	Shard       string     `json:"shard,omitempty"`
	Incremental bool       `json:"incremental"`
	TotalDocs   int        `json:"total_docs"`
	Processed   int        `json:"processed_docs"`
	Failed      int        `json:"failed_docs"`
	Skipped     int        `json:"skipped_docs"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	ETASeconds  int        `json:"eta_seconds,omitempty"`
}

// JobUpdate is a partial update merged into a stored job. Nil fields are
// left untouched; the job ID itself is immutable.
type JobUpdate struct {
	Status      *JobStatus
	TotalDocs   *int
	Processed   *int
	Failed      *int
	Skipped     *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string
	ETASeconds  *int
}

// Fingerprint is the recorded indexed state of one document.
// The hash reflects the content as of IndexedAt, not necessarily the file's
// current state.
type Fingerprint struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	IndexedAt time.Time `json:"indexed_at"`
}

// CacheEntry is a memoized search result set.
type CacheEntry struct {
	Key        string          `json:"key"`
	Query      string          `json:"query"`
	Collection string          `json:"collection,omitempty"`
	Results    []engine.Result `json:"results"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Hits       int64           `json:"hits"`
}

// CacheStats aggregates over the whole cache namespace. Misses are recorded
// exactly in a counter (not estimated from hits), so HitRate reflects real
// traffic.
type CacheStats struct {
	EntryCount  int        `json:"entry_count"`
	TotalHits   int64      `json:"total_hits"`
	TotalMisses int64      `json:"total_misses"`
	HitRate     float64    `json:"hit_rate"`
	SizeBytes   int64      `json:"size_bytes"`
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry *time.Time `json:"newest_entry,omitempty"`
}

// Shard is a named, independently addressable subset of a collection.
type Shard struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	DocCount int    `json:"doc_count"`
	SubPath  string `json:"sub_path,omitempty"`
}

// Collection is a named, search-routable grouping of documents.
type Collection struct {
	Name       string     `json:"name"`
	RootPath   string     `json:"root_path"`
	DocCount   int        `json:"doc_count"`
	Sharded    bool       `json:"sharded"`
	Shards     []Shard    `json:"shards,omitempty"`
	IndexedAt  *time.Time `json:"indexed_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// Meta keys for the shared counters namespace.
const (
	metaKeySchemaVersion  = "schema_version"
	metaKeyCompletedJobs  = "completed_jobs"
	metaKeyCacheMisses    = "cache_misses"
	metaKeyTotalDocuments = "total_documents"
)

// cachedPayload is the persisted shape of a cache entry's result set.
// The schema version lets deserialization fail closed on drift.
type cachedPayload struct {
	SchemaVersion int             `json:"schema_version"`
	Results       []engine.Result `json:"results"`
}
