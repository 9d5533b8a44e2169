// Package coordinator ties the fingerprint, cache, job and collection stores
// together behind one facade. It owns all cross-store logic: starting and
// executing indexing jobs, serving searches through the cache, and keeping
// collection statistics in step with completed runs.
//
// The coordinator is the sole writer of the backing store. CLI commands only
// ever call methods here.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/docdex/docdex/internal/engine"
	derrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/scanner"
	"github.com/docdex/docdex/internal/store"
)

// Config controls job execution and caching.
type Config struct {
	// MaxConcurrentJobs bounds jobs executing at once. Jobs beyond the bound
	// stay pending until a worker frees up.
	MaxConcurrentJobs int
	// QueueSize is the pending-queue capacity before enqueueing blocks in the
	// background.
	QueueSize int
	// DocumentWorkers is per-job parallelism for document processing.
	DocumentWorkers int
	// CacheTTL is the lifetime of cached search results.
	CacheTTL time.Duration
	// EngineTimeout bounds one build_index or search call.
	EngineTimeout time.Duration
	// IncludeExtensions, ExcludePatterns and MaxFileSize control document
	// discovery. See scanner.Options.
	IncludeExtensions []string
	ExcludePatterns   []string
	MaxFileSize       int64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs < 1 {
		c.MaxConcurrentJobs = 2
	}
	if c.QueueSize < 1 {
		c.QueueSize = 64
	}
	if c.DocumentWorkers < 1 {
		c.DocumentWorkers = 4
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.EngineTimeout <= 0 {
		c.EngineTimeout = 30 * time.Second
	}
	return c
}

// Coordinator is the storage-manager facade.
type Coordinator struct {
	store   *store.Store
	engine  engine.Engine
	scanner *scanner.Scanner
	cfg     Config

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a Coordinator over an opened store and engine. Call Start to
// begin executing jobs; queries and searches work without Start.
func New(st *store.Store, eng engine.Engine, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   st,
		engine:  eng,
		scanner: scanner.New(),
		cfg:     cfg,
		queue:   make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start recovers jobs interrupted by a previous crash and launches the worker
// pool. Idempotent.
func (c *Coordinator) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() {
		if err = c.recoverStaleJobs(ctx); err != nil {
			return
		}
		for i := 0; i < c.cfg.MaxConcurrentJobs; i++ {
			c.wg.Add(1)
			go c.worker()
		}
		slog.Info("coordinator started",
			slog.Int("workers", c.cfg.MaxConcurrentJobs),
			slog.Int("queue_size", c.cfg.QueueSize))
	})
	return err
}

// Close stops accepting work and waits for in-flight jobs to observe
// cancellation. The store and engine are owned by the caller.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

// recoverStaleJobs marks jobs left active by a previous process as failed.
// Recovery is observability, not resumption: the job history survives a
// crash, the work does not continue.
func (c *Coordinator) recoverStaleJobs(ctx context.Context) error {
	ids, err := c.store.ActiveJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active jobs for recovery: %w", err)
	}

	for _, id := range ids {
		msg := "interrupted by process restart"
		status := store.JobStatusFailed
		if _, err := c.store.UpdateJob(ctx, id, store.JobUpdate{
			Status: &status,
			Error:  &msg,
		}); err != nil {
			slog.Warn("failed to recover stale job",
				slog.String("job_id", id),
				slog.String("error", err.Error()))
			continue
		}
		slog.Info("marked interrupted job as failed", slog.String("job_id", id))
	}
	return nil
}

// StartIndexJob validates the target, persists a pending job and schedules it.
// Returns as soon as the record exists; execution is asynchronous. When the
// worker pool is saturated the job simply stays pending.
func (c *Coordinator) StartIndexJob(ctx context.Context, targetPath, collection string, incremental bool, shard string) (string, error) {
	if targetPath == "" {
		return "", derrors.InvalidInput("target path must not be empty")
	}
	info, err := os.Stat(targetPath)
	if err != nil {
		return "", derrors.InvalidInput("target path does not exist: %s", targetPath)
	}
	if !info.IsDir() {
		return "", derrors.InvalidInput("target path is not a directory: %s", targetPath)
	}
	if shard != "" && collection == "" {
		return "", derrors.InvalidInput("shard %q requires a collection", shard)
	}

	id, err := c.store.CreateJob(ctx, targetPath, collection, incremental, shard)
	if err != nil {
		return "", err
	}

	select {
	case c.queue <- id:
	default:
		// Queue full: keep the job pending and hand it over once a slot
		// frees. Backpressure, not an error.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			select {
			case c.queue <- id:
			case <-c.ctx.Done():
			}
		}()
	}

	slog.Info("index job scheduled",
		slog.String("job_id", id),
		slog.String("path", targetPath),
		slog.String("collection", collection),
		slog.Bool("incremental", incremental))
	return id, nil
}

// GetJobStatus returns the current job record.
func (c *Coordinator) GetJobStatus(ctx context.Context, jobID string) (*store.Job, error) {
	return c.store.GetJob(ctx, jobID)
}

// ListJobs returns all jobs, newest first.
func (c *Coordinator) ListJobs(ctx context.Context) ([]*store.Job, error) {
	return c.store.ListJobs(ctx)
}

// CancelJob requests cancellation of a pending or running job. Cancelling a
// job already in a terminal state is a no-op. Cancellation is cooperative:
// a running executor stops between documents, not mid-document.
func (c *Coordinator) CancelJob(ctx context.Context, jobID string) (*store.Job, error) {
	status := store.JobStatusCancelled
	job, err := c.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	if job.Status == store.JobStatusCancelled {
		slog.Info("job cancelled", slog.String("job_id", jobID))
	}
	return job, nil
}

// Search serves a query from the cache when possible, otherwise asks the
// engine and caches what it returns. The cache key is (query, collection)
// only: the cached set is bounded by the result cap of the request that
// populated it, and a later request with a larger cap is served that same
// set until the entry expires. Empty result sets are cached too; the TTL
// keeps a transient empty answer from poisoning the cache for long.
func (c *Coordinator) Search(ctx context.Context, query, collection string, maxResults int) ([]engine.Result, error) {
	if query == "" {
		return nil, derrors.InvalidInput("query must not be empty")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	entry, err := c.store.GetCached(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		slog.Debug("cache hit",
			slog.String("query", query),
			slog.Int64("hits", entry.Hits))
		return capResults(entry.Results, maxResults), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.EngineTimeout)
	defer cancel()

	results, err := c.engine.Search(callCtx, query, collection, maxResults)
	if err != nil {
		return nil, err
	}

	if err := c.store.PutCached(ctx, query, collection, results, c.cfg.CacheTTL); err != nil {
		slog.Warn("failed to cache search results", slog.String("error", err.Error()))
	}

	return capResults(results, maxResults), nil
}

// CacheStats aggregates cache statistics.
func (c *Coordinator) CacheStats(ctx context.Context) (*store.CacheStats, error) {
	return c.store.CacheStatistics(ctx)
}

// ClearCache drops every cached search result and returns how many were
// removed.
func (c *Coordinator) ClearCache(ctx context.Context) (int, error) {
	return c.store.ClearCache(ctx)
}

// RegisterCollection creates or resets a collection.
func (c *Coordinator) RegisterCollection(ctx context.Context, name, rootPath string) error {
	return c.store.RegisterCollection(ctx, name, rootPath)
}

// UpdateCollectionStats records a collection's document count and shard
// structure.
func (c *Coordinator) UpdateCollectionStats(ctx context.Context, name string, docCount int, shards []store.Shard) error {
	return c.store.UpdateCollectionStats(ctx, name, docCount, shards)
}

// GetCollection loads one collection.
func (c *Coordinator) GetCollection(ctx context.Context, name string) (*store.Collection, error) {
	return c.store.GetCollection(ctx, name)
}

// ListCollections returns all collections ordered by name.
func (c *Coordinator) ListCollections(ctx context.Context) ([]*store.Collection, error) {
	return c.store.ListCollections(ctx)
}

func capResults(results []engine.Result, max int) []engine.Result {
	if len(results) > max {
		return results[:max]
	}
	return results
}
