package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docdex/docdex/internal/fingerprint"
	"github.com/docdex/docdex/internal/scanner"
	"github.com/docdex/docdex/internal/store"
)

// worker consumes scheduled job IDs until the coordinator shuts down.
func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case id := <-c.queue:
			c.runJob(id)
		}
	}
}

// jobProgress accumulates per-document outcomes and flushes them to the store
// after every document. The mutex covers both the snapshot and its persist:
// snapshots reach the store in the order they were taken, so status readers
// see counters that only ever grow.
type jobProgress struct {
	mu        sync.Mutex
	processed int
	failed    int
	skipped   int
	startedAt time.Time
	total     int
}

// record applies one outcome and returns the new counter snapshot. Callers
// must hold mu.
func (p *jobProgress) record(outcome docOutcome) (processed, failed, skipped, eta int) {
	switch outcome {
	case docProcessed:
		p.processed++
	case docFailed:
		p.failed++
	case docSkipped:
		p.skipped++
	}
	done := p.processed + p.failed + p.skipped
	if p.processed > 0 && done < p.total {
		perDoc := time.Since(p.startedAt) / time.Duration(done)
		eta = int((perDoc * time.Duration(p.total-done)).Seconds())
	}
	return p.processed, p.failed, p.skipped, eta
}

type docOutcome int

const (
	docProcessed docOutcome = iota
	docFailed
	docSkipped
)

// runJob executes one indexing job end to end.
func (c *Coordinator) runJob(id string) {
	ctx := c.ctx
	log := slog.With(slog.String("job_id", id))

	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		log.Warn("scheduled job vanished", slog.String("error", err.Error()))
		return
	}
	// Cancelled while still pending.
	if job.Status.Terminal() {
		return
	}

	started := time.Now()
	running := store.JobStatusRunning
	if _, err := c.store.UpdateJob(ctx, id, store.JobUpdate{
		Status:    &running,
		StartedAt: &started,
	}); err != nil {
		log.Warn("failed to mark job running", slog.String("error", err.Error()))
		return
	}

	docs, err := c.scanner.ScanAll(ctx, scanner.Options{
		RootDir:           job.TargetPath,
		IncludeExtensions: c.cfg.IncludeExtensions,
		ExcludePatterns:   c.cfg.ExcludePatterns,
		MaxFileSize:       c.cfg.MaxFileSize,
	})
	if err != nil {
		c.finishJob(ctx, id, store.JobStatusFailed, fmt.Sprintf("document discovery failed: %v", err))
		return
	}

	total := len(docs)
	if _, err := c.store.UpdateJob(ctx, id, store.JobUpdate{TotalDocs: &total}); err != nil {
		log.Warn("failed to record document total", slog.String("error", err.Error()))
	}
	log.Info("job running", slog.Int("total_docs", total), slog.Bool("incremental", job.Incremental))

	progress := &jobProgress{startedAt: started, total: total}

	// Cancellation is cooperative: each worker re-checks job status between
	// documents and stops taking new ones, without interrupting an in-flight
	// engine call.
	var cancelled atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.DocumentWorkers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if cancelled.Load() {
				return nil
			}
			if c.jobCancelled(ctx, id) {
				cancelled.Store(true)
				return nil
			}
			outcome := c.processDocument(ctx, log, job, doc)
			c.flushProgress(ctx, id, progress, outcome)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case cancelled.Load() || c.jobCancelled(ctx, id):
		// The terminal cancelled status was already written by CancelJob;
		// this update is a no-op unless the process itself is stopping.
		c.finishJob(ctx, id, store.JobStatusCancelled, "")
	case total > 0 && progress.failed == total:
		c.finishJob(ctx, id, store.JobStatusFailed, "all documents failed to index")
	default:
		errMsg := ""
		if progress.failed > 0 {
			errMsg = fmt.Sprintf("%d of %d documents failed to index", progress.failed, total)
		}
		c.finishJob(ctx, id, store.JobStatusCompleted, errMsg)
		c.updateCollectionAfterJob(ctx, log, job, total-progress.failed)
	}
}

// processDocument classifies one document against its stored fingerprint and
// indexes it through the engine when new or changed. A failure here never
// aborts the rest of the batch.
func (c *Coordinator) processDocument(ctx context.Context, log *slog.Logger, job *store.Job, doc *scanner.Document) docOutcome {
	digest, err := fingerprint.ComputeFile(doc.AbsPath)
	if err != nil {
		log.Warn("failed to hash document",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
		return docFailed
	}

	if job.Incremental {
		prior, err := c.store.GetFingerprint(ctx, doc.AbsPath)
		if err != nil {
			log.Warn("failed to load fingerprint",
				slog.String("path", doc.Path),
				slog.String("error", err.Error()))
		} else if prior != nil && prior.Hash == digest.Hash {
			return docSkipped
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.EngineTimeout)
	defer cancel()

	result, err := c.engine.BuildIndex(callCtx, doc.AbsPath)
	if err != nil {
		log.Warn("engine call failed",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
		return docFailed
	}
	if !result.Success {
		log.Warn("engine could not index document",
			slog.String("path", doc.Path),
			slog.String("error", result.Error))
		return docFailed
	}

	if err := c.store.PutFingerprint(ctx, &store.Fingerprint{
		Path:      doc.AbsPath,
		Hash:      digest.Hash,
		Size:      digest.Size,
		ModTime:   digest.ModTime,
		IndexedAt: time.Now(),
	}); err != nil {
		log.Warn("failed to persist fingerprint",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
		return docFailed
	}

	return docProcessed
}

// flushProgress records an outcome and persists the new counters. Holding the
// progress mutex across the store write keeps a slow earlier write from
// landing after a later one and rolling the counters back.
func (c *Coordinator) flushProgress(ctx context.Context, id string, progress *jobProgress, outcome docOutcome) {
	progress.mu.Lock()
	defer progress.mu.Unlock()

	processed, failed, skipped, eta := progress.record(outcome)
	if _, err := c.store.UpdateJob(ctx, id, store.JobUpdate{
		Processed:  &processed,
		Failed:     &failed,
		Skipped:    &skipped,
		ETASeconds: &eta,
	}); err != nil {
		slog.Warn("failed to persist job progress",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
	}
}

// jobCancelled reports whether the job has been cancelled out from under the
// executor.
func (c *Coordinator) jobCancelled(ctx context.Context, id string) bool {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return false
	}
	return job.Status == store.JobStatusCancelled
}

// finishJob writes the terminal state. Writes against a job another path
// already finished (e.g. cancellation) are no-ops.
func (c *Coordinator) finishJob(ctx context.Context, id string, status store.JobStatus, errMsg string) {
	update := store.JobUpdate{Status: &status}
	if errMsg != "" {
		update.Error = &errMsg
	}
	job, err := c.store.UpdateJob(ctx, id, update)
	if err != nil {
		slog.Warn("failed to finish job",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("job finished",
		slog.String("job_id", id),
		slog.String("status", string(job.Status)),
		slog.Int("processed", job.Processed),
		slog.Int("failed", job.Failed),
		slog.Int("skipped", job.Skipped))
}

// updateCollectionAfterJob reconciles collection statistics once a job
// completes. Jobs without a collection leave the registry untouched; an
// unregistered collection is logged, not an error.
func (c *Coordinator) updateCollectionAfterJob(ctx context.Context, log *slog.Logger, job *store.Job, docCount int) {
	if job.Collection == "" {
		return
	}

	coll, err := c.store.GetCollection(ctx, job.Collection)
	if err != nil {
		log.Warn("completed job references unknown collection",
			slog.String("collection", job.Collection),
			slog.String("error", err.Error()))
		return
	}

	shards := coll.Shards
	total := docCount
	if job.Shard != "" {
		// Shard jobs replace that shard's count and leave siblings alone.
		found := false
		for i := range shards {
			if shards[i].Name == job.Shard {
				shards[i].DocCount = docCount
				found = true
				break
			}
		}
		if !found {
			shards = append(shards, store.Shard{
				Name:     job.Shard,
				DocCount: docCount,
				SubPath:  job.TargetPath,
			})
		}
		total = 0
		for _, sh := range shards {
			total += sh.DocCount
		}
	}

	if err := c.store.UpdateCollectionStats(ctx, job.Collection, total, shards); err != nil {
		log.Warn("failed to update collection statistics",
			slog.String("collection", job.Collection),
			slog.String("error", err.Error()))
	}
}
