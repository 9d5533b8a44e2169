package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/output"
	"github.com/docdex/docdex/internal/store"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	collection  string
	shard       string
	incremental bool
	wait        bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index documents under a directory",
		Long: `Index documents under a directory through the configured engine.

With --incremental, documents whose content hash matches the stored
fingerprint are skipped.

Examples:
  docdex index ./docs
  docdex index ./docs --collection manuals --incremental
  docdex index ./docs/2025 --collection archive --shard 2025`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Collection to attribute the run to")
	cmd.Flags().StringVar(&opts.shard, "shard", "", "Shard name within the collection")
	cmd.Flags().BoolVarP(&opts.incremental, "incremental", "i", false, "Skip documents with unchanged content")
	cmd.Flags().BoolVar(&opts.wait, "wait", true, "Wait for the job to finish")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Start(ctx); err != nil {
		return err
	}

	jobID, err := a.coord.StartIndexJob(ctx, path, opts.collection, opts.incremental, opts.shard)
	if err != nil {
		return err
	}
	out.Printf("job %s", jobID)

	if !opts.wait {
		out.Warning("job runs only while a docdex process is alive; an exit now leaves it unfinished")
		return nil
	}

	job, err := waitForTerminal(ctx, a, out, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case store.JobStatusCompleted:
		out.Success("indexed %d documents (%d skipped, %d failed) in %s",
			job.Processed, job.Skipped, job.Failed, jobDuration(job))
		if job.Error != "" {
			out.Warning("%s", job.Error)
		}
	case store.JobStatusCancelled:
		out.Warning("job cancelled after %d of %d documents", job.Processed, job.TotalDocs)
	default:
		out.Error("job failed: %s", job.Error)
		return fmt.Errorf("indexing failed")
	}
	return nil
}

// waitForTerminal polls job status, echoing progress as it moves.
func waitForTerminal(ctx context.Context, a *app, out *output.Writer, jobID string) (*store.Job, error) {
	lastDone := -1
	for {
		job, err := a.coord.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		if done := job.Processed + job.Failed + job.Skipped; done != lastDone && job.TotalDocs > 0 {
			lastDone = done
			out.Dim("%d/%d documents", done, job.TotalDocs)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func jobDuration(job *store.Job) time.Duration {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return 0
	}
	return job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond)
}
