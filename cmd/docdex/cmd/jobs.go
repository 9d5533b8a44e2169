package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/output"
	"github.com/docdex/docdex/internal/store"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage indexing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd)
		},
	}

	cmd.AddCommand(newJobsStatusCmd())
	cmd.AddCommand(newJobsCancelCmd())
	return cmd
}

func runJobsList(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	jobs, err := a.coord.ListJobs(cmd.Context())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		out.Dim("no jobs")
		return nil
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			fmt.Sprintf("%d/%d", job.Processed+job.Skipped, job.TotalDocs),
			job.TargetPath,
		})
	}
	out.Table([]string{"ID", "STATUS", "DONE", "PATH"}, rows)
	return nil
}

func newJobsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.coord.GetJobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printJob(out, job)
			return nil
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Long: `Request cancellation of a pending or running job.

Cancellation is cooperative: a running job stops between documents.
Cancelling a finished job is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.coord.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if job.Status == store.JobStatusCancelled {
				out.Success("job %s cancelled", job.ID)
			} else {
				out.Dim("job %s already %s", job.ID, job.Status)
			}
			return nil
		},
	}
}

func printJob(out *output.Writer, job *store.Job) {
	out.Header(job.ID)
	out.Field("status", string(job.Status))
	out.Field("path", job.TargetPath)
	if job.Collection != "" {
		out.Field("collection", job.Collection)
	}
	if job.Shard != "" {
		out.Field("shard", job.Shard)
	}
	out.Field("incremental", job.Incremental)
	out.Field("documents", fmt.Sprintf("%d total, %d processed, %d skipped, %d failed",
		job.TotalDocs, job.Processed, job.Skipped, job.Failed))
	out.Field("created", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		out.Field("started", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		out.Field("completed", job.CompletedAt.Format(time.RFC3339))
	}
	if !job.Status.Terminal() && job.ETASeconds > 0 {
		out.Field("eta", (time.Duration(job.ETASeconds) * time.Second).String())
	}
	if job.Error != "" {
		out.Field("error", job.Error)
	}
}
