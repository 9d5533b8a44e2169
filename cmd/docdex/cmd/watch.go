package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/output"
	"github.com/docdex/docdex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and re-index changed documents",
		Long: `Watch a directory and enqueue an incremental index job whenever
documents change. Changes are debounced so a burst of saves becomes one
job. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := projectDir
			if len(args) == 1 {
				path = args[0]
			}
			return runWatch(cmd, path, collection)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to attribute jobs to")
	return cmd
}

func runWatch(cmd *cobra.Command, path, collection string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.coord.Start(ctx); err != nil {
		return err
	}

	w, err := watcher.New(path, watcher.Options{
		Debounce:          a.cfg.WatchDebounce(),
		IncludeExtensions: a.cfg.Paths.IncludeExtensions,
		ExcludePatterns:   a.cfg.Paths.Exclude,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if err := w.Start(ctx); err != nil {
		return err
	}
	out.Printf("watching %s, ctrl-c to stop", path)

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Dim("stopping")
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			jobID, err := a.coord.StartIndexJob(ctx, path, collection, true, "")
			if err != nil {
				out.Warning("failed to schedule job: %v", err)
				continue
			}
			out.Printf("%d changed, job %s", len(batch), jobID)
		}
	}
}
