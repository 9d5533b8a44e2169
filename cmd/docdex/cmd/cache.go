package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/output"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the search result cache",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.coord.CacheStats(cmd.Context())
			if err != nil {
				return err
			}

			out.Header("Search cache")
			out.Field("entries", stats.EntryCount)
			out.Field("hits", stats.TotalHits)
			out.Field("misses", stats.TotalMisses)
			out.Field("hit rate", fmt.Sprintf("%.1f%%", stats.HitRate*100))
			out.Field("size", formatBytes(stats.SizeBytes))
			if stats.OldestEntry != nil {
				out.Field("oldest", stats.OldestEntry.Format(time.RFC3339))
			}
			if stats.NewestEntry != nil {
				out.Field("newest", stats.NewestEntry.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached search result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.coord.ClearCache(cmd.Context())
			if err != nil {
				return err
			}

			out.Success("removed %d cached results", n)
			return nil
		},
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
