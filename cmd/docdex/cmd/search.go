package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/engine"
	"github.com/docdex/docdex/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	collection string
	limit      int
	format     string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search indexed documents through the configured engine.

Results are cached; repeating a query within the cache TTL does not
invoke the engine again.

Examples:
  docdex search "warranty period"
  docdex search "install steps" --collection manuals --limit 5
  docdex search "error codes" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Restrict to one collection")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q, expected text or json", opts.format)
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.coord.Search(cmd.Context(), query, opts.collection, opts.limit)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printResults(output.New(cmd.OutOrStdout()), query, results)
	return nil
}

func printResults(out *output.Writer, query string, results []engine.Result) {
	if len(results) == 0 {
		out.Dim("no results for %q", query)
		return
	}

	for i, r := range results {
		loc := r.Citation
		if r.Page > 0 {
			loc = fmt.Sprintf("%s, page %d", loc, r.Page)
		}
		if r.Section != "" {
			loc = fmt.Sprintf("%s (%s)", loc, r.Section)
		}
		out.Header(fmt.Sprintf("%d. %s", i+1, loc))
		if r.Score > 0 {
			out.Dim("score %.2f", r.Score)
		}
		out.Printf("%s", strings.TrimSpace(r.Content))
		out.Newline()
	}
}
