package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/output"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"collection"},
		Short:   "Manage document collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionsList(cmd)
		},
	}

	cmd.AddCommand(newCollectionsRegisterCmd())
	cmd.AddCommand(newCollectionsShowCmd())
	return cmd
}

func newCollectionsRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <path>",
		Short: "Register a collection rooted at a directory",
		Long: `Register a collection rooted at a directory.

Re-registering an existing name resets its document count and shards.
Index into it afterwards with 'docdex index <path> --collection <name>'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.coord.RegisterCollection(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			out.Success("registered collection %s at %s", args[0], args[1])
			return nil
		},
	}
}

func runCollectionsList(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	collections, err := a.coord.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		out.Dim("no collections")
		return nil
	}

	rows := make([][]string, 0, len(collections))
	for _, coll := range collections {
		shards := "-"
		if coll.Sharded {
			shards = strconv.Itoa(len(coll.Shards))
		}
		rows = append(rows, []string{
			coll.Name,
			strconv.Itoa(coll.DocCount),
			shards,
			coll.RootPath,
		})
	}
	out.Table([]string{"NAME", "DOCS", "SHARDS", "PATH"}, rows)
	return nil
}

func newCollectionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one collection with its shards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			coll, err := a.coord.GetCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Header(coll.Name)
			out.Field("path", coll.RootPath)
			out.Field("documents", coll.DocCount)
			if coll.IndexedAt != nil {
				out.Field("indexed", coll.IndexedAt.Format("2006-01-02 15:04:05"))
			}
			if coll.Sharded {
				out.Newline()
				rows := make([][]string, 0, len(coll.Shards))
				for _, sh := range coll.Shards {
					label := sh.Label
					if label == "" {
						label = "-"
					}
					rows = append(rows, []string{
						sh.Name, label, fmt.Sprintf("%d", sh.DocCount), sh.SubPath,
					})
				}
				out.Table([]string{"SHARD", "LABEL", "DOCS", "SUBPATH"}, rows)
			}
			return nil
		},
	}
}
