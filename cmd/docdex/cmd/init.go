package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			path := filepath.Join(projectDir, config.ConfigFileName)

			if _, err := os.Stat(path); err == nil && !force {
				out.Warning("%s already exists, use --force to overwrite", path)
				return nil
			}

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}

			out.Success("wrote %s", path)
			out.Dim("set engine.command to your retrieval engine binary, then run 'docdex index .'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
