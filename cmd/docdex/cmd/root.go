// Package cmd provides the CLI commands for docdex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/coordinator"
	"github.com/docdex/docdex/internal/engine"
	"github.com/docdex/docdex/internal/logging"
	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/pkg/version"
)

var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docdex",
		Short: "Document indexing frontend for a reasoning-based retrieval engine",
		Long: `Docdex coordinates document indexing and search over an external
reasoning-based retrieval engine. It tracks asynchronous indexing jobs,
skips unchanged documents via content hashing, caches search results
with a TTL, and keeps collection and shard bookkeeping.

Run 'docdex init' in a project directory to get started.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("docdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "d", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docdex/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging must never block the actual command.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// app bundles the wired-up pieces a command needs. Close releases them in
// reverse order.
type app struct {
	cfg   *config.Config
	store *store.Store
	eng   engine.Engine
	coord *coordinator.Coordinator
}

// openApp loads config and opens the store. When withEngine is set the
// external engine subprocess is spawned too; commands that only read state
// (jobs, cache stats, collections) leave it out.
func openApp(withEngine bool) (*app, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(config.DataDir(projectDir))
	if err != nil {
		return nil, err
	}
	if cfg.Cache.MemoryEntries > 0 {
		st.EnableMemoryCache(cfg.Cache.MemoryEntries, cfg.CacheTTL())
	}

	var eng engine.Engine
	if withEngine {
		if cfg.Engine.Command == "" {
			_ = st.Close()
			return nil, fmt.Errorf("no engine configured: set engine.command in %s or DOCDEX_ENGINE_COMMAND", config.ConfigFileName)
		}
		eng, err = engine.NewSubprocess(cfg.Engine.Command, cfg.Engine.Args...)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	coord := coordinator.New(st, eng, coordinator.Config{
		MaxConcurrentJobs: cfg.Indexing.MaxConcurrentJobs,
		QueueSize:         cfg.Indexing.QueueSize,
		DocumentWorkers:   cfg.Indexing.DocumentWorkers,
		CacheTTL:          cfg.CacheTTL(),
		EngineTimeout:     cfg.EngineTimeout(),
		IncludeExtensions: cfg.Paths.IncludeExtensions,
		ExcludePatterns:   cfg.Paths.Exclude,
		MaxFileSize:       cfg.MaxFileSize(),
	})

	return &app{cfg: cfg, store: st, eng: eng, coord: coord}, nil
}

func (a *app) close() {
	a.coord.Close()
	if a.eng != nil {
		_ = a.eng.Close()
	}
	_ = a.store.Close()
}
