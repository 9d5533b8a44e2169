// Package config loads and validates docdex configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (NewConfig)
//  2. Project config file (.docdex.yaml in the project root)
//  3. Environment variables (DOCDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project configuration file name.
const ConfigFileName = ".docdex.yaml"

// DataDirName is the per-project data directory name.
const DataDirName = ".docdex"

// Config represents the complete docdex configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// PathsConfig configures which documents are considered for indexing.
type PathsConfig struct {
	// IncludeExtensions lists file extensions treated as documents.
	IncludeExtensions []string `yaml:"include_extensions" json:"include_extensions"`
	// Exclude lists path patterns to skip during discovery.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSizeMB is the largest document size to index, in megabytes.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// EngineConfig configures the external retrieval engine subprocess.
type EngineConfig struct {
	// Command is the engine executable. Required for index/search commands.
	Command string `yaml:"command" json:"command"`
	// Args are additional arguments passed to the engine.
	Args []string `yaml:"args" json:"args"`
	// Timeout bounds a single build_index or search call (e.g. "30s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// IndexingConfig configures background job execution.
type IndexingConfig struct {
	// MaxConcurrentJobs bounds the number of jobs executing at once.
	// Jobs beyond the bound stay pending until a worker frees up.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	// QueueSize is the capacity of the pending-job queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// DocumentWorkers is the per-job parallelism for document processing.
	DocumentWorkers int `yaml:"document_workers" json:"document_workers"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	// TTL is how long a cached result stays valid (e.g. "15m").
	TTL string `yaml:"ttl" json:"ttl"`
	// MemoryEntries is the size of the in-memory LRU front. Zero disables it.
	MemoryEntries int `yaml:"memory_entries" json:"memory_entries"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long to batch file events before enqueueing a job.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			IncludeExtensions: []string{".md", ".txt", ".rst", ".pdf", ".html"},
			Exclude:           []string{".git", "node_modules", "vendor", DataDirName},
			MaxFileSizeMB:     100,
		},
		Engine: EngineConfig{
			Command: "",
			Timeout: "30s",
		},
		Indexing: IndexingConfig{
			MaxConcurrentJobs: 2,
			QueueSize:         64,
			DocumentWorkers:   4,
		},
		Cache: CacheConfig{
			TTL:           "15m",
			MemoryEntries: 256,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration for the given project directory.
// A missing config file is not an error; defaults are returned.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadYAML merges values from a YAML file into the config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies DOCDEX_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCDEX_ENGINE_COMMAND"); v != "" {
		c.Engine.Command = v
	}
	if v := os.Getenv("DOCDEX_ENGINE_TIMEOUT"); v != "" {
		c.Engine.Timeout = v
	}
	if v := os.Getenv("DOCDEX_CACHE_TTL"); v != "" {
		c.Cache.TTL = v
	}
	if v := os.Getenv("DOCDEX_MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.MaxConcurrentJobs = n
		}
	}
	if v := os.Getenv("DOCDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Indexing.MaxConcurrentJobs < 1 {
		return fmt.Errorf("indexing.max_concurrent_jobs must be >= 1, got %d", c.Indexing.MaxConcurrentJobs)
	}
	if c.Indexing.QueueSize < 1 {
		return fmt.Errorf("indexing.queue_size must be >= 1, got %d", c.Indexing.QueueSize)
	}
	if c.Indexing.DocumentWorkers < 1 {
		return fmt.Errorf("indexing.document_workers must be >= 1, got %d", c.Indexing.DocumentWorkers)
	}
	if c.Paths.MaxFileSizeMB < 1 {
		return fmt.Errorf("paths.max_file_size_mb must be >= 1, got %d", c.Paths.MaxFileSizeMB)
	}
	if _, err := time.ParseDuration(c.Engine.Timeout); err != nil {
		return fmt.Errorf("engine.timeout is not a valid duration: %q", c.Engine.Timeout)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl is not a valid duration: %q", c.Cache.TTL)
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce is not a valid duration: %q", c.Watch.Debounce)
	}
	return nil
}

// EngineTimeout returns the parsed engine call timeout.
func (c *Config) EngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheTTL returns the parsed cache TTL.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// WatchDebounce returns the parsed watch debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// MaxFileSize returns the maximum document size in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Paths.MaxFileSizeMB) * 1024 * 1024
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DataDir returns the data directory for a project root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}
