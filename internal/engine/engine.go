// Package engine defines the interfaces docdex consumes from the external
// reasoning-based retrieval engine, and a subprocess-backed implementation.
//
// The engine is an opaque collaborator: docdex never inspects how it builds
// trees or reasons over them. It only needs build_index and search, each
// bounded by a caller-supplied context deadline.
package engine

import (
	"context"
	"time"
)

// ResultSchemaVersion identifies the result record shape. Persisted alongside
// cached payloads so deserialization can fail closed on schema drift.
const ResultSchemaVersion = 1

// Result is one search hit returned by the engine.
type Result struct {
	Content  string  `json:"content"`
	Citation string  `json:"citation"`
	Page     int     `json:"page,omitempty"`
	Section  string  `json:"section,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// BuildResult is the outcome of indexing a single document.
type BuildResult struct {
	Success   bool          `json:"success"`
	NodeCount int           `json:"node_count,omitempty"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Indexer builds the engine-side index for a single document.
type Indexer interface {
	// BuildIndex indexes the document at path. A non-nil error means the
	// call itself failed (transport, timeout); an unsuccessful BuildResult
	// means the engine processed the request but could not index the document.
	BuildIndex(ctx context.Context, path string) (*BuildResult, error)
}

// Searcher runs a semantic query against the engine.
type Searcher interface {
	// Search returns matching results ordered by relevance. An empty slice
	// means no matches, which is not an error. Collection may be empty to
	// search everything.
	Search(ctx context.Context, query, collection string, maxResults int) ([]Result, error)
}

// Engine combines the two capabilities with a lifecycle.
type Engine interface {
	Indexer
	Searcher
	Close() error
}
