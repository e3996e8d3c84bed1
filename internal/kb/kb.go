// Package kb orchestrates the engine's workflows: full reindex, incremental
// update, query, and link analysis. Workflows are one-shot, run one at a
// time, and collect per-document failures instead of aborting the batch.
package kb

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/chunk"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/embed"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/linker"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// Thresholds is the per-category cutoff set. Every threshold's kind must
// match the active provider's metric; config validation enforces that before
// a Manager is ever built.
type Thresholds struct {
	Content score.Threshold
	Tag     score.Threshold
	Date    score.Threshold
	Links   score.Threshold
}

// Config tunes the manager.
type Config struct {
	Chunking   chunk.Config
	Thresholds Thresholds
	// QueryLimit is the default result count for Query. Zero means 10.
	QueryLimit int
}

// Manager ties the vault, provider, vector index, catalog, and linker
// together.
type Manager struct {
	source   note.Source
	provider embed.Provider
	index    vecindex.Index
	catalog  catalog.Store
	analyzer *linker.Analyzer
	writer   *linker.Writer
	cfg      Config

	mu sync.Mutex // one workflow at a time
}

// NewManager creates a workflow manager.
func NewManager(source note.Source, provider embed.Provider, index vecindex.Index, cat catalog.Store, analyzer *linker.Analyzer, writer *linker.Writer, cfg Config) *Manager {
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 10
	}
	return &Manager{
		source:   source,
		provider: provider,
		index:    index,
		catalog:  cat,
		analyzer: analyzer,
		writer:   writer,
		cfg:      cfg,
	}
}

// Failure records one document a workflow could not process.
type Failure struct {
	DocID string
	Err   error
}

// Summary is the outcome of an indexing workflow.
type Summary struct {
	RunID     string
	Succeeded []string
	Failed    []Failure
	// Skipped lists documents that were already fresh.
	Skipped []string
	// Unprocessed lists documents not attempted because the provider went
	// down mid-workflow. Prior committed documents stand.
	Unprocessed []string
	// Chunks counts chunk vectors stored across succeeded documents. On a
	// dry run it counts what a real run would have stored.
	Chunks int
	// Embedded counts chunks that needed a fresh embedding.
	Embedded int
	// Deleted counts superseded chunk vectors removed.
	Deleted int
	// DryRun marks that no writes were performed.
	DryRun bool
}

// ProviderUnavailableError aborts a workflow when the embedding provider
// keeps failing. Documents already committed stand; Unprocessed lists the
// rest.
type ProviderUnavailableError struct {
	Unprocessed []string
	Err         error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("embedding provider unavailable, %d documents unprocessed: %v", len(e.Unprocessed), e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// IndexCorruptionError means the vector index cannot serve the configured
// provider. It is fatal; the remediation is a full reindex.
type IndexCorruptionError struct {
	Err error
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("vector index unusable: %v (rebuild with a full reindex)", e.Err)
}

func (e *IndexCorruptionError) Unwrap() error { return e.Err }

// VerifyIndex checks that the stored index matches the active provider
// configuration. Every command except full reindex runs this first.
func (m *Manager) VerifyIndex(ctx context.Context) error {
	if err := m.index.Verify(ctx); err != nil {
		return &IndexCorruptionError{Err: err}
	}
	return nil
}
