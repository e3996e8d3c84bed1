package kb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/chunk"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/embed"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// workflowContext tags the context logger with a fresh run ID.
func workflowContext(ctx context.Context, workflow string) (context.Context, string) {
	runID := uuid.NewString()
	logger := contextutil.LoggerFromContext(ctx).With("run_id", runID, "workflow", workflow)
	return contextutil.WithLogger(ctx, logger), runID
}

// FullReindex drops the vector index and catalog, then indexes every
// document in the vault from scratch.
func (m *Manager) FullReindex(ctx context.Context, dryRun bool) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, runID := workflowContext(ctx, "full_reindex")
	logger := contextutil.LoggerFromContext(ctx)
	summary := Summary{RunID: runID, DryRun: dryRun}

	docs, err := m.source.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("kb: list vault: %w", err)
	}
	logger.InfoContext(ctx, "full reindex starting", "documents", len(docs), "dry_run", dryRun)

	if !dryRun {
		if err := m.index.Drop(ctx); err != nil {
			return summary, fmt.Errorf("kb: drop index: %w", err)
		}
		// The dropped index has no identity; adopt the active one.
		if err := m.index.Verify(ctx); err != nil {
			return summary, &IndexCorruptionError{Err: err}
		}
		if err := m.catalog.Reset(ctx); err != nil {
			return summary, fmt.Errorf("kb: reset catalog: %w", err)
		}
	}

	return m.indexAll(ctx, docs, false, dryRun, summary)
}

// IncrementalUpdate re-indexes only the documents whose files changed since
// they were last indexed, reusing stored vectors for unchanged chunks.
func (m *Manager) IncrementalUpdate(ctx context.Context, dryRun bool) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, runID := workflowContext(ctx, "incremental_update")
	logger := contextutil.LoggerFromContext(ctx)
	summary := Summary{RunID: runID, DryRun: dryRun}

	docs, err := m.source.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("kb: list vault: %w", err)
	}
	stale, err := m.catalog.ListStale(ctx, docs)
	if err != nil {
		return summary, fmt.Errorf("kb: list stale: %w", err)
	}

	staleSet := make(map[string]struct{}, len(stale))
	for _, d := range stale {
		staleSet[d.ID] = struct{}{}
	}
	for _, d := range docs {
		if _, ok := staleSet[d.ID]; !ok {
			summary.Skipped = append(summary.Skipped, d.ID)
		}
	}

	logger.InfoContext(ctx, "incremental update starting",
		"documents", len(docs), "stale", len(stale), "dry_run", dryRun)
	return m.indexAll(ctx, stale, true, dryRun, summary)
}

// indexAll processes documents one by one, collecting failures. A provider
// outage aborts the rest of the batch; everything committed so far stands.
func (m *Manager) indexAll(ctx context.Context, docs []note.DocInfo, diff, dryRun bool, summary Summary) (Summary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	for i, d := range docs {
		stats, err := m.indexDoc(ctx, d, diff, dryRun)
		if err == nil {
			summary.Succeeded = append(summary.Succeeded, d.ID)
			summary.Chunks += stats.chunks
			summary.Embedded += stats.embedded
			summary.Deleted += stats.deleted
			continue
		}
		if errors.Is(err, embed.ErrUnavailable) {
			for _, rest := range docs[i:] {
				summary.Unprocessed = append(summary.Unprocessed, rest.ID)
			}
			logger.ErrorContext(ctx, "provider unavailable, aborting batch",
				"processed", len(summary.Succeeded), "unprocessed", len(summary.Unprocessed))
			return summary, &ProviderUnavailableError{Unprocessed: summary.Unprocessed, Err: err}
		}
		logger.WarnContext(ctx, "document failed", "doc", d.ID, "error", err)
		summary.Failed = append(summary.Failed, Failure{DocID: d.ID, Err: err})
	}

	logger.InfoContext(ctx, "indexing completed",
		"succeeded", len(summary.Succeeded), "failed", len(summary.Failed), "skipped", len(summary.Skipped))
	return summary, nil
}

// docStats counts what indexing one document changed (or, on a dry run,
// would have changed).
type docStats struct {
	chunks   int
	embedded int
	deleted  int
}

// indexDoc chunks, embeds, and stores one document. With diff set, chunk IDs
// that already exist keep their stored vectors and only new chunks are
// embedded. A dry run executes the whole read path, embedding included, and
// suppresses only the writes. Write ordering is deliberate: new points first,
// superseded deletions second, catalog record last, so a crash leaves the
// document stale rather than half-recorded.
func (m *Manager) indexDoc(ctx context.Context, d note.DocInfo, diff, dryRun bool) (docStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	text, err := m.source.Read(ctx, d.ID)
	if err != nil {
		return docStats{}, fmt.Errorf("read: %w", err)
	}
	doc := note.Parse(d.ID, text)
	chunks := chunk.Split(d.ID, doc.Body, m.cfg.Chunking)

	var oldIDs []string
	reuse := make(map[string][]float32)
	if diff {
		rec, err := m.catalog.Get(ctx, d.ID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			// first time through
		case err != nil:
			return docStats{}, fmt.Errorf("catalog lookup: %w", err)
		default:
			oldIDs = rec.ChunkIDs
		}
		if len(oldIDs) > 0 {
			stored, err := m.index.PointsByDoc(ctx, d.ID)
			if err != nil {
				return docStats{}, fmt.Errorf("load stored vectors: %w", err)
			}
			for _, p := range stored {
				reuse[p.ID] = p.Vector
			}
		}
	}

	var toEmbed []chunk.Chunk
	for _, c := range chunks {
		if _, ok := reuse[c.ID]; !ok {
			toEmbed = append(toEmbed, c)
		}
	}

	// Embed everything up front so a failed batch never leaves partial
	// vector writes behind.
	vectors, err := m.embedChunks(ctx, toEmbed)
	if err != nil {
		return docStats{}, err
	}

	newIDs := make([]string, len(chunks))
	newSet := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		newIDs[i] = c.ID
		newSet[c.ID] = struct{}{}
	}
	var superseded []string
	for _, id := range oldIDs {
		if _, ok := newSet[id]; !ok {
			superseded = append(superseded, id)
		}
	}
	stats := docStats{chunks: len(chunks), embedded: len(toEmbed), deleted: len(superseded)}

	if dryRun {
		logger.InfoContext(ctx, "dry run, suppressing writes",
			"doc", d.ID, "chunks", stats.chunks, "embedded", stats.embedded, "superseded", stats.deleted)
		return stats, nil
	}

	now := time.Now().UTC()
	points := make([]vecindex.Point, len(chunks))
	for i, c := range chunks {
		vec, ok := reuse[c.ID]
		if !ok {
			vec = vectors[c.ID]
		}
		points[i] = vecindex.Point{
			ID:     c.ID,
			Vector: vec,
			Meta: vecindex.Meta{
				DocID:     d.ID,
				Position:  c.Index,
				NoteType:  string(doc.Type),
				Title:     doc.Title,
				Tags:      doc.Tags,
				Date:      doc.Date,
				IndexedAt: now,
			},
		}
	}

	if err := m.index.Upsert(ctx, points); err != nil {
		return stats, fmt.Errorf("upsert points: %w", err)
	}
	if err := m.index.Delete(ctx, superseded); err != nil {
		return stats, fmt.Errorf("delete superseded points: %w", err)
	}

	rec := &catalog.Record{
		DocID:       d.ID,
		Title:       doc.Title,
		NoteType:    string(doc.Type),
		Tags:        doc.Tags,
		Links:       doc.Links,
		ChunkIDs:    newIDs,
		LastIndexed: d.ModTime,
	}
	if err := m.catalog.RecordIndexed(ctx, rec); err != nil {
		return stats, fmt.Errorf("record indexed: %w", err)
	}

	logger.InfoContext(ctx, "document indexed",
		"doc", d.ID, "chunks", stats.chunks, "embedded", stats.embedded, "deleted", stats.deleted)
	return stats, nil
}

// embedChunks calls the provider in BatchSize batches and returns vectors
// keyed by chunk ID. Any failure fails the whole document.
func (m *Manager) embedChunks(ctx context.Context, chunks []chunk.Chunk) (map[string][]float32, error) {
	out := make(map[string][]float32, len(chunks))
	if len(chunks) == 0 {
		return out, nil
	}

	batchSize := m.provider.BatchSize()
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := m.provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for i, c := range batch {
			out[c.ID] = vectors[i]
		}
	}
	return out, nil
}
