package kb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/linker"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
)

// LinkScope selects which documents a link analysis run covers.
type LinkScope struct {
	// Doc analyzes a single document when set.
	Doc string
	// StaleOnly restricts the run to documents changed since their last
	// analysis. Ignored when Doc is set.
	StaleOnly bool
}

// LinkOptions control one AnalyzeLinks run.
type LinkOptions struct {
	Scope LinkScope
	// Apply writes accepted candidates into the vault. Without it the run
	// only proposes.
	Apply bool
	// AutoApprove skips the Confirmer.
	AutoApprove bool
	// Confirmer decides per candidate when applying without AutoApprove.
	Confirmer linker.Confirmer
	// DryRun proposes and reports without touching any file.
	DryRun bool
}

// LinkReport is the outcome of a link analysis run.
type LinkReport struct {
	RunID      string
	Candidates map[string][]linker.Candidate
	// Applied is populated when the run applies links (or would, on dry
	// run).
	Applied map[string][]linker.Applied
	Failed  []Failure
	DryRun  bool
}

// AnalyzeLinks discovers link candidates for the selected documents and,
// when requested, writes them into the vault. Per-document failures are
// collected; the run continues.
func (m *Manager) AnalyzeLinks(ctx context.Context, opts LinkOptions) (LinkReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, runID := workflowContext(ctx, "analyze_links")
	logger := contextutil.LoggerFromContext(ctx)
	report := LinkReport{
		RunID:      runID,
		Candidates: make(map[string][]linker.Candidate),
		Applied:    make(map[string][]linker.Applied),
		DryRun:     opts.DryRun,
	}

	docs, err := m.linkTargets(ctx, opts.Scope)
	if err != nil {
		return report, err
	}
	logger.InfoContext(ctx, "link analysis starting",
		"documents", len(docs), "apply", opts.Apply, "dry_run", opts.DryRun)

	for _, d := range docs {
		candidates, err := m.analyzer.Analyze(ctx, d.ID)
		if err != nil {
			logger.WarnContext(ctx, "analysis failed", "doc", d.ID, "error", err)
			report.Failed = append(report.Failed, Failure{DocID: d.ID, Err: err})
			continue
		}
		report.Candidates[d.ID] = candidates

		if !opts.Apply {
			continue
		}
		if len(candidates) > 0 {
			applied, err := m.writer.Apply(ctx, d.ID, candidates, linker.ApplyOptions{
				AutoApprove: opts.AutoApprove,
				Confirmer:   opts.Confirmer,
				DryRun:      opts.DryRun,
			})
			if err != nil {
				logger.WarnContext(ctx, "apply failed", "doc", d.ID, "error", err)
				report.Failed = append(report.Failed, Failure{DocID: d.ID, Err: err})
				continue
			}
			report.Applied[d.ID] = applied
		}

		if !opts.DryRun {
			if err := m.recordAnalyzed(ctx, d.ID); err != nil {
				report.Failed = append(report.Failed, Failure{DocID: d.ID, Err: err})
			}
		}
	}

	logger.InfoContext(ctx, "link analysis completed",
		"analyzed", len(report.Candidates), "failed", len(report.Failed))
	return report, nil
}

// linkTargets resolves the scope to concrete documents.
func (m *Manager) linkTargets(ctx context.Context, scope LinkScope) ([]note.DocInfo, error) {
	if scope.Doc != "" {
		info, err := m.source.Stat(ctx, scope.Doc)
		if err != nil {
			return nil, fmt.Errorf("kb: stat %s: %w", scope.Doc, err)
		}
		return []note.DocInfo{info}, nil
	}

	docs, err := m.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("kb: list vault: %w", err)
	}
	if !scope.StaleOnly {
		return docs, nil
	}
	stale, err := m.catalog.ListStaleAnalysis(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("kb: list stale analysis: %w", err)
	}
	return stale, nil
}

// recordAnalyzed stamps the document as analyzed at its post-apply mtime,
// so the link write itself does not mark it stale again.
func (m *Manager) recordAnalyzed(ctx context.Context, docID string) error {
	ts := time.Now().UTC()
	if info, err := m.source.Stat(ctx, docID); err == nil {
		ts = info.ModTime
	}
	if err := m.catalog.RecordAnalyzed(ctx, docID, ts); err != nil {
		// A document that was never indexed has no catalog row to stamp.
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("kb: record analyzed %s: %w", docID, err)
	}
	return nil
}
