// Package linker discovers semantic relationships between notes and writes
// them back into the vault as wiki-links.
package linker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// Candidate is a proposed link from a source document to a target.
type Candidate struct {
	Target string
	Alias  string // target title, or filename stem when untitled
	// Score is the aggregated link strength across all chunk pairs.
	Score score.Score
	// Best is the strongest single chunk pair.
	Best score.Score
	// Pairs counts the chunk pairs that corroborated the link.
	Pairs int
}

// AnalyzerConfig tunes link discovery.
type AnalyzerConfig struct {
	// Neighbors is how many nearest chunks each source chunk retrieves.
	Neighbors int
	// Threshold is the minimum aggregate strength a target must reach.
	Threshold score.Threshold
	// MaxLinks caps the candidates per document, best first.
	MaxLinks int
}

// Analyzer proposes links for documents that are already indexed.
type Analyzer struct {
	index  vecindex.Index
	source note.Source
	cfg    AnalyzerConfig
}

// NewAnalyzer creates a link analyzer.
func NewAnalyzer(index vecindex.Index, source note.Source, cfg AnalyzerConfig) *Analyzer {
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = 5
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 10
	}
	return &Analyzer{index: index, source: source, cfg: cfg}
}

// evidence accumulates chunk-pair scores for one target document.
type evidence struct {
	raws  []float64
	alias string
}

// Analyze returns link candidates for one document, strongest first. A
// document with no stored chunks yields no candidates.
func (a *Analyzer) Analyze(ctx context.Context, docID string) ([]Candidate, error) {
	logger := contextutil.LoggerFromContext(ctx)

	points, err := a.index.PointsByDoc(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("linker: load chunks for %s: %w", docID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	kind := a.cfg.Threshold.Kind
	byTarget := make(map[string]*evidence)
	for _, p := range points {
		results, err := a.index.Search(ctx, p.Vector, a.cfg.Neighbors, vecindex.Filter{ExcludeDoc: docID})
		if err != nil {
			return nil, fmt.Errorf("linker: search neighbors of %s: %w", p.ID, err)
		}
		for _, r := range results {
			if r.Score.Kind != kind {
				return nil, fmt.Errorf("linker: index returned %s scores, threshold is %s", r.Score.Kind, kind)
			}
			ev := byTarget[r.Meta.DocID]
			if ev == nil {
				ev = &evidence{}
				byTarget[r.Meta.DocID] = ev
			}
			ev.raws = append(ev.raws, r.Score.Raw)
			if ev.alias == "" && r.Meta.Title != "" {
				ev.alias = r.Meta.Title
			}
		}
	}

	var candidates []Candidate
	for target, ev := range byTarget {
		best, agg := aggregate(ev.raws, kind)
		s := score.Score{Raw: agg, Kind: kind}
		pass, err := s.Passes(a.cfg.Threshold)
		if err != nil {
			return nil, fmt.Errorf("linker: threshold %s: %w", target, err)
		}
		if !pass {
			continue
		}
		alias := ev.alias
		if alias == "" {
			alias = note.TitleFromID(target)
		}
		candidates = append(candidates, Candidate{
			Target: target,
			Alias:  alias,
			Score:  s,
			Best:   score.Score{Raw: best, Kind: kind},
			Pairs:  len(ev.raws),
		})
	}

	if err := a.order(ctx, candidates); err != nil {
		return nil, err
	}
	if len(candidates) > a.cfg.MaxLinks {
		candidates = candidates[:a.cfg.MaxLinks]
	}

	logger.InfoContext(ctx, "link analysis completed",
		"doc", docID, "chunks", len(points), "targets", len(byTarget), "candidates", len(candidates))
	return candidates, nil
}

// AnalyzeBatch runs Analyze over several documents, continuing past
// per-document failures. The error joins everything that failed.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, docIDs []string) (map[string][]Candidate, error) {
	out := make(map[string][]Candidate, len(docIDs))
	var errs []error
	for _, docID := range docIDs {
		cands, err := a.Analyze(ctx, docID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[docID] = cands
	}
	return out, errors.Join(errs...)
}

// aggregate folds chunk-pair scores into (best single pair, aggregate
// strength). The aggregate is the best pair plus a corroboration bonus of
// 0.2 * mean * min(1, pairs/3). With distance scores the mean is negative,
// so corroboration pushes the aggregate further negative.
func aggregate(raws []float64, kind score.Kind) (best, agg float64) {
	best = raws[0]
	var sum float64
	for _, r := range raws {
		sum += r
		better := r > best
		if kind == score.Distance {
			better = r < best
		}
		if better {
			best = r
		}
	}
	mean := sum / float64(len(raws))
	factor := float64(len(raws)) / 3
	if factor > 1 {
		factor = 1
	}
	return best, best + 0.2*mean*factor
}

// order sorts candidates best first. Ties break toward the most recently
// modified target, then lexicographic target ID.
func (a *Analyzer) order(ctx context.Context, candidates []Candidate) error {
	mtimes := make(map[string]time.Time, len(candidates))
	for _, c := range candidates {
		info, err := a.source.Stat(ctx, c.Target)
		if err != nil {
			if errors.Is(err, note.ErrNotFound) {
				continue // indexed but since removed from disk; sorts last among ties
			}
			return fmt.Errorf("linker: stat %s: %w", c.Target, err)
		}
		mtimes[c.Target] = info.ModTime
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].Score, candidates[j].Score
		if si.Raw != sj.Raw {
			better, _ := si.Better(sj)
			return better
		}
		mi, mj := mtimes[candidates[i].Target], mtimes[candidates[j].Target]
		if !mi.Equal(mj) {
			return mi.After(mj)
		}
		return candidates[i].Target < candidates[j].Target
	})
	return nil
}
