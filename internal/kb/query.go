package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/embed"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// Category selects which threshold a query is judged against.
type Category string

const (
	CategoryContent Category = "content"
	CategoryTag     Category = "tag"
	CategoryDate    Category = "date"
)

// ParseCategory parses a search category from its CLI spelling.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryContent, CategoryTag, CategoryDate:
		return Category(s), nil
	case "":
		return CategoryContent, nil
	default:
		return "", fmt.Errorf("unknown search category %q", s)
	}
}

// QueryOptions restrict and shape a search.
type QueryOptions struct {
	Category Category
	// Limit caps the number of documents returned. Zero uses the default.
	Limit int
	// NoteType restricts results to one note type.
	NoteType string
	// Tag restricts results to chunks tagged with it (tag category).
	Tag string
	// Date restricts results to notes dated YYYY-MM-DD (date category).
	Date string
}

// QueryResult is one matching document, carrying its best chunk's score.
type QueryResult struct {
	DocID    string
	ChunkID  string
	Title    string
	NoteType string
	Score    score.Score
}

// queryOverfetch widens the raw search so post-filtering and per-document
// collapsing still fill the requested limit.
func queryOverfetch(limit int) int { return limit*4 + 16 }

// Query embeds the query text, searches the index, applies the category
// threshold and restrictions, and collapses hits to one result per document,
// best first.
func (m *Manager) Query(ctx context.Context, text string, opts QueryOptions) ([]QueryResult, error) {
	ctx, _ = workflowContext(ctx, "query")
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("kb: empty query")
	}
	if opts.Category == "" {
		opts.Category = CategoryContent
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = m.cfg.QueryLimit
	}

	vectors, err := m.provider.Embed(ctx, []string{text})
	if err != nil {
		if errors.Is(err, embed.ErrUnavailable) {
			return nil, &ProviderUnavailableError{Err: err}
		}
		return nil, fmt.Errorf("kb: embed query: %w", err)
	}

	hits, err := m.index.Search(ctx, vectors[0], queryOverfetch(limit), vecindex.Filter{NoteType: opts.NoteType})
	if err != nil {
		return nil, fmt.Errorf("kb: search: %w", err)
	}

	threshold := m.threshold(opts.Category)
	seen := make(map[string]struct{})
	var results []QueryResult
	for _, h := range hits {
		if opts.Tag != "" && !hasTag(h.Meta.Tags, opts.Tag) {
			continue
		}
		if opts.Date != "" && h.Meta.Date != opts.Date {
			continue
		}
		pass, err := h.Score.Passes(threshold)
		if err != nil {
			return nil, fmt.Errorf("kb: threshold: %w", err)
		}
		if !pass {
			continue
		}
		// Hits arrive best first, so the first chunk per document wins.
		if _, ok := seen[h.Meta.DocID]; ok {
			continue
		}
		seen[h.Meta.DocID] = struct{}{}
		results = append(results, QueryResult{
			DocID:    h.Meta.DocID,
			ChunkID:  h.ChunkID,
			Title:    h.Meta.Title,
			NoteType: h.Meta.NoteType,
			Score:    h.Score,
		})
		if len(results) == limit {
			break
		}
	}

	logger.InfoContext(ctx, "query completed",
		"category", opts.Category, "hits", len(hits), "results", len(results))
	return results, nil
}

func (m *Manager) threshold(c Category) score.Threshold {
	switch c {
	case CategoryTag:
		return m.cfg.Thresholds.Tag
	case CategoryDate:
		return m.cfg.Thresholds.Date
	default:
		return m.cfg.Thresholds.Content
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

// Relationships lists a document's outgoing wiki-links and the documents
// that link back to it, as recorded at indexing time.
type Relationships struct {
	DocID     string   `json:"doc_id"`
	Title     string   `json:"title"`
	Links     []string `json:"links"`
	Backlinks []string `json:"backlinks"`
}

// Relationships returns the stored link graph around one document.
func (m *Manager) Relationships(ctx context.Context, docID string) (*Relationships, error) {
	rec, err := m.catalog.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("kb: %s: %w", docID, catalog.ErrNotFound)
		}
		return nil, fmt.Errorf("kb: relationships: %w", err)
	}
	backlinks, err := m.catalog.Backlinks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("kb: backlinks: %w", err)
	}
	return &Relationships{
		DocID:     docID,
		Title:     rec.Title,
		Links:     rec.Links,
		Backlinks: backlinks,
	}, nil
}
