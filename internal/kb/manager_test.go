package kb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/chunk"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/embed"
	embedmocks "github.com/ivo-toby/gpt-notes-to-tasks/internal/embed/mocks"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/linker"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
	vecmocks "github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex/mocks"
)

// bagProvider is a deterministic in-process embedder. Every distinct word
// gets its own dimension, so two texts score exactly the cosine of their
// word-count vectors: shared vocabulary means high similarity, disjoint
// vocabulary means zero.
type bagProvider struct {
	dims     int
	vocab    map[string]int
	embedded []string // every text embedded, in order
}

func newBagProvider() *bagProvider {
	return &bagProvider{dims: 64, vocab: make(map[string]int)}
}

func (p *bagProvider) Name() string       { return "fake" }
func (p *bagProvider) Model() string      { return "bag-of-words" }
func (p *bagProvider) Dimensions() int    { return p.dims }
func (p *bagProvider) Metric() score.Kind { return score.Similarity }
func (p *bagProvider) BatchSize() int     { return 8 }

func (p *bagProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		p.embedded = append(p.embedded, text)
		v := make([]float32, p.dims)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,;:!?#*()[]")
			if w == "" {
				continue
			}
			d, ok := p.vocab[w]
			if !ok {
				if len(p.vocab) >= p.dims {
					return nil, fmt.Errorf("bag provider: vocabulary overflow at %q", w)
				}
				d = len(p.vocab)
				p.vocab[w] = d
			}
			v[d]++
		}
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			norm := float32(math.Sqrt(sum))
			for j := range v {
				v[j] /= norm
			}
		}
		out[i] = v
	}
	return out, nil
}

// countingIndex counts write calls on its way through to the real index.
type countingIndex struct {
	vecindex.Index
	upserts int
	deletes int
}

func (c *countingIndex) Upsert(ctx context.Context, points []vecindex.Point) error {
	c.upserts++
	return c.Index.Upsert(ctx, points)
}

func (c *countingIndex) Delete(ctx context.Context, ids []string) error {
	c.deletes++
	return c.Index.Delete(ctx, ids)
}

type testEnv struct {
	root      string
	indexPath string
	source    *note.FS
	provider  *bagProvider
	index     *countingIndex
	catalog   *catalog.Repo
	manager   *Manager
}

func simThresholds(content, links float64) Thresholds {
	sim := func(v float64) score.Threshold {
		return score.Threshold{Value: v, Kind: score.Similarity}
	}
	return Thresholds{Content: sim(content), Tag: sim(content), Date: sim(content), Links: sim(links)}
}

func newTestEnv(t *testing.T, files map[string]string, cfg Config) *testEnv {
	t.Helper()

	root := t.TempDir()
	for id, text := range files {
		writeVaultFile(t, root, id, text)
	}
	source, err := note.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	provider := newBagProvider()
	ident := vecindex.Identity{
		Provider:   provider.Name(),
		Model:      provider.Model(),
		Dimensions: provider.Dimensions(),
		Metric:     provider.Metric(),
	}
	indexPath := filepath.Join(t.TempDir(), "index.db")
	raw, err := vecindex.NewSQLite(indexPath, ident, 0)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	index := &countingIndex{Index: raw}

	db, err := catalog.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := catalog.NewRepo(db)

	analyzer := linker.NewAnalyzer(index, source, linker.AnalyzerConfig{
		Threshold: cfg.Thresholds.Links,
	})
	writer := linker.NewWriter(source)

	return &testEnv{
		root:      root,
		indexPath: indexPath,
		source:    source,
		provider:  provider,
		index:     index,
		catalog:   repo,
		manager:   NewManager(source, provider, index, repo, analyzer, writer, cfg),
	}
}

func writeVaultFile(t *testing.T, root, id, text string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", id, err)
	}
}

// rewriteVaultFile replaces a file's content and pushes its mtime forward so
// staleness checks see the edit even on coarse filesystem clocks.
func rewriteVaultFile(t *testing.T, root, id, text string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(id))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", id, err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("rewrite %s: %v", id, err)
	}
	later := info.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes %s: %v", id, err)
	}
}

func readVaultFile(t *testing.T, root, id string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(id)))
	if err != nil {
		t.Fatalf("read %s: %v", id, err)
	}
	return string(data)
}

func wantStrings(t *testing.T, name string, got []string, want ...string) {
	t.Helper()
	g := append([]string(nil), got...)
	sort.Strings(g)
	w := append([]string(nil), want...)
	sort.Strings(w)
	if len(g) != len(w) {
		t.Fatalf("%s = %v, want %v", name, g, w)
	}
	for i := range g {
		if g[i] != w[i] {
			t.Fatalf("%s = %v, want %v", name, g, w)
		}
	}
}

// Three notes: a and b share most of their vocabulary, c is about something
// else entirely.
func pipelineVault() map[string]string {
	return map[string]string{
		"a.md": "Deploying machine learning pipelines requires orchestration of training data and models.\n",
		"b.md": "Orchestration of machine learning pipelines and training models.\n",
		"c.md": "Watering tomatoes in the garden keeps the soil healthy.\n",
	}
}

func TestManager_FullReindexAndQuery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})

	summary, err := env.manager.FullReindex(ctx, false)
	if err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	if summary.RunID == "" {
		t.Error("summary has no run ID")
	}
	wantStrings(t, "Succeeded", summary.Succeeded, "a.md", "b.md", "c.md")
	if len(summary.Failed) != 0 {
		t.Fatalf("Failed = %v", summary.Failed)
	}

	// A document queried with its own text must come back first, essentially
	// at the maximum score.
	results, err := env.manager.Query(ctx, pipelineVault()["a.md"], QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].DocID != "a.md" {
		t.Fatalf("top result = %s, want a.md", results[0].DocID)
	}
	if results[0].Score.Raw < 0.99 {
		t.Errorf("top score = %v, want near 1", results[0].Score)
	}
	for _, r := range results {
		if r.DocID == "c.md" {
			t.Errorf("unrelated document c.md passed the content threshold with %v", r.Score)
		}
	}
}

func TestManager_FullReindexDryRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})

	summary, err := env.manager.FullReindex(ctx, true)
	if err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	if !summary.DryRun {
		t.Error("summary not marked dry run")
	}
	wantStrings(t, "Succeeded", summary.Succeeded, "a.md", "b.md", "c.md")

	// The read path runs in full: every chunk goes through the provider and
	// the summary reports what a real run would have stored.
	if len(env.provider.embedded) != 3 {
		t.Fatalf("dry run embedded %d texts, want 3", len(env.provider.embedded))
	}
	if summary.Chunks != 3 || summary.Embedded != 3 {
		t.Errorf("summary chunks/embedded = %d/%d, want 3/3", summary.Chunks, summary.Embedded)
	}

	// Writes are suppressed.
	if env.index.upserts != 0 || env.index.deletes != 0 {
		t.Errorf("dry run wrote to the index: upserts %d, deletes %d", env.index.upserts, env.index.deletes)
	}
	if n, err := env.index.Count(ctx); err != nil || n != 0 {
		t.Fatalf("index count = %d, %v; want 0", n, err)
	}
	if _, err := env.catalog.Get(ctx, "a.md"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("catalog.Get after dry run: %v, want ErrNotFound", err)
	}
}

func TestManager_IncrementalSkipsFreshDocuments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})

	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	upserts, deletes := env.index.upserts, env.index.deletes

	summary, err := env.manager.IncrementalUpdate(ctx, false)
	if err != nil {
		t.Fatalf("IncrementalUpdate: %v", err)
	}
	wantStrings(t, "Skipped", summary.Skipped, "a.md", "b.md", "c.md")
	if len(summary.Succeeded) != 0 {
		t.Errorf("Succeeded = %v, want none", summary.Succeeded)
	}
	if env.index.upserts != upserts || env.index.deletes != deletes {
		t.Errorf("fresh update wrote to the index: upserts %d->%d, deletes %d->%d",
			upserts, env.index.upserts, deletes, env.index.deletes)
	}
}

func TestManager_IncrementalReindexesChangedDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})

	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}

	edited := "Watering tomatoes in the garden and mulching with compost keeps the soil healthy.\n"
	rewriteVaultFile(t, env.root, "c.md", edited)

	summary, err := env.manager.IncrementalUpdate(ctx, false)
	if err != nil {
		t.Fatalf("IncrementalUpdate: %v", err)
	}
	wantStrings(t, "Succeeded", summary.Succeeded, "c.md")
	wantStrings(t, "Skipped", summary.Skipped, "a.md", "b.md")

	results, err := env.manager.Query(ctx, edited, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 || results[0].DocID != "c.md" {
		t.Fatalf("results = %v, want c.md first", results)
	}
}

func TestManager_IncrementalReusesUnchangedChunks(t *testing.T) {
	ctx := context.Background()
	p1 := "Deploying machine learning pipelines requires careful orchestration."
	p2 := "Training data and models need review."
	cfg := Config{
		Chunking:   chunk.Config{MinSize: 10, MaxSize: 80, Overlap: 0},
		Thresholds: simThresholds(0.3, 0.6),
	}
	env := newTestEnv(t, map[string]string{"a.md": p1 + "\n\n" + p2 + "\n"}, cfg)

	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	if n, err := env.index.Count(ctx); err != nil || n != 2 {
		t.Fatalf("index count = %d, %v; want 2 chunks", n, err)
	}

	// Edit only the second paragraph. The first chunk keeps its ID, so only
	// the changed chunk should hit the provider again.
	p2 = "Training data and models need careful review from the whole team."
	rewriteVaultFile(t, env.root, "a.md", p1+"\n\n"+p2+"\n")
	env.provider.embedded = nil

	summary, err := env.manager.IncrementalUpdate(ctx, false)
	if err != nil {
		t.Fatalf("IncrementalUpdate: %v", err)
	}
	wantStrings(t, "Succeeded", summary.Succeeded, "a.md")

	if len(env.provider.embedded) != 1 {
		t.Fatalf("embedded %d texts after edit, want 1: %q", len(env.provider.embedded), env.provider.embedded)
	}
	if !strings.Contains(env.provider.embedded[0], "whole team") {
		t.Errorf("embedded the wrong chunk: %q", env.provider.embedded[0])
	}
	if n, err := env.index.Count(ctx); err != nil || n != 2 {
		t.Fatalf("index count = %d, %v; want superseded chunk deleted", n, err)
	}
}

func TestManager_QueryFilters(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"meetings/standup.md": "---\ntags:\n  - sync\n---\nWeekly standup notes about machine learning pipelines.\n",
		"daily/2025-01-15.md": "Worked on machine learning pipelines all day.\n",
		"pipelines.md":        "Machine learning pipelines and training models.\n",
	}
	env := newTestEnv(t, files, Config{Thresholds: simThresholds(0.3, 0.6)})
	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}

	query := "machine learning pipelines"

	t.Run("note type", func(t *testing.T) {
		results, err := env.manager.Query(ctx, query, QueryOptions{NoteType: "meeting"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(results) != 1 || results[0].DocID != "meetings/standup.md" {
			t.Fatalf("results = %v, want only the meeting note", results)
		}
	})

	t.Run("tag", func(t *testing.T) {
		results, err := env.manager.Query(ctx, query, QueryOptions{Category: CategoryTag, Tag: "sync"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(results) != 1 || results[0].DocID != "meetings/standup.md" {
			t.Fatalf("results = %v, want only the tagged note", results)
		}

		none, err := env.manager.Query(ctx, query, QueryOptions{Category: CategoryTag, Tag: "retro"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("results for absent tag = %v", none)
		}
	})

	t.Run("date", func(t *testing.T) {
		results, err := env.manager.Query(ctx, query, QueryOptions{Category: CategoryDate, Date: "2025-01-15"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(results) != 1 || results[0].DocID != "daily/2025-01-15.md" {
			t.Fatalf("results = %v, want only the daily note", results)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if _, err := env.manager.Query(ctx, "   ", QueryOptions{}); err == nil {
			t.Fatal("blank query did not error")
		}
	})
}

func TestManager_AnalyzeLinksAppliesWikiLinks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})
	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}

	opts := LinkOptions{
		Scope:       LinkScope{Doc: "a.md"},
		Apply:       true,
		AutoApprove: true,
	}
	report, err := env.manager.AnalyzeLinks(ctx, opts)
	if err != nil {
		t.Fatalf("AnalyzeLinks: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("Failed = %v", report.Failed)
	}

	candidates := report.Candidates["a.md"]
	if len(candidates) != 1 || candidates[0].Target != "b.md" {
		t.Fatalf("candidates = %v, want exactly b.md", candidates)
	}
	applied := report.Applied["a.md"]
	if len(applied) != 1 || !applied[0].Backlinked {
		t.Fatalf("applied = %v, want b.md with backlink", applied)
	}

	a := readVaultFile(t, env.root, "a.md")
	if !strings.Contains(a, "## Related Notes") || !strings.Contains(a, "- [[b.md|b]]") {
		t.Fatalf("a.md missing forward link:\n%s", a)
	}
	b := readVaultFile(t, env.root, "b.md")
	if !strings.Contains(b, "## Backlinks") || !strings.Contains(b, "- [[a.md|a]]") {
		t.Fatalf("b.md missing backlink:\n%s", b)
	}

	// Running the same analysis again must not duplicate anything.
	if _, err := env.manager.AnalyzeLinks(ctx, opts); err != nil {
		t.Fatalf("second AnalyzeLinks: %v", err)
	}
	if again := readVaultFile(t, env.root, "a.md"); again != a {
		t.Errorf("second run changed a.md:\n%s", again)
	}
	if again := readVaultFile(t, env.root, "b.md"); again != b {
		t.Errorf("second run changed b.md:\n%s", again)
	}
}

func TestManager_AnalyzeLinksDryRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})
	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	before := readVaultFile(t, env.root, "a.md")

	report, err := env.manager.AnalyzeLinks(ctx, LinkOptions{
		Scope:       LinkScope{Doc: "a.md"},
		Apply:       true,
		AutoApprove: true,
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("AnalyzeLinks: %v", err)
	}
	if !report.DryRun {
		t.Error("report not marked dry run")
	}
	if len(report.Applied["a.md"]) != 1 {
		t.Fatalf("Applied = %v, want the proposed link reported", report.Applied)
	}
	if after := readVaultFile(t, env.root, "a.md"); after != before {
		t.Errorf("dry run modified a.md:\n%s", after)
	}
	if b := readVaultFile(t, env.root, "b.md"); strings.Contains(b, "Backlinks") {
		t.Errorf("dry run wrote a backlink:\n%s", b)
	}
}

func TestManager_ProviderOutageMidBatchKeepsCommittedDocuments(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := embedmocks.NewMockProvider(ctrl)
	provider.EXPECT().BatchSize().Return(4).AnyTimes()
	calls := 0
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls > 1 {
				return nil, fmt.Errorf("embed: connection refused: %w", embed.ErrUnavailable)
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0, 0, 0}
			}
			return out, nil
		}).AnyTimes()

	root := t.TempDir()
	writeVaultFile(t, root, "a.md", "first note\n")
	writeVaultFile(t, root, "b.md", "second note\n")
	source, err := note.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	ident := vecindex.Identity{Provider: "fake", Model: "m", Dimensions: 4, Metric: score.Similarity}
	index, err := vecindex.NewSQLite(filepath.Join(t.TempDir(), "index.db"), ident, 0)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer index.Close()
	db, err := catalog.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	defer db.Close()
	repo := catalog.NewRepo(db)

	m := NewManager(source, provider, index, repo, nil, nil, Config{Thresholds: simThresholds(0.3, 0.6)})

	summary, err := m.FullReindex(ctx, false)
	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("FullReindex error = %v, want ProviderUnavailableError", err)
	}
	wantStrings(t, "Unprocessed", unavailable.Unprocessed, "b.md")
	wantStrings(t, "Succeeded", summary.Succeeded, "a.md")

	// The document committed before the outage stands.
	if _, err := repo.Get(ctx, "a.md"); err != nil {
		t.Errorf("committed document lost: %v", err)
	}
	if n, err := index.Count(ctx); err != nil || n != 1 {
		t.Errorf("index count = %d, %v; want 1", n, err)
	}
}

func TestManager_VerifyIndexWrapsMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mismatch := &vecindex.MismatchError{
		Stored: vecindex.Identity{Provider: "hosted", Model: "old", Dimensions: 256, Metric: score.Similarity},
		Active: vecindex.Identity{Provider: "hosted", Model: "new", Dimensions: 512, Metric: score.Similarity},
	}
	index := vecmocks.NewMockIndex(ctrl)
	index.EXPECT().Verify(gomock.Any()).Return(mismatch)

	m := NewManager(nil, nil, index, nil, nil, nil, Config{})
	err := m.VerifyIndex(context.Background())

	var corrupt *IndexCorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("VerifyIndex error = %v, want IndexCorruptionError", err)
	}
	var me *vecindex.MismatchError
	if !errors.As(err, &me) {
		t.Fatalf("mismatch cause not preserved: %v", err)
	}
}

func TestManager_VerifyIndexRefusesProviderSwitch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, pipelineVault(), Config{Thresholds: simThresholds(0.3, 0.6)})
	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}
	if err := env.manager.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex with matching provider: %v", err)
	}
	env.index.Close()

	// Reopen the same index file as if configuration now points at a
	// different model.
	switched, err := vecindex.NewSQLite(env.indexPath, vecindex.Identity{
		Provider:   "fake",
		Model:      "some-other-model",
		Dimensions: env.provider.Dimensions(),
		Metric:     score.Similarity,
	}, 0)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer switched.Close()

	m := NewManager(env.source, env.provider, switched, env.catalog, nil, nil, Config{})
	verr := m.VerifyIndex(ctx)
	var corrupt *IndexCorruptionError
	if !errors.As(verr, &corrupt) {
		t.Fatalf("VerifyIndex error = %v, want IndexCorruptionError", verr)
	}
	var me *vecindex.MismatchError
	if !errors.As(verr, &me) {
		t.Fatalf("mismatch cause not preserved: %v", verr)
	}
}

func TestManager_Relationships(t *testing.T) {
	ctx := context.Background()
	files := pipelineVault()
	files["a.md"] = "See [[b.md]] for the orchestration details.\n\n" + files["a.md"]
	env := newTestEnv(t, files, Config{Thresholds: simThresholds(0.3, 0.6)})
	if _, err := env.manager.FullReindex(ctx, false); err != nil {
		t.Fatalf("FullReindex: %v", err)
	}

	rel, err := env.manager.Relationships(ctx, "a.md")
	if err != nil {
		t.Fatalf("Relationships(a.md): %v", err)
	}
	wantStrings(t, "Links", rel.Links, "b.md")
	if len(rel.Backlinks) != 0 {
		t.Errorf("Backlinks = %v, want none", rel.Backlinks)
	}

	rel, err = env.manager.Relationships(ctx, "b.md")
	if err != nil {
		t.Fatalf("Relationships(b.md): %v", err)
	}
	wantStrings(t, "Backlinks", rel.Backlinks, "a.md")

	if _, err := env.manager.Relationships(ctx, "missing.md"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Relationships(missing.md) = %v, want ErrNotFound", err)
	}
}
