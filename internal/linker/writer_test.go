package linker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

func testVault(t *testing.T, files map[string]string) (*note.FS, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	src, err := note.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return src, root
}

func simScore(raw float64) score.Score {
	return score.Score{Raw: raw, Kind: score.Similarity}
}

func readVaultFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestWriter_ApplyWritesLinkAndBacklink(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# Machine Learning Pipelines\n\nContent about pipelines.\n",
		"b.md": "# Pipeline Orchestration\n\nContent about orchestration.\n",
	})
	w := NewWriter(src)

	applied, err := w.Apply(context.Background(), "a.md", []Candidate{
		{Target: "b.md", Alias: "Pipeline Orchestration", Score: simScore(0.73)},
	}, ApplyOptions{AutoApprove: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied) != 1 || !applied[0].Backlinked {
		t.Fatalf("applied = %+v", applied)
	}

	a := readVaultFile(t, root, "a.md")
	if !strings.Contains(a, "## Related Notes") {
		t.Error("a.md missing Related Notes section")
	}
	if !strings.Contains(a, "- [[b.md|Pipeline Orchestration]] <!-- score: 0.73 -->") {
		t.Errorf("a.md missing link entry:\n%s", a)
	}
	if !strings.Contains(a, "\n---\n") {
		t.Error("a.md missing rule before generated section")
	}

	b := readVaultFile(t, root, "b.md")
	if !strings.Contains(b, "## Backlinks") {
		t.Error("b.md missing Backlinks section")
	}
	if !strings.Contains(b, "- [[a.md|Machine Learning Pipelines]]") {
		t.Errorf("b.md missing backlink entry:\n%s", b)
	}
}

func TestWriter_ApplyTwiceLeavesSingleEntries(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n",
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(src)
	cands := []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.70)}}

	for i := 0; i < 2; i++ {
		if _, err := w.Apply(context.Background(), "a.md", cands, ApplyOptions{AutoApprove: true}); err != nil {
			t.Fatalf("Apply #%d: %v", i+1, err)
		}
	}

	a := readVaultFile(t, root, "a.md")
	if n := strings.Count(a, "[[b.md|"); n != 1 {
		t.Errorf("a.md has %d forward entries, want 1:\n%s", n, a)
	}
	b := readVaultFile(t, root, "b.md")
	if n := strings.Count(b, "[[a.md|"); n != 1 {
		t.Errorf("b.md has %d backlink entries, want 1:\n%s", n, b)
	}
	if n := strings.Count(b, "## Backlinks"); n != 1 {
		t.Errorf("b.md has %d Backlinks sections, want 1", n)
	}
}

func TestWriter_FencedHeadingLookalikeIsNotASection(t *testing.T) {
	body := "# A\n\nSome prose.\n\n```markdown\n## Related Notes\n- [[x.md|X]]\n```\n\nMore prose.\n"
	src, root := testVault(t, map[string]string{
		"a.md": body,
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(src)

	if _, err := w.Apply(context.Background(), "a.md", []Candidate{
		{Target: "b.md", Alias: "B", Score: simScore(0.90)},
	}, ApplyOptions{AutoApprove: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	a := readVaultFile(t, root, "a.md")
	if !strings.Contains(a, "```markdown\n## Related Notes\n- [[x.md|X]]\n```") {
		t.Errorf("fenced example was modified:\n%s", a)
	}
	// A real section gets created after the prose, not spliced into it.
	if !strings.Contains(a, "More prose.\n\n---\n\n## Related Notes\n\n- [[b.md|B]] <!-- score: 0.90 -->") {
		t.Errorf("real Related Notes section missing or misplaced:\n%s", a)
	}
	if n := strings.Count(a, "## Related Notes"); n != 2 {
		t.Errorf("a.md has %d Related Notes lines (fenced example plus one real), want 2:\n%s", n, a)
	}
}

func TestWriter_ApplyUpdatesEntryInPlace(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n",
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(src)
	ctx := context.Background()

	if _, err := w.Apply(ctx, "a.md", []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.70)}}, ApplyOptions{AutoApprove: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := w.Apply(ctx, "a.md", []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.81)}}, ApplyOptions{AutoApprove: true}); err != nil {
		t.Fatalf("Apply update: %v", err)
	}

	a := readVaultFile(t, root, "a.md")
	if !strings.Contains(a, "score: 0.81") {
		t.Errorf("entry not updated:\n%s", a)
	}
	if strings.Contains(a, "score: 0.70") {
		t.Errorf("old entry still present:\n%s", a)
	}
}

func TestWriter_ExistingSectionGetsAppended(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n\n---\n\n## Related Notes\n\n- [[c.md|C]] <!-- score: 0.65 -->\n\n## Footer\n\nkeep me\n",
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(src)

	if _, err := w.Apply(context.Background(), "a.md", []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.70)}}, ApplyOptions{AutoApprove: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	a := readVaultFile(t, root, "a.md")
	if !strings.Contains(a, "[[c.md|C]]") {
		t.Error("existing entry lost")
	}
	if !strings.Contains(a, "[[b.md|B]]") {
		t.Error("new entry missing")
	}
	if !strings.Contains(a, "keep me") {
		t.Error("content after section lost")
	}
	related := strings.Index(a, "## Related Notes")
	footer := strings.Index(a, "## Footer")
	entry := strings.Index(a, "[[b.md|B]]")
	if !(related < entry && entry < footer) {
		t.Errorf("new entry not inside the section:\n%s", a)
	}
}

func TestWriter_DryRunTouchesNothing(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n",
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(src)

	applied, err := w.Apply(context.Background(), "a.md", []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.70)}}, ApplyOptions{AutoApprove: true, DryRun: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("applied = %+v, want one candidate reported", applied)
	}
	if a := readVaultFile(t, root, "a.md"); strings.Contains(a, "Related Notes") {
		t.Error("dry run modified a.md")
	}
	if b := readVaultFile(t, root, "b.md"); strings.Contains(b, "Backlinks") {
		t.Error("dry run modified b.md")
	}
}

type confirmFunc func(source string, c Candidate) (bool, error)

func (f confirmFunc) Confirm(source string, c Candidate) (bool, error) { return f(source, c) }

func TestWriter_ConfirmerRejection(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n",
		"b.md": "# B\n\nBody.\n",
		"c.md": "# C\n\nBody.\n",
	})
	w := NewWriter(src)

	accept := confirmFunc(func(_ string, c Candidate) (bool, error) {
		return c.Target == "b.md", nil
	})
	applied, err := w.Apply(context.Background(), "a.md", []Candidate{
		{Target: "b.md", Alias: "B", Score: simScore(0.80)},
		{Target: "c.md", Alias: "C", Score: simScore(0.75)},
	}, ApplyOptions{Confirmer: accept})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied) != 1 || applied[0].Target != "b.md" {
		t.Fatalf("applied = %+v, want only b.md", applied)
	}
	a := readVaultFile(t, root, "a.md")
	if strings.Contains(a, "[[c.md|") {
		t.Error("rejected candidate was written")
	}
}

// conflictSource wraps a Source and fails every Write with ErrConflict.
type conflictSource struct {
	note.Source
}

func (s conflictSource) Write(ctx context.Context, id, text string, expected time.Time) error {
	return fmt.Errorf("write %s: %w", id, note.ErrConflict)
}

func TestWriter_StaleWriteConflict(t *testing.T) {
	src, root := testVault(t, map[string]string{
		"a.md": "# A\n\nBody.\n",
		"b.md": "# B\n\nBody.\n",
	})
	w := NewWriter(conflictSource{src})

	_, err := w.Apply(context.Background(), "a.md", []Candidate{{Target: "b.md", Alias: "B", Score: simScore(0.70)}}, ApplyOptions{AutoApprove: true})
	var conflict *StaleWriteConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *StaleWriteConflictError", err)
	}
	if conflict.Doc != "a.md" {
		t.Errorf("conflict doc = %s", conflict.Doc)
	}
	if a := readVaultFile(t, root, "a.md"); strings.Contains(a, "Related Notes") {
		t.Error("conflicting apply modified a.md")
	}
}
