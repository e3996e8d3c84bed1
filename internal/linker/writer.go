package linker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

const (
	relatedHeading  = "## Related Notes"
	backlinkHeading = "## Backlinks"
)

// StaleWriteConflictError reports that a document changed on disk between
// analysis and the link write. Nothing was modified; re-running repairs it.
type StaleWriteConflictError struct {
	Doc string
	Err error
}

func (e *StaleWriteConflictError) Error() string {
	return fmt.Sprintf("document %s changed during link apply: %v", e.Doc, e.Err)
}

func (e *StaleWriteConflictError) Unwrap() error { return e.Err }

// Confirmer decides per candidate whether a link gets written. The CLI
// implementation prompts the user.
type Confirmer interface {
	Confirm(source string, candidate Candidate) (bool, error)
}

// Applied describes one candidate the writer accepted.
type Applied struct {
	Target string
	Alias  string
	Score  score.Score
	// Backlinked is false when the forward link was written but the
	// backlink into the target could not be (the target changed or
	// vanished). A later run repairs it.
	Backlinked bool
}

// ApplyOptions control one Apply run.
type ApplyOptions struct {
	// AutoApprove accepts every candidate without consulting the Confirmer.
	AutoApprove bool
	// Confirmer is consulted per candidate unless AutoApprove is set.
	Confirmer Confirmer
	// DryRun computes the outcome without touching any file.
	DryRun bool
}

// Writer maintains link sections inside notes. Forward links land in a
// "## Related Notes" section of the source; each target gets a mirrored
// entry in its "## Backlinks" section. Entries are keyed by target ID and
// rewritten in place, so applying twice never duplicates.
type Writer struct {
	source note.Source
}

// NewWriter creates a link writer.
func NewWriter(source note.Source) *Writer {
	return &Writer{source: source}
}

// Apply writes accepted candidates into docID and mirrors backlinks into the
// targets. The forward write happens first; a conflict there aborts with
// *StaleWriteConflictError and nothing applied. Backlink failures are
// reported per candidate, never fatal.
func (w *Writer) Apply(ctx context.Context, docID string, candidates []Candidate, opts ApplyOptions) ([]Applied, error) {
	logger := contextutil.LoggerFromContext(ctx)

	accepted := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !opts.AutoApprove && opts.Confirmer != nil {
			ok, err := opts.Confirmer.Confirm(docID, c)
			if err != nil {
				return nil, fmt.Errorf("linker: confirm %s -> %s: %w", docID, c.Target, err)
			}
			if !ok {
				continue
			}
		}
		accepted = append(accepted, c)
	}
	if len(accepted) == 0 {
		return nil, nil
	}

	info, err := w.source.Stat(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("linker: stat %s: %w", docID, err)
	}
	text, err := w.source.Read(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("linker: read %s: %w", docID, err)
	}

	updated := text
	for _, c := range accepted {
		entry := fmt.Sprintf("- [[%s|%s]] <!-- score: %.2f -->", c.Target, c.Alias, c.Score.Raw)
		updated = upsertEntry(updated, relatedHeading, c.Target, entry)
	}

	if !opts.DryRun && updated != text {
		if err := w.source.Write(ctx, docID, updated, info.ModTime); err != nil {
			if errors.Is(err, note.ErrConflict) {
				return nil, &StaleWriteConflictError{Doc: docID, Err: err}
			}
			return nil, fmt.Errorf("linker: write %s: %w", docID, err)
		}
	}

	sourceAlias := note.Parse(docID, text).Title

	applied := make([]Applied, 0, len(accepted))
	for _, c := range accepted {
		a := Applied{Target: c.Target, Alias: c.Alias, Score: c.Score, Backlinked: true}
		if opts.DryRun {
			applied = append(applied, a)
			continue
		}
		if err := w.writeBacklink(ctx, c.Target, docID, sourceAlias); err != nil {
			logger.WarnContext(ctx, "backlink not written",
				"source", docID, "target", c.Target, "error", err)
			a.Backlinked = false
		}
		applied = append(applied, a)
	}

	logger.InfoContext(ctx, "links applied", "doc", docID, "applied", len(applied), "dry_run", opts.DryRun)
	return applied, nil
}

func (w *Writer) writeBacklink(ctx context.Context, target, source, sourceAlias string) error {
	info, err := w.source.Stat(ctx, target)
	if err != nil {
		return err
	}
	text, err := w.source.Read(ctx, target)
	if err != nil {
		return err
	}

	entry := fmt.Sprintf("- [[%s|%s]]", source, sourceAlias)
	updated := upsertEntry(text, backlinkHeading, source, entry)
	if updated == text {
		return nil
	}
	if err := w.source.Write(ctx, target, updated, info.ModTime); err != nil {
		if errors.Is(err, note.ErrConflict) {
			return &StaleWriteConflictError{Doc: target, Err: err}
		}
		return err
	}
	return nil
}

// upsertEntry inserts or replaces a list entry keyed by target inside the
// named section, creating the section (after a horizontal rule) when absent.
func upsertEntry(text, heading, target, entry string) string {
	lines := strings.Split(text, "\n")
	start, end := findSection(text, lines, heading)

	if start < 0 {
		// Trim trailing blank lines, then append the section.
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "", "---", "", heading, "", entry, "")
		return strings.Join(lines, "\n")
	}

	for i := start + 1; i < end; i++ {
		if entryMatchesTarget(lines[i], target) {
			lines[i] = entry
			return strings.Join(lines, "\n")
		}
	}

	// Append after the last non-blank line of the section.
	insert := start + 1
	for i := start + 1; i < end; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			insert = i + 1
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insert]...)
	out = append(out, entry)
	out = append(out, lines[insert:]...)
	return strings.Join(out, "\n")
}

// findSection returns the line range (heading line, exclusive end) of the
// named section, or (-1, -1). Headings are located through the markdown AST,
// so a lookalike line inside a fenced code block never counts as a section.
func findSection(text string, lines []string, heading string) (int, int) {
	want := strings.TrimSpace(strings.TrimPrefix(heading, "##"))
	headings := note.Headings(text)
	for i, h := range headings {
		if h.Level != 2 || h.Text != want {
			continue
		}
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].Line
		}
		return h.Line, end
	}
	return -1, -1
}

// entryMatchesTarget reports whether a list line already links to target.
func entryMatchesTarget(line, target string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "- ") {
		return false
	}
	return strings.Contains(trimmed, "[["+target+"|") || strings.Contains(trimmed, "[["+target+"]]")
}
