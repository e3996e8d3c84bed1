package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
)

func printSummary(w io.Writer, s kb.Summary) {
	label := ""
	if s.DryRun {
		label = " (dry run)"
	}
	fmt.Fprintf(w, "indexed %d, skipped %d, failed %d%s\n",
		len(s.Succeeded), len(s.Skipped), len(s.Failed), label)
	if len(s.Succeeded) > 0 {
		fmt.Fprintf(w, "  %d chunk(s), %d embedded, %d superseded\n", s.Chunks, s.Embedded, s.Deleted)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.DocID, f.Err)
	}
	if len(s.Unprocessed) > 0 {
		fmt.Fprintf(w, "  %d document(s) left unprocessed\n", len(s.Unprocessed))
	}
}

func printLinkReport(w io.Writer, r kb.LinkReport, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	docs := make([]string, 0, len(r.Candidates))
	for doc := range r.Candidates {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	total := 0
	for _, doc := range docs {
		candidates := r.Candidates[doc]
		if len(candidates) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", doc)
		applied := make(map[string]bool, len(r.Applied[doc]))
		for _, a := range r.Applied[doc] {
			applied[a.Target] = true
		}
		for _, c := range candidates {
			marker := " "
			if applied[c.Target] {
				marker = "+"
			}
			fmt.Fprintf(w, "  %s %s (%s, %d chunk pairs)\n", marker, c.Target, c.Score, c.Pairs)
			total++
		}
	}

	label := ""
	if r.DryRun {
		label = " (dry run)"
	}
	fmt.Fprintf(w, "%d candidate(s) across %d note(s)%s\n", total, len(r.Candidates), label)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.DocID, f.Err)
	}
	return nil
}
