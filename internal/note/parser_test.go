package note

import (
	"reflect"
	"testing"
)

func TestParse_Frontmatter(t *testing.T) {
	text := `---
title: Weekly Planning
type: weekly
date: 2026-08-17
tags:
  - planning
  - work
---

# Ignored Heading

Body content with a [[projects/roadmap.md|Roadmap]] link and #inline tag.
`

	d := Parse("weekly/2026-W34.md", text)

	if d.Title != "Weekly Planning" {
		t.Errorf("Title = %q, want %q", d.Title, "Weekly Planning")
	}
	if d.Type != TypeWeekly {
		t.Errorf("Type = %q, want %q", d.Type, TypeWeekly)
	}
	if d.Date != "2026-08-17" {
		t.Errorf("Date = %q, want %q", d.Date, "2026-08-17")
	}
	wantTags := []string{"planning", "work", "inline"}
	if !reflect.DeepEqual(d.Tags, wantTags) {
		t.Errorf("Tags = %v, want %v", d.Tags, wantTags)
	}
	wantLinks := []string{"projects/roadmap.md"}
	if !reflect.DeepEqual(d.Links, wantLinks) {
		t.Errorf("Links = %v, want %v", d.Links, wantLinks)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	d := Parse("notes/ideas.md", "# Big Ideas\n\nSome body text.")

	if d.Frontmatter != nil {
		t.Errorf("Frontmatter = %v, want nil", d.Frontmatter)
	}
	if d.Title != "Big Ideas" {
		t.Errorf("Title = %q, want %q", d.Title, "Big Ideas")
	}
	if d.Type != TypePlain {
		t.Errorf("Type = %q, want %q", d.Type, TypePlain)
	}
}

func TestParse_InvalidFrontmatterFallsBack(t *testing.T) {
	text := "---\n[not yaml\n---\nBody here."
	d := Parse("notes/broken.md", text)

	if d.Frontmatter != nil {
		t.Errorf("Frontmatter = %v, want nil for invalid YAML", d.Frontmatter)
	}
	if d.Body != text {
		t.Error("Body should be the full text when frontmatter is invalid")
	}
}

func TestParse_TitleFallbacks(t *testing.T) {
	tests := []struct {
		name string
		id   string
		text string
		want string
	}{
		{name: "h1 wins", id: "a.md", text: "# First\n\n## Second", want: "First"},
		{name: "h2 when no h1", id: "a.md", text: "## Only H2\n\ntext", want: "Only H2"},
		{name: "filename stem when no headings", id: "notes/meeting-recap.md", text: "plain text", want: "meeting-recap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.id, tt.text).Title; got != tt.want {
				t.Errorf("Title = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeFromPath(t *testing.T) {
	tests := []struct {
		id   string
		want Type
	}{
		{"daily/2026-08-26.md", TypeDaily},
		{"weekly/2026-W34.md", TypeWeekly},
		{"meetings/standup.md", TypeMeeting},
		{"learnings/go-generics.md", TypeLearning},
		{"projects/roadmap.md", TypePlain},
		{"toplevel.md", TypePlain},
	}

	for _, tt := range tests {
		if got := TypeFromPath(tt.id); got != tt.want {
			t.Errorf("TypeFromPath(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestParse_DateFromFilename(t *testing.T) {
	d := Parse("daily/2026-08-26.md", "Morning notes without frontmatter.")
	if d.Date != "2026-08-26" {
		t.Errorf("Date = %q, want %q", d.Date, "2026-08-26")
	}
}

func TestParse_DuplicateLinksDeduplicated(t *testing.T) {
	text := "See [[a.md]] and again [[a.md|alias]] plus [[b.md]]."
	d := Parse("n.md", text)

	want := []string{"a.md", "b.md"}
	if !reflect.DeepEqual(d.Links, want) {
		t.Errorf("Links = %v, want %v", d.Links, want)
	}
}

func TestHeadings(t *testing.T) {
	source := "# Title\n\nProse.\n\n```markdown\n## Inside Fence\n```\n\n## Related Notes\n\n- [[x.md|X]]\n"

	got := Headings(source)
	want := []Heading{
		{Level: 1, Text: "Title", Line: 0},
		{Level: 2, Text: "Related Notes", Line: 8},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headings = %+v, want %+v", got, want)
	}
}
