// Package note models documents in the vault and provides the filesystem
// source the engine reads from and selectively rewrites.
package note

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Type classifies a note by its role in the vault.
type Type string

const (
	TypeDaily    Type = "daily"
	TypeWeekly   Type = "weekly"
	TypeMeeting  Type = "meeting"
	TypeLearning Type = "learning"
	TypePlain    Type = "note"
)

// ErrConflict is returned by Source.Write when the document changed on disk
// after the caller read it. The write is aborted to avoid overwriting
// concurrent edits.
var ErrConflict = errors.New("document modified since read")

// ErrNotFound is returned when a document ID does not resolve to a file.
var ErrNotFound = errors.New("document not found")

// DocInfo describes a document as seen by the source.
type DocInfo struct {
	ID      string // stable identifier: vault-relative path with forward slashes
	Path    string // absolute filesystem path
	ModTime time.Time
	Type    Type
}

// Source supplies documents to the engine. The engine never walks
// directories itself.
type Source interface {
	// List returns every document in the vault.
	List(ctx context.Context) ([]DocInfo, error)
	// Read returns the raw text of a document.
	Read(ctx context.Context, id string) (string, error)
	// Stat returns current metadata for a document.
	Stat(ctx context.Context, id string) (DocInfo, error)
	// Write atomically replaces a document's text. expectedModTime is the
	// modification time observed when the caller read the document; if the
	// file has since changed, Write returns ErrConflict without touching it.
	Write(ctx context.Context, id string, text string, expectedModTime time.Time) error
}

// TypeFromPath derives the note type from the document's top-level folder.
// Frontmatter `type:` takes precedence when present (see Parse).
func TypeFromPath(id string) Type {
	folder, _, found := strings.Cut(id, "/")
	if !found {
		return TypePlain
	}
	switch strings.ToLower(folder) {
	case "daily":
		return TypeDaily
	case "weekly":
		return TypeWeekly
	case "meetings", "meeting":
		return TypeMeeting
	case "learnings", "learning":
		return TypeLearning
	default:
		return TypePlain
	}
}

// ParseType maps a frontmatter type value onto a known note type.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(s)) {
	case TypeDaily, TypeWeekly, TypeMeeting, TypeLearning, TypePlain:
		return Type(strings.ToLower(s)), true
	}
	return TypePlain, false
}

// TitleFromID returns the filename stem, used as a link alias fallback.
func TitleFromID(id string) string {
	base := id
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".md")
}
