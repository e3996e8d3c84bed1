// Package vecindex stores chunk embeddings and answers nearest-neighbor
// queries. Two backends exist: a process-local file-backed sqlite index
// (the default) and a remote qdrant collection.
package vecindex

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index.go -package=mocks github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex Index

import (
	"context"
	"fmt"
	"time"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

// Meta is the payload stored alongside each chunk vector. It is everything
// search results need without going back to the vault.
type Meta struct {
	DocID     string    `json:"doc_id"`
	Position  int       `json:"position"`
	NoteType  string    `json:"note_type"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Date      string    `json:"date,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Point is a chunk vector plus its metadata, keyed by the chunk ID.
type Point struct {
	ID     string
	Vector []float32
	Meta   Meta
}

// Result is a single search hit.
type Result struct {
	ChunkID string
	Score   score.Score
	Meta    Meta
}

// Filter restricts a search. Zero values mean "no restriction".
type Filter struct {
	// ExcludeDoc drops every chunk belonging to this document. Used by link
	// analysis so a note never links to itself.
	ExcludeDoc string
	// NoteType keeps only chunks from notes of this type.
	NoteType string
}

// Identity pins an index to the provider configuration that produced its
// vectors. Vectors from different providers, models, dimensionalities, or
// metrics are never comparable, so a stored index refuses to serve a
// mismatched configuration.
type Identity struct {
	Provider   string
	Model      string
	Dimensions int
	Metric     score.Kind
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s dims=%d metric=%s", id.Provider, id.Model, id.Dimensions, id.Metric)
}

// MismatchError reports that a stored index was built under a different
// provider configuration than the active one.
type MismatchError struct {
	Stored Identity
	Active Identity
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("index identity mismatch: stored %s, configured %s; run a full reindex", e.Stored, e.Active)
}

// Index is the vector store the engine reads and writes.
type Index interface {
	// Verify checks the stored index identity against the active provider
	// configuration. A fresh index adopts the active identity; a mismatch
	// returns *MismatchError.
	Verify(ctx context.Context) error
	// Upsert inserts or replaces points by chunk ID.
	Upsert(ctx context.Context, points []Point) error
	// Delete removes points by chunk ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error
	// Search returns up to k nearest neighbors of query, best first.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error)
	// PointsByDoc returns every stored point of one document, including
	// vectors. Link analysis queries the index with them.
	PointsByDoc(ctx context.Context, docID string) ([]Point, error)
	// Drop removes all points and the stored identity.
	Drop(ctx context.Context) error
	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)
	Close() error
}
