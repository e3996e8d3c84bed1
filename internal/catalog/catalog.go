// Package catalog persists per-document indexing state: when a document was
// last indexed and analyzed, which chunk IDs it produced, and the metadata
// the engine derived from it. The vector index holds the geometry; the
// catalog holds the bookkeeping.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
)

// ErrNotFound is returned when a document has no catalog record.
var ErrNotFound = errors.New("document not in catalog")

// Record is the catalog's view of one document.
type Record struct {
	DocID        string
	Title        string
	NoteType     string
	Tags         []string
	Links        []string // wiki-link targets extracted at indexing time
	ChunkIDs     []string
	LastIndexed  time.Time
	LastAnalyzed time.Time // zero when link analysis never ran
}

// Store is the catalog persistence interface.
type Store interface {
	// Get returns the record for a document, or ErrNotFound.
	Get(ctx context.Context, docID string) (*Record, error)
	// RecordIndexed upserts the indexing outcome for a document. It never
	// touches last_analyzed.
	RecordIndexed(ctx context.Context, rec *Record) error
	// RecordAnalyzed stamps the time link analysis last ran for a document.
	RecordAnalyzed(ctx context.Context, docID string, ts time.Time) error
	// ListStale filters docs down to those whose mtime is strictly newer
	// than their last indexing, or that were never indexed.
	ListStale(ctx context.Context, docs []note.DocInfo) ([]note.DocInfo, error)
	// ListStaleAnalysis filters docs down to those changed since their last
	// link analysis, or never analyzed.
	ListStaleAnalysis(ctx context.Context, docs []note.DocInfo) ([]note.DocInfo, error)
	// Backlinks returns the IDs of documents whose extracted links point at
	// docID.
	Backlinks(ctx context.Context, docID string) ([]string, error)
	// Delete removes a document's record. Missing records are not an error.
	Delete(ctx context.Context, docID string) error
	// Reset drops every record. Used by full reindex.
	Reset(ctx context.Context) error
}

// New opens the catalog database at the given path and runs migrations.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS documents (
		doc_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		note_type TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		links TEXT NOT NULL DEFAULT '[]',
		chunk_ids TEXT NOT NULL DEFAULT '[]',
		last_indexed INTEGER NOT NULL DEFAULT 0,
		last_analyzed INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Repo implements Store on sqlite.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a catalog repository.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Get returns the record for a document, or ErrNotFound.
func (r *Repo) Get(ctx context.Context, docID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT doc_id, title, note_type, tags, links, chunk_ids, last_indexed, last_analyzed
		 FROM documents WHERE doc_id = ?`, docID)

	var rec Record
	var tags, links, chunkIDs string
	var lastIndexed, lastAnalyzed int64
	err := row.Scan(&rec.DocID, &rec.Title, &rec.NoteType, &tags, &links, &chunkIDs, &lastIndexed, &lastAnalyzed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: get %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", docID, err)
	}

	for _, pair := range []struct {
		raw string
		out *[]string
	}{{tags, &rec.Tags}, {links, &rec.Links}, {chunkIDs, &rec.ChunkIDs}} {
		if err := json.Unmarshal([]byte(pair.raw), pair.out); err != nil {
			return nil, fmt.Errorf("catalog: decode record %s: %w", docID, err)
		}
	}
	rec.LastIndexed = fromNanos(lastIndexed)
	rec.LastAnalyzed = fromNanos(lastAnalyzed)
	return &rec, nil
}

// RecordIndexed upserts the indexing outcome, preserving last_analyzed.
func (r *Repo) RecordIndexed(ctx context.Context, rec *Record) error {
	tags, err := json.Marshal(emptyAsList(rec.Tags))
	if err != nil {
		return fmt.Errorf("catalog: encode tags: %w", err)
	}
	links, err := json.Marshal(emptyAsList(rec.Links))
	if err != nil {
		return fmt.Errorf("catalog: encode links: %w", err)
	}
	chunkIDs, err := json.Marshal(emptyAsList(rec.ChunkIDs))
	if err != nil {
		return fmt.Errorf("catalog: encode chunk ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, title, note_type, tags, links, chunk_ids, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
			title = excluded.title,
			note_type = excluded.note_type,
			tags = excluded.tags,
			links = excluded.links,
			chunk_ids = excluded.chunk_ids,
			last_indexed = excluded.last_indexed`,
		rec.DocID, rec.Title, rec.NoteType, string(tags), string(links), string(chunkIDs),
		rec.LastIndexed.UnixNano())
	if err != nil {
		return fmt.Errorf("catalog: record indexed %s: %w", rec.DocID, err)
	}
	return nil
}

// RecordAnalyzed stamps the time link analysis last ran for a document.
func (r *Repo) RecordAnalyzed(ctx context.Context, docID string, ts time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET last_analyzed = ? WHERE doc_id = ?", ts.UnixNano(), docID)
	if err != nil {
		return fmt.Errorf("catalog: record analyzed %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: record analyzed %s: %w", docID, err)
	}
	if n == 0 {
		return fmt.Errorf("catalog: record analyzed %s: %w", docID, ErrNotFound)
	}
	return nil
}

// ListStale filters docs down to those whose mtime is strictly newer than
// their last indexing, or that were never indexed.
func (r *Repo) ListStale(ctx context.Context, docs []note.DocInfo) ([]note.DocInfo, error) {
	indexed, err := r.timestamps(ctx, "last_indexed")
	if err != nil {
		return nil, err
	}
	var stale []note.DocInfo
	for _, d := range docs {
		ts, ok := indexed[d.ID]
		if !ok || d.ModTime.After(ts) {
			stale = append(stale, d)
		}
	}
	return stale, nil
}

// ListStaleAnalysis filters docs down to those changed since their last link
// analysis, or never analyzed.
func (r *Repo) ListStaleAnalysis(ctx context.Context, docs []note.DocInfo) ([]note.DocInfo, error) {
	analyzed, err := r.timestamps(ctx, "last_analyzed")
	if err != nil {
		return nil, err
	}
	var stale []note.DocInfo
	for _, d := range docs {
		ts, ok := analyzed[d.ID]
		if !ok || ts.IsZero() || d.ModTime.After(ts) {
			stale = append(stale, d)
		}
	}
	return stale, nil
}

func (r *Repo) timestamps(ctx context.Context, column string) (map[string]time.Time, error) {
	// column is one of two fixed names, never user input.
	rows, err := r.db.QueryContext(ctx, "SELECT doc_id, "+column+" FROM documents")
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", column, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string]time.Time)
	for rows.Next() {
		var docID string
		var nanos int64
		if err := rows.Scan(&docID, &nanos); err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", column, err)
		}
		out[docID] = fromNanos(nanos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", column, err)
	}
	return out, nil
}

// Backlinks returns the IDs of documents whose extracted links point at docID.
func (r *Repo) Backlinks(ctx context.Context, docID string) ([]string, error) {
	target, err := json.Marshal(docID)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode backlink target: %w", err)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT doc_id FROM documents WHERE links LIKE '%' || ? || '%' ORDER BY doc_id",
		string(target))
	if err != nil {
		return nil, fmt.Errorf("catalog: backlinks for %s: %w", docID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("catalog: scan backlink: %w", err)
		}
		if source != docID {
			sources = append(sources, source)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: backlinks for %s: %w", docID, err)
	}
	return sources, nil
}

// Delete removes a document's record.
func (r *Repo) Delete(ctx context.Context, docID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", docID, err)
	}
	return nil
}

// Reset drops every record.
func (r *Repo) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("catalog: reset: %w", err)
	}
	return nil
}

func fromNanos(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func emptyAsList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
