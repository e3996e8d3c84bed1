package vecindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/sqlite-vec/engine"
	"github.com/viant/sqlite-vec/index"
	"github.com/viant/sqlite-vec/index/bruteforce"
	"github.com/viant/sqlite-vec/index/cover"
	"github.com/viant/sqlite-vec/vector"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

// defaultCoverAbove is the corpus size above which similarity search switches
// from brute force to the VP-tree index.
const defaultCoverAbove = 2048

// SQLite is a file-backed vector index: one .db file holding every chunk
// vector plus the identity of the provider that produced them.
type SQLite struct {
	db    *sql.DB
	ident Identity

	// coverAbove switches the in-memory kNN structure. Zero means the
	// default.
	coverAbove int

	mu    sync.Mutex
	cache *memCache // nil when invalidated
}

// memCache mirrors the chunks table in memory for similarity search. Writes
// invalidate it; the next search rebuilds it.
type memCache struct {
	ids  []string
	vecs [][]float32
	meta map[string]Meta
	knn  index.Index
}

// NewSQLite opens (or creates) a vector index file. ident is the active
// provider configuration; call Verify before serving queries.
func NewSQLite(path string, ident Identity, coverAbove int) (*SQLite, error) {
	db, err := engine.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vecindex: open %s: %w", path, err)
	}
	if err := engine.RegisterVectorFunctions(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vecindex: register vector functions: %w", err)
	}
	s := &SQLite{db: db, ident: ident, coverAbove: coverAbove}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			note_type TEXT NOT NULL DEFAULT '',
			meta TEXT NOT NULL,
			embedding BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);`,
		`CREATE TABLE IF NOT EXISTS collection_info (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			metric TEXT NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("vecindex: migrate: %w", err)
		}
	}
	return nil
}

// Verify compares the stored identity row against the active configuration.
// A fresh index adopts the active identity.
func (s *SQLite) Verify(ctx context.Context) error {
	var stored Identity
	var metric string
	row := s.db.QueryRowContext(ctx,
		"SELECT provider, model, dimensions, metric FROM collection_info WHERE id = 1")
	err := row.Scan(&stored.Provider, &stored.Model, &stored.Dimensions, &metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO collection_info (id, provider, model, dimensions, metric) VALUES (1, ?, ?, ?, ?)",
			s.ident.Provider, s.ident.Model, s.ident.Dimensions, string(s.ident.Metric))
		if err != nil {
			return fmt.Errorf("vecindex: record identity: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("vecindex: read identity: %w", err)
	}
	stored.Metric = score.Kind(metric)
	if stored != s.ident {
		return &MismatchError{Stored: stored, Active: s.ident}
	}
	return nil
}

// Upsert inserts or replaces points by chunk ID in one transaction.
func (s *SQLite) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vecindex: begin upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO chunks (id, doc_id, note_type, meta, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("vecindex: prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, p := range points {
		if len(p.Vector) != s.ident.Dimensions {
			return fmt.Errorf("vecindex: point %s has %d dimensions, index expects %d", p.ID, len(p.Vector), s.ident.Dimensions)
		}
		blob, err := vector.EncodeEmbedding(p.Vector)
		if err != nil {
			return fmt.Errorf("vecindex: encode embedding for %s: %w", p.ID, err)
		}
		meta, err := json.Marshal(p.Meta)
		if err != nil {
			return fmt.Errorf("vecindex: marshal meta for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Meta.DocID, p.Meta.NoteType, string(meta), blob); err != nil {
			return fmt.Errorf("vecindex: upsert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecindex: commit upsert: %w", err)
	}
	s.invalidate()

	logger.InfoContext(ctx, "upserted points", "count", len(points))
	return nil
}

// Delete removes points by chunk ID. Missing IDs are ignored.
func (s *SQLite) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("vecindex: delete points: %w", err)
	}
	s.invalidate()
	return nil
}

// Search returns the k nearest neighbors of query, best first. Similarity
// metrics use an in-memory kNN index (brute force below coverAbove rows,
// VP-tree above); distance metrics scan decoded embeddings with negative
// inner product. Filters are pushed into SQL where possible.
func (s *SQLite) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vecindex: k must be positive")
	}
	if len(query) != s.ident.Dimensions {
		return nil, fmt.Errorf("vecindex: query has %d dimensions, index expects %d", len(query), s.ident.Dimensions)
	}

	if s.ident.Metric == score.Distance {
		return s.scanDistance(ctx, query, k, filter)
	}
	if filter == (Filter{}) {
		return s.searchCached(ctx, query, k)
	}
	return s.searchFiltered(ctx, query, k, filter)
}

// searchCached serves unfiltered similarity queries from the in-memory index.
func (s *SQLite) searchCached(ctx context.Context, query []float32, k int) ([]Result, error) {
	cache, err := s.ensureCache(ctx)
	if err != nil {
		return nil, err
	}
	if len(cache.ids) == 0 {
		return nil, nil
	}

	ids, scores, err := cache.knn.Query(query, k)
	if err != nil {
		return nil, fmt.Errorf("vecindex: knn query: %w", err)
	}

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		results = append(results, Result{
			ChunkID: id,
			Score:   score.Score{Raw: scores[i], Kind: score.Similarity},
			Meta:    cache.meta[id],
		})
	}
	return results, nil
}

// searchFiltered pushes filters into SQL and ranks with the vec_cosine
// scalar function registered by the engine.
func (s *SQLite) searchFiltered(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	blob, err := vector.EncodeEmbedding(query)
	if err != nil {
		return nil, fmt.Errorf("vecindex: encode query: %w", err)
	}

	q := "SELECT id, meta, vec_cosine(embedding, ?) AS sim FROM chunks"
	args := []any{blob}
	var conds []string
	if filter.ExcludeDoc != "" {
		conds = append(conds, "doc_id <> ?")
		args = append(args, filter.ExcludeDoc)
	}
	if filter.NoteType != "" {
		conds = append(conds, "note_type = ?")
		args = append(args, filter.NoteType)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY sim DESC LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vecindex: filtered search: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []Result
	for rows.Next() {
		var id, metaJSON string
		var sim float64
		if err := rows.Scan(&id, &metaJSON, &sim); err != nil {
			return nil, fmt.Errorf("vecindex: scan search row: %w", err)
		}
		var meta Meta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vecindex: unmarshal meta for %s: %w", id, err)
		}
		results = append(results, Result{
			ChunkID: id,
			Score:   score.Score{Raw: sim, Kind: score.Similarity},
			Meta:    meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecindex: filtered search: %w", err)
	}
	return results, nil
}

// scanDistance ranks by negative inner product, lower raw means closer.
func (s *SQLite) scanDistance(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	q := "SELECT id, meta, embedding FROM chunks"
	var args []any
	var conds []string
	if filter.ExcludeDoc != "" {
		conds = append(conds, "doc_id <> ?")
		args = append(args, filter.ExcludeDoc)
	}
	if filter.NoteType != "" {
		conds = append(conds, "note_type = ?")
		args = append(args, filter.NoteType)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vecindex: distance scan: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []Result
	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("vecindex: scan row: %w", err)
		}
		vec, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("vecindex: decode embedding for %s: %w", id, err)
		}
		var meta Meta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vecindex: unmarshal meta for %s: %w", id, err)
		}
		results = append(results, Result{
			ChunkID: id,
			Score:   score.Score{Raw: negDot(query, vec), Kind: score.Distance},
			Meta:    meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecindex: distance scan: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score.Raw != results[j].Score.Raw {
			return results[i].Score.Raw < results[j].Score.Raw
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// PointsByDoc returns every stored point of one document in position order.
func (s *SQLite) PointsByDoc(ctx context.Context, docID string) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, meta, embedding FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return nil, fmt.Errorf("vecindex: points by doc: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var points []Point
	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("vecindex: scan point: %w", err)
		}
		vec, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("vecindex: decode embedding for %s: %w", id, err)
		}
		var meta Meta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vecindex: unmarshal meta for %s: %w", id, err)
		}
		points = append(points, Point{ID: id, Vector: vec, Meta: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecindex: points by doc: %w", err)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Meta.Position < points[j].Meta.Position })
	return points, nil
}

// Drop removes all points and the stored identity.
func (s *SQLite) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("vecindex: drop chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collection_info"); err != nil {
		return fmt.Errorf("vecindex: drop identity: %w", err)
	}
	s.invalidate()
	return nil
}

// Count returns the number of stored points.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("vecindex: count: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// ensureCache loads the full table into memory and builds the kNN index.
func (s *SQLite) ensureCache(ctx context.Context) (*memCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		return s.cache, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, meta, embedding FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("vecindex: load cache: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	cache := &memCache{meta: make(map[string]Meta)}
	for rows.Next() {
		var id, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("vecindex: scan cache row: %w", err)
		}
		vec, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("vecindex: decode embedding for %s: %w", id, err)
		}
		var meta Meta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vecindex: unmarshal meta for %s: %w", id, err)
		}
		cache.ids = append(cache.ids, id)
		cache.vecs = append(cache.vecs, vec)
		cache.meta[id] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecindex: load cache: %w", err)
	}

	threshold := s.coverAbove
	if threshold <= 0 {
		threshold = defaultCoverAbove
	}
	if len(cache.ids) > threshold {
		cache.knn = &cover.Index{}
	} else {
		cache.knn = &bruteforce.Index{}
	}
	if err := cache.knn.Build(cache.ids, cache.vecs); err != nil {
		return nil, fmt.Errorf("vecindex: build knn index: %w", err)
	}

	s.cache = cache
	return cache, nil
}

func negDot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return -dot
}
