package vecindex

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

// HNSWConfig exposes the qdrant graph build and search knobs.
type HNSWConfig struct {
	M           uint64 // graph connectivity, 0 keeps the server default
	EfConstruct uint64 // build-time beam width, 0 keeps the server default
	EfSearch    uint64 // query-time beam width, 0 keeps the server default
}

// Qdrant is a remote vector index backed by a qdrant collection. Chunk IDs
// are mapped to deterministic UUIDv5 point IDs; the real chunk ID rides in
// the payload.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	ident      Identity
	hnsw       HNSWConfig
}

// NewQdrant creates a qdrant-backed index. urlStr is the HTTP URL
// (e.g. "http://localhost:6333"); the gRPC port is derived from it.
func NewQdrant(urlStr, collection string, ident Identity, hnsw HNSWConfig) (*Qdrant, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("vecindex: invalid qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	// gRPC listens one port above HTTP by convention.
	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("vecindex: create qdrant client: %w", err)
	}

	return &Qdrant{client: client, collection: collection, ident: ident, hnsw: hnsw}, nil
}

func (q *Qdrant) distance() qdrant.Distance {
	if q.ident.Metric == score.Distance {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

// Verify creates the collection when absent and validates dimensionality and
// distance metric when present. Provider and model cannot be read back from
// qdrant, so only what the server knows is checked.
func (q *Qdrant) Verify(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vecindex: check collection: %w", err)
	}

	if !exists {
		params := &qdrant.VectorParams{
			Size:     uint64(q.ident.Dimensions),
			Distance: q.distance(),
		}
		create := &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig:  qdrant.NewVectorsConfig(params),
		}
		if q.hnsw.M > 0 || q.hnsw.EfConstruct > 0 {
			hnsw := &qdrant.HnswConfigDiff{}
			if q.hnsw.M > 0 {
				m := q.hnsw.M
				hnsw.M = &m
			}
			if q.hnsw.EfConstruct > 0 {
				ef := q.hnsw.EfConstruct
				hnsw.EfConstruct = &ef
			}
			create.HnswConfig = hnsw
		}
		if err := q.client.CreateCollection(ctx, create); err != nil {
			return fmt.Errorf("vecindex: create collection: %w", err)
		}
		logger.InfoContext(ctx, "collection created",
			"collection", q.collection, "dimensions", q.ident.Dimensions, "metric", q.ident.Metric)
		return nil
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vecindex: get collection info: %w", err)
	}
	config := info.GetConfig()
	if config == nil || config.GetParams() == nil {
		return fmt.Errorf("vecindex: collection config is invalid")
	}
	params := config.GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("vecindex: collection vector params are invalid")
	}

	stored := q.ident
	stored.Dimensions = int(params.GetSize())
	if params.GetDistance() == qdrant.Distance_Dot {
		stored.Metric = score.Distance
	} else {
		stored.Metric = score.Similarity
	}
	if stored != q.ident {
		return &MismatchError{Stored: stored, Active: q.ident}
	}
	return nil
}

// pointID maps a chunk ID onto a deterministic UUID acceptable to qdrant.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("notekb:"+chunkID)).String()
}

// Upsert inserts or replaces points by chunk ID.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != q.ident.Dimensions {
			return fmt.Errorf("vecindex: point %s has %d dimensions, index expects %d", p.ID, len(p.Vector), q.ident.Dimensions)
		}
		payload := map[string]any{
			"chunk_id":   p.ID,
			"doc_id":     p.Meta.DocID,
			"position":   p.Meta.Position,
			"note_type":  p.Meta.NoteType,
			"title":      p.Meta.Title,
			"date":       p.Meta.Date,
			"indexed_at": p.Meta.IndexedAt.Format(time.RFC3339Nano),
		}
		if len(p.Meta.Tags) > 0 {
			tags := make([]any, len(p.Meta.Tags))
			for i, t := range p.Meta.Tags {
				tags[i] = t
			}
			payload["tags"] = tags
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("vecindex: upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", q.collection, "count", len(points))
	return nil
}

// Delete removes points by chunk ID.
func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	qdrantIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qdrantIDs = append(qdrantIDs, qdrant.NewID(pointID(id)))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrantIDs...),
	})
	if err != nil {
		return fmt.Errorf("vecindex: delete points: %w", err)
	}
	return nil
}

func (q *Qdrant) filter(filter Filter) *qdrant.Filter {
	if filter == (Filter{}) {
		return nil
	}
	f := &qdrant.Filter{}
	if filter.ExcludeDoc != "" {
		f.MustNot = append(f.MustNot, qdrant.NewMatch("doc_id", filter.ExcludeDoc))
	}
	if filter.NoteType != "" {
		f.Must = append(f.Must, qdrant.NewMatch("note_type", filter.NoteType))
	}
	return f
}

// Search returns the k nearest neighbors, best first.
func (q *Qdrant) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vecindex: k must be positive")
	}

	limit := uint64(k)
	queryReq := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := q.filter(filter); f != nil {
		queryReq.Filter = f
	}
	if q.hnsw.EfSearch > 0 {
		ef := q.hnsw.EfSearch
		queryReq.Params = &qdrant.SearchParams{HnswEf: &ef}
	}

	scoredPoints, err := q.client.Query(ctx, queryReq)
	if err != nil {
		return nil, fmt.Errorf("vecindex: search points: %w", err)
	}

	results := make([]Result, 0, len(scoredPoints))
	for _, sp := range scoredPoints {
		meta, chunkID := metaFromPayload(sp.GetPayload())
		raw := float64(sp.GetScore())
		if q.ident.Metric == score.Distance {
			// qdrant reports dot product with higher meaning closer.
			raw = -raw
		}
		results = append(results, Result{
			ChunkID: chunkID,
			Score:   score.Score{Raw: raw, Kind: q.ident.Metric},
			Meta:    meta,
		})
	}
	return results, nil
}

// scrollPageSize bounds a single PointsByDoc scroll. A document never has
// anywhere near this many chunks.
const scrollPageSize = uint32(4096)

// PointsByDoc returns every stored point of one document in position order.
func (q *Qdrant) PointsByDoc(ctx context.Context, docID string) ([]Point, error) {
	limit := scrollPageSize
	retrieved, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)}},
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vecindex: scroll points for %s: %w", docID, err)
	}

	points := make([]Point, 0, len(retrieved))
	for _, rp := range retrieved {
		meta, chunkID := metaFromPayload(rp.GetPayload())
		points = append(points, Point{
			ID:     chunkID,
			Vector: rp.GetVectors().GetVector().GetData(),
			Meta:   meta,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Meta.Position < points[j].Meta.Position })
	return points, nil
}

// Drop deletes the whole collection. Verify recreates it.
func (q *Qdrant) Drop(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("vecindex: delete collection: %w", err)
	}
	return nil
}

// Count returns the number of stored points.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("vecindex: get collection info: %w", err)
	}
	if info.PointsCount == nil {
		return 0, nil
	}
	return int(*info.PointsCount), nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

func metaFromPayload(payload map[string]*qdrant.Value) (Meta, string) {
	var meta Meta
	var chunkID string
	for key, v := range payload {
		if v == nil {
			continue
		}
		switch key {
		case "chunk_id":
			chunkID = v.GetStringValue()
		case "doc_id":
			meta.DocID = v.GetStringValue()
		case "position":
			meta.Position = int(v.GetIntegerValue())
		case "note_type":
			meta.NoteType = v.GetStringValue()
		case "title":
			meta.Title = v.GetStringValue()
		case "date":
			meta.Date = v.GetStringValue()
		case "indexed_at":
			if ts, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
				meta.IndexedAt = ts
			}
		case "tags":
			if list := v.GetListValue(); list != nil {
				for _, item := range list.GetValues() {
					meta.Tags = append(meta.Tags, item.GetStringValue())
				}
			}
		}
	}
	return meta, chunkID
}
