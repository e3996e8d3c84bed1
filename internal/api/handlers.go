package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// SearchHandler answers GET /api/search.
type SearchHandler struct {
	engine Engine
}

type searchResult struct {
	DocID    string  `json:"doc_id"`
	ChunkID  string  `json:"chunk_id"`
	Title    string  `json:"title"`
	NoteType string  `json:"note_type"`
	Score    float64 `json:"score"`
	Metric   string  `json:"metric"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

// ServeHTTP runs a semantic search. Query parameters: q (required),
// category, limit, type, tag, date.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	category, err := kb.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := kb.QueryOptions{
		Category: category,
		NoteType: r.URL.Query().Get("type"),
		Tag:      r.URL.Query().Get("tag"),
		Date:     r.URL.Query().Get("date"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	results, err := h.engine.Query(r.Context(), q, opts)
	if err != nil {
		var unavailable *kb.ProviderUnavailableError
		if errors.As(err, &unavailable) {
			writeError(w, http.StatusServiceUnavailable, "embedding provider unavailable")
			return
		}
		logger.ErrorContext(r.Context(), "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	out := searchResponse{Query: q, Results: make([]searchResult, 0, len(results))}
	for _, res := range results {
		out.Results = append(out.Results, searchResult{
			DocID:    res.DocID,
			ChunkID:  res.ChunkID,
			Title:    res.Title,
			NoteType: res.NoteType,
			Score:    res.Score.Raw,
			Metric:   string(res.Score.Kind),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RelationshipsHandler answers GET /api/notes/{id}/links where {id} is a
// vault-relative path.
type RelationshipsHandler struct {
	engine Engine
}

func (h *RelationshipsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	rest := chi.URLParam(r, "*")
	docID, ok := strings.CutSuffix(rest, "/links")
	if !ok || docID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rel, err := h.engine.Relationships(r.Context(), docID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown note "+docID)
			return
		}
		logger.ErrorContext(r.Context(), "relationship lookup failed", "doc", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// HealthHandler answers GET /healthz. The index identity check doubles as a
// readiness probe: a mismatched index means no query can be served.
type HealthHandler struct {
	engine Engine
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.engine.VerifyIndex(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
