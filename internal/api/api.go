// Package api exposes the knowledge base over a read-only HTTP surface.
// Indexing and link writing stay on the CLI; the API only answers searches
// and relationship lookups.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/contextutil"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
)

// Engine is the subset of the knowledge base manager the API serves.
type Engine interface {
	Query(ctx context.Context, text string, opts kb.QueryOptions) ([]kb.QueryResult, error)
	Relationships(ctx context.Context, docID string) (*kb.Relationships, error)
	VerifyIndex(ctx context.Context) error
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine Engine
	Logger *slog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	search := &SearchHandler{engine: deps.Engine}
	links := &RelationshipsHandler{engine: deps.Engine}
	health := &HealthHandler{engine: deps.Engine}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/search", search)
		// Note IDs are vault-relative paths and may contain slashes, so the
		// route is a wildcard with a /links suffix.
		r.Method(http.MethodGet, "/notes/*", links)
	})
	r.Method(http.MethodGet, "/healthz", health)

	return r
}

// requestLogger puts a request-scoped logger into the context, the same way
// workflows tag theirs with a run ID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With(
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx := contextutil.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
