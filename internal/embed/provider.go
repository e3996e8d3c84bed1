// Package embed adapts embedding providers behind a single interface so the
// rest of the engine never knows which backend produced a vector.
package embed

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_provider.go -package=mocks github.com/ivo-toby/gpt-notes-to-tasks/internal/embed Provider

import (
	"context"
	"errors"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

// ErrUnavailable marks failures where the provider could not be reached or
// kept refusing after retries. Callers treat it as "provider down" rather
// than a per-document failure.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider generates embedding vectors for text. All vectors from one
// provider share the same dimensionality and score metric.
type Provider interface {
	// Name identifies the provider for index identity checks.
	Name() string
	// Model is the embedding model identifier.
	Model() string
	// Dimensions is the vector size every embedding must have.
	Dimensions() int
	// Metric is the score kind this provider's vectors are compared with.
	Metric() score.Kind
	// BatchSize is the maximum number of texts per Embed call.
	BatchSize() int
	// Embed returns one vector per input text, in order. It never returns
	// partial results: on any failure the whole call fails.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
