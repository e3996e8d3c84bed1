package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
)

// LocalConfig configures a provider speaking the Ollama /api/embed protocol.
// No auth: the server is expected to run on the same machine.
type LocalConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Metric     score.Kind
	BatchSize  int
}

// LocalProvider calls a locally running Ollama-style embeddings server.
type LocalProvider struct {
	cfg    LocalConfig
	client *http.Client
}

// NewLocalProvider creates a local provider.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	return &LocalProvider{cfg: cfg, client: http.DefaultClient}
}

func (p *LocalProvider) Name() string       { return "local" }
func (p *LocalProvider) Model() string      { return p.cfg.Model }
func (p *LocalProvider) Dimensions() int    { return p.cfg.Dimensions }
func (p *LocalProvider) Metric() score.Kind { return p.cfg.Metric }
func (p *LocalProvider) BatchSize() int     { return p.cfg.BatchSize }

type localRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings for the given texts, one vector per input.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: empty input")
	}
	if p.cfg.BatchSize > 0 && len(texts) > p.cfg.BatchSize {
		return nil, fmt.Errorf("embed: %d texts exceed batch size %d", len(texts), p.cfg.BatchSize)
	}

	body, err := json.Marshal(localRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	url := p.cfg.BaseURL + "/api/embed"
	resp, err := doWithRetry(ctx, p.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("embed: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %v: %w", err, ErrUnavailable)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: bad status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded localResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", len(texts), len(decoded.Embeddings))
	}
	for i, vec := range decoded.Embeddings {
		if len(vec) != p.cfg.Dimensions {
			return nil, fmt.Errorf("embed: embedding %d has size %d, expected %d", i, len(vec), p.cfg.Dimensions)
		}
	}

	return decoded.Embeddings, nil
}
