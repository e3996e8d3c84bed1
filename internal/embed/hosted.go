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

// HostedConfig configures a provider speaking the OpenAI-style
// /v1/embeddings protocol with bearer auth.
type HostedConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Metric     score.Kind
	BatchSize  int
}

// HostedProvider calls a hosted OpenAI-compatible embeddings API.
type HostedProvider struct {
	cfg    HostedConfig
	client *http.Client
}

// NewHostedProvider creates a hosted provider. All embeddings returned by
// Embed are validated against cfg.Dimensions.
func NewHostedProvider(cfg HostedConfig) *HostedProvider {
	return &HostedProvider{cfg: cfg, client: http.DefaultClient}
}

func (p *HostedProvider) Name() string       { return "hosted" }
func (p *HostedProvider) Model() string      { return p.cfg.Model }
func (p *HostedProvider) Dimensions() int    { return p.cfg.Dimensions }
func (p *HostedProvider) Metric() score.Kind { return p.cfg.Metric }
func (p *HostedProvider) BatchSize() int     { return p.cfg.BatchSize }

type hostedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type hostedEmbedding struct {
	Embedding []float64 `json:"embedding"`
}

type hostedResponse struct {
	Data []hostedEmbedding `json:"data"`
}

// Embed generates embeddings for the given texts, one vector per input.
func (p *HostedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: empty input")
	}
	if p.cfg.BatchSize > 0 && len(texts) > p.cfg.BatchSize {
		return nil, fmt.Errorf("embed: %d texts exceed batch size %d", len(texts), p.cfg.BatchSize)
	}

	body, err := json.Marshal(hostedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	url := p.cfg.BaseURL + "/v1/embeddings"
	resp, err := doWithRetry(ctx, p.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("embed: create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
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

	var decoded hostedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}

	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", len(texts), len(decoded.Data))
	}

	result := make([][]float32, len(decoded.Data))
	for i, data := range decoded.Data {
		if len(data.Embedding) != p.cfg.Dimensions {
			return nil, fmt.Errorf("embed: embedding %d has size %d, expected %d", i, len(data.Embedding), p.cfg.Dimensions)
		}
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}
