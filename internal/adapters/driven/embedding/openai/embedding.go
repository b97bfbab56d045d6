// Package openai embeds text with an OpenAI-compatible /embeddings endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// fallbackDimensions is assumed for models missing from the known list.
	fallbackDimensions = 1536

	// maxInputs is the API's per-request input limit. Larger batches are split.
	maxInputs = 2048
)

// Config configures the embedding client. APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions shortens text-embedding-3 vectors. Zero uses the model's size.
	Dimensions int
}

// EmbeddingService turns text into vectors over /embeddings.
type EmbeddingService struct {
	api        *httpapi.Client
	model      string
	dimensions int
	shortens   bool // model accepts the dimensions parameter
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingService creates the embedding client.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w: API key is required", domain.ErrEmbeddingUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dims := cfg.Dimensions
	if dims == 0 {
		known, ok := domain.EmbeddingDimensions()[cfg.Model]
		if !ok {
			known = fallbackDimensions
		}
		dims = known
	}

	return &EmbeddingService{
		api: httpapi.New(cfg.BaseURL, cfg.Timeout, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
		model:      cfg.Model,
		dimensions: dims,
		shortens:   strings.HasPrefix(cfg.Model, "text-embedding-3-"),
	}, nil
}

// Embed returns the vector for one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order. Batches over the
// per-request limit are sent in slices; any failed slice fails the batch.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputs {
		end := min(start+maxInputs, len(texts))
		vecs, err := s.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *EmbeddingService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := embedRequest{Model: s.model, Input: texts}
	if s.shortens {
		req.Dimensions = s.dimensions
	}

	var resp embedResponse
	if err := s.api.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return nil, fmt.Errorf("openai: %w: %w", domain.ErrEmbeddingFailure, err)
	}

	// Items may arrive in any order; place them by index.
	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("openai: %w: response index %d out of range", domain.ErrEmbeddingFailure, item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	for i, v := range vecs {
		switch {
		case len(v) == 0:
			return nil, fmt.Errorf("openai: %w: no embedding for input %d", domain.ErrEmbeddingFailure, i)
		case s.shortens && len(v) != s.dimensions:
			return nil, fmt.Errorf("openai: %w: input %d has %d dimensions, want %d",
				domain.ErrEmbeddingFailure, i, len(v), s.dimensions)
		}
	}
	return vecs, nil
}

// Dimensions returns the vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the embedding model id.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without embedding anything.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/models"); err != nil {
		return fmt.Errorf("openai: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
