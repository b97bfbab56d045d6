// Package ai provides factory functions for creating AI service adapters
// and the vector index they feed.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ollamaembed "github.com/custodia-labs/recall/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/recall/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/recall/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/recall/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/recall/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/recall/internal/adapters/driven/rerank"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/milvus"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// fixHint tells the user where provider settings live.
const fixHint = "Run 'recall settings show' to review provider settings"

// InitResult contains the services built from application settings.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService // Nil when no LLM is reachable.
	Scorer           driven.RelevanceScorer
	VectorIndex      driven.VectorIndex
	Warnings         []string // Non-fatal issues that disabled an optional service.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
	if r.LLMService != nil {
		r.LLMService.Close()
	}
	if r.Scorer != nil {
		r.Scorer.Close()
	}
}

// Options controls Initialise.
type Options struct {
	// DataDir holds the SQLite index. Empty means ~/.recall/data.
	DataDir string

	// Ephemeral keeps the index in memory regardless of settings.
	Ephemeral bool

	// SkipLLM leaves the LLM unset, for commands that never generate.
	SkipLLM bool
}

// Initialise builds every service the pipelines need.
// The embedding service and vector index are required; the LLM and
// relevance scorer degrade to warnings.
func Initialise(ctx context.Context, settings domain.AppSettings, opts Options) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider %q is not configured. %s",
			domain.ErrEmbeddingUnavailable, settings.Embedding.Provider, fixHint)
	}
	result.EmbeddingService = embedder

	backend := settings.Vector.Backend
	if opts.Ephemeral {
		backend = domain.VectorBackendMemory
	}
	vs := settings.Vector
	vs.Backend = backend
	index, err := CreateVectorIndex(ctx, &vs, opts.DataDir, embedder.Dimensions())
	if err != nil {
		result.Close()
		return nil, err
	}
	result.VectorIndex = index

	if !opts.SkipLLM {
		llm, err := CreateAndValidateLLMService(&settings.LLM)
		if err != nil {
			result.warn("LLM disabled: %v", err)
		}
		result.LLMService = llm
	}

	scorer, err := CreateScorer(&settings.Rerank)
	switch {
	case err != nil:
		result.warn("re-ranking disabled: %v", err)
	case scorer == nil && settings.Rerank.Provider.IsValid() && settings.Rerank.Provider != domain.RerankProviderNone:
		result.warn("re-ranking disabled: %s provider needs rerank.base_url", settings.Rerank.Provider)
	case scorer == nil:
		rerankOffNotice.Do(func() {
			logger.Info("Re-ranking is off, results keep vector distance order. " +
				"Set rerank.provider and rerank.base_url to enable it.")
		})
	}
	result.Scorer = scorer

	return result, nil
}

// rerankOffNotice limits the re-ranking disabled notice to once per process.
var rerankOffNotice sync.Once

func (r *InitResult) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn("%s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	if svc == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrLLMUnavailable, err, fixHint)
	}
	if svc == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrLLMUnavailable, err, fixHint)
	}
	return svc, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateLLMConfig validates an LLM configuration by creating a service and pinging it.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateLLMService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    openAIBaseURL(settings.BaseURL),
			Model:      settings.Model,
			Dimensions: domain.EmbeddingDimensions()[settings.Model],
			Timeout:    settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama or openai",
			domain.ErrUnsupportedType)

	default:
		return nil, fmt.Errorf("%w: embedding provider %s", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: openAIBaseURL(settings.BaseURL),
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	case domain.AIProviderAnthropic:
		base := settings.BaseURL
		if base == domain.DefaultOllamaURL {
			base = ""
		}
		svc, err := anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: base,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("%w: LLM provider %s", domain.ErrUnsupportedType, settings.Provider)
	}
}

// openAIBaseURL drops the Ollama default so a provider switch does not
// keep pointing at localhost.
func openAIBaseURL(base string) string {
	if base == domain.DefaultOllamaURL {
		return ""
	}
	return base
}

// CreateScorer creates the relevance scorer, or nil when re-ranking is off.
func CreateScorer(settings *domain.RerankSettings) (driven.RelevanceScorer, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	scorer, err := rerank.NewScorer(rerank.Config{
		Provider:          settings.Provider,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		APIKey:            settings.APIKey,
		Timeout:           settings.Timeout,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return scorer, nil
}

// CreateVectorIndex opens the configured backend. dims sizes a new Milvus
// collection and may be zero when the embedding model is unknown.
func CreateVectorIndex(
	ctx context.Context, settings *domain.VectorSettings, dataDir string, dims int,
) (driven.VectorIndex, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: no vector settings", domain.ErrInvalidInput)
	}

	switch settings.Backend {
	case domain.VectorBackendMemory:
		return memory.NewVectorIndex(), nil

	case domain.VectorBackendSQLite, "":
		store, err := sqlite.NewStore(dataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		return store, nil

	case domain.VectorBackendMilvus:
		store, err := milvus.NewStore(ctx, milvus.Config{
			Address:    settings.MilvusAddress,
			Username:   settings.MilvusUsername,
			Password:   settings.MilvusPassword,
			Collection: settings.Collection,
			Dimensions: dims,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: vector backend %s", domain.ErrUnsupportedType, settings.Backend)
	}
}

// IsUnavailable reports whether err means a required service is down.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, domain.ErrIndexUnavailable)
}
