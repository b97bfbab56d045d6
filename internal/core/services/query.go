package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// answerTemperature keeps grounded answers close to the context.
const answerTemperature = 0.2

// QueryService runs retrieval, re-ranking and expansion, and optionally
// asks the LLM to answer from the results.
type QueryService struct {
	retriever *Retriever
	reranker  *Reranker
	expander  *ContextExpander
	prompts   *PromptBuilder
	llm       driven.LLMService
	metrics   driven.PipelineMetrics
	topK      int
	expand    bool
}

// NewQueryService creates a new query service.
// The llm parameter is optional (can be nil); Ask then fails with ErrLLMUnavailable.
func NewQueryService(
	retriever *Retriever,
	reranker *Reranker,
	expander *ContextExpander,
	prompts *PromptBuilder,
	llm driven.LLMService,
	settings domain.RetrievalSettings,
) *QueryService {
	return &QueryService{
		retriever: retriever,
		reranker:  reranker,
		expander:  expander,
		prompts:   prompts,
		llm:       llm,
		metrics:   driven.NopMetrics{},
		topK:      ClampTopK(settings.TopK, domain.DefaultTopK),
		expand:    settings.Expand,
	}
}

// SetMetrics sets the metrics sink on the service and its stages.
func (s *QueryService) SetMetrics(m driven.PipelineMetrics) {
	if m == nil {
		return
	}
	s.metrics = m
	s.retriever.SetMetrics(m)
	s.reranker.SetMetrics(m)
	s.expander.SetMetrics(m)
}

// ClampTopK applies the default to non-positive values and caps at MaxTopK.
func ClampTopK(k, fallback int) int {
	if k <= 0 {
		k = fallback
	}
	if k <= 0 {
		k = domain.DefaultTopK
	}
	return min(k, domain.MaxTopK)
}

// Query returns the top results for a question.
func (s *QueryService) Query(ctx context.Context, req domain.QueryRequest) ([]domain.ExpandedResult, error) {
	logger.Section("Query Execution")
	topK := ClampTopK(req.TopK, s.topK)
	defer logger.Timed("query", "question", req.Question, "top_k", topK, "document", req.DocumentID)()

	candidates, err := s.retriever.Retrieve(ctx, req.Question, topK, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(candidates) == 0 {
		logger.Debug("No candidates found")
		return []domain.ExpandedResult{}, nil
	}

	ranked := s.reranker.Rerank(ctx, req.Question, candidates, topK)

	if req.NoExpand || !s.expand {
		results := make([]domain.ExpandedResult, len(ranked))
		for i, c := range ranked {
			results[i] = Unexpanded(c)
		}
		return results, nil
	}

	return s.expander.Expand(ctx, ranked), nil
}

// Ask answers a question from the retrieved context.
func (s *QueryService) Ask(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("ask: %w", domain.ErrLLMUnavailable)
	}

	results, err := s.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}

	prompt := s.prompts.Answer(strings.TrimSpace(req.Question), results)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}

	start := time.Now()
	text, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{Temperature: answerTemperature})
	s.metrics.ObserveStage("generate", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("ask: generate: %w", asLLMError(err))
	}

	return &domain.Answer{
		Question:   req.Question,
		Text:       strings.TrimSpace(text),
		HasContext: len(results) > 0,
		NumChunks:  len(results),
		Sources:    results,
	}, nil
}

// asLLMError tags provider failures with ErrLLMUnavailable, leaving
// cancellation errors as they are.
func asLLMError(err error) error {
	if errors.Is(err, domain.ErrLLMUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
}
