package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Fallback reasons reported to metrics.
const (
	fallbackNoScorer  = "no_scorer"
	fallbackError     = "error"
	fallbackMismatch  = "score_mismatch"
	fallbackCancelled = "cancelled"
)

// Reranker reorders candidates by a relevance model's judgement.
// Any scorer problem degrades to the first topK candidates in distance order.
type Reranker struct {
	scorer  driven.RelevanceScorer
	metrics driven.PipelineMetrics
}

// NewReranker creates a re-ranker. A nil scorer always falls back.
func NewReranker(scorer driven.RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer, metrics: driven.NopMetrics{}}
}

// SetMetrics sets the metrics sink.
func (r *Reranker) SetMetrics(m driven.PipelineMetrics) {
	if m != nil {
		r.metrics = m
	}
}

// Enabled reports whether a scorer is configured.
func (r *Reranker) Enabled() bool {
	return r.scorer != nil
}

// Rerank returns at most topK candidates, highest relevance first.
// Equal scores keep their distance order. topK <= 0 keeps every candidate.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) []domain.Candidate {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if len(candidates) == 0 {
		return []domain.Candidate{}
	}

	if r.scorer == nil {
		r.metrics.RerankFallback(fallbackNoScorer)
		return fallback(candidates, topK)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Text
	}

	start := time.Now()
	scores, err := r.scorer.Score(ctx, query, texts)
	r.metrics.ObserveStage("rerank", time.Since(start))

	switch {
	case err != nil && ctx.Err() != nil:
		logger.Warn("Re-ranking cancelled, using distance order: %v", err)
		r.metrics.RerankFallback(fallbackCancelled)
		return fallback(candidates, topK)
	case err != nil:
		logger.Error("re-ranking failed, using distance order: %v", err)
		r.metrics.RerankFallback(fallbackError)
		return fallback(candidates, topK)
	case len(scores) != len(candidates):
		logger.Error("re-ranker returned %d scores for %d candidates, using distance order",
			len(scores), len(candidates))
		r.metrics.RerankFallback(fallbackMismatch)
		return fallback(candidates, topK)
	}

	ranked := make([]domain.Candidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		score := scores[i]
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		ranked[i].RelevanceScore = score
		ranked[i].Reranked = true
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RelevanceScore != ranked[j].RelevanceScore {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		}
		return ranked[i].Distance < ranked[j].Distance
	})

	logger.Debug("Re-ranked %d candidates with %s", len(ranked), r.scorer.ModelName())
	return ranked[:topK]
}

func fallback(candidates []domain.Candidate, topK int) []domain.Candidate {
	out := make([]domain.Candidate, topK)
	copy(out, candidates[:topK])
	return out
}
