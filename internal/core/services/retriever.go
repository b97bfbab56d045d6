package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Retriever fetches a wide candidate set by embedding similarity.
type Retriever struct {
	embedder      driven.EmbeddingService
	index         driven.VectorIndex
	metrics       driven.PipelineMetrics
	overFetch     int
	minCandidates int
}

// NewRetriever creates a retriever. Non-positive settings fall back to defaults.
func NewRetriever(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	settings domain.RetrievalSettings,
) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		index:         index,
		metrics:       driven.NopMetrics{},
		overFetch:     settings.OverFetch,
		minCandidates: settings.MinCandidates,
	}
	if r.overFetch <= 0 {
		r.overFetch = domain.DefaultOverFetch
	}
	if r.minCandidates <= 0 {
		r.minCandidates = domain.DefaultMinCandidates
	}
	return r
}

// SetMetrics sets the metrics sink.
func (r *Retriever) SetMetrics(m driven.PipelineMetrics) {
	if m != nil {
		r.metrics = m
	}
}

// InitialK returns the candidate set size for a final result count of k.
func (r *Retriever) InitialK(k int) int {
	return max(k*r.overFetch, r.minCandidates)
}

// Retrieve returns up to InitialK(k) candidates ordered by ascending distance.
// A non-empty documentID restricts the search to that document.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, documentID string) ([]domain.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no candidates")
		return []domain.Candidate{}, nil
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("retrieve: %w", domain.ErrEmbeddingUnavailable)
	}
	if r.index == nil {
		return nil, fmt.Errorf("retrieve: %w", domain.ErrIndexUnavailable)
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	r.metrics.ObserveStage("embed_query", time.Since(start))
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingFailure) {
			return nil, fmt.Errorf("retrieve: embed query: %w", err)
		}
		return nil, fmt.Errorf("retrieve: embed query: %w: %w", domain.ErrEmbeddingFailure, err)
	}

	var filter domain.Filter
	if documentID != "" {
		filter = domain.DocumentFilter(documentID)
	}

	n := r.InitialK(k)
	start = time.Now()
	candidates, err := r.index.Search(ctx, vec, n, filter)
	r.metrics.ObserveStage("search", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}

	// Drop anything outside the requested scope.
	if documentID != "" {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Chunk.DocumentID == documentID {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	logger.Debug("Retrieved %d candidates (asked for %d)", len(candidates), n)
	return candidates, nil
}
