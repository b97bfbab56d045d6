package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/adapters/driven/rerank"
	"github.com/custodia-labs/recall/internal/core/domain"
)

func rankedIDs(cs []domain.Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.Chunk.ID
	}
	return ids
}

func distanceOrdered(texts ...string) []domain.Candidate {
	out := make([]domain.Candidate, len(texts))
	for i, text := range texts {
		out[i] = candidate(storedChunk("d", i, len(texts), text), float64(i)/10)
	}
	return out
}

func TestReranker_OrdersByScore(t *testing.T) {
	cands := distanceOrdered("zero", "one", "two", "three")
	r := NewReranker(&mockScorer{scores: []float64{0.1, 0.9, 0.5, 0.7}})

	got := r.Rerank(context.Background(), "q", cands, 3)

	assert.Equal(t, []string{"d_chunk_1", "d_chunk_3", "d_chunk_2"}, rankedIDs(got))
	for _, c := range got {
		assert.True(t, c.Reranked)
	}
	assert.InDelta(t, 0.9, got[0].RelevanceScore, 1e-9)
}

func TestReranker_TiesKeepDistanceOrder(t *testing.T) {
	cands := distanceOrdered("zero", "one", "two")
	// Present out of distance order to check the tie-break does not depend on input order.
	cands[0], cands[2] = cands[2], cands[0]
	r := NewReranker(&mockScorer{scores: []float64{0.5, 0.5, 0.5}})

	got := r.Rerank(context.Background(), "q", cands, 3)

	assert.Equal(t, []string{"d_chunk_0", "d_chunk_1", "d_chunk_2"}, rankedIDs(got))
}

func TestReranker_NaNScoresSortLast(t *testing.T) {
	cands := distanceOrdered("zero", "one")
	r := NewReranker(&mockScorer{scores: []float64{math.NaN(), 0.1}})

	got := r.Rerank(context.Background(), "q", cands, 2)

	assert.Equal(t, []string{"d_chunk_1", "d_chunk_0"}, rankedIDs(got))
}

func TestReranker_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		scorer *mockScorer
		reason string
	}{
		{name: "scorer error", scorer: &mockScorer{err: errors.New("connection refused")}, reason: fallbackError},
		{name: "too few scores", scorer: &mockScorer{scores: []float64{0.9}}, reason: fallbackMismatch},
		{name: "too many scores", scorer: &mockScorer{scores: []float64{1, 2, 3, 4, 5}}, reason: fallbackMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := distanceOrdered("zero", "one", "two", "three")
			m := newRecordingMetrics()
			r := NewReranker(tt.scorer)
			r.SetMetrics(m)

			got := r.Rerank(context.Background(), "q", cands, 2)

			assert.Equal(t, []string{"d_chunk_0", "d_chunk_1"}, rankedIDs(got))
			for _, c := range got {
				assert.False(t, c.Reranked)
			}
			assert.Equal(t, []string{tt.reason}, m.fallbacks)
		})
	}
}

func TestReranker_NoScorer(t *testing.T) {
	cands := distanceOrdered("zero", "one", "two")
	r := NewReranker(nil)

	got := r.Rerank(context.Background(), "q", cands, 2)

	assert.False(t, r.Enabled())
	assert.Equal(t, []string{"d_chunk_0", "d_chunk_1"}, rankedIDs(got))
}

func TestReranker_TopKBounds(t *testing.T) {
	cands := distanceOrdered("zero", "one")
	r := NewReranker(&mockScorer{scores: []float64{0.2, 0.8}})

	assert.Len(t, r.Rerank(context.Background(), "q", cands, 10), 2)
	assert.Len(t, r.Rerank(context.Background(), "q", cands, 0), 2)
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 5))
}

func TestReranker_DoesNotMutateInput(t *testing.T) {
	cands := distanceOrdered("zero", "one")
	r := NewReranker(&mockScorer{scores: []float64{0.2, 0.8}})

	got := r.Rerank(context.Background(), "q", cands, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "d_chunk_0", cands[0].Chunk.ID)
	assert.False(t, cands[0].Reranked)
}

func TestReranker_ServerBackoffFallsBackImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	scorer, err := rerank.NewScorer(rerank.Config{Provider: domain.RerankProviderTEI, BaseURL: srv.URL})
	require.NoError(t, err)
	r := NewReranker(scorer)
	cands := distanceOrdered("zero", "one", "two")

	first := r.Rerank(context.Background(), "q", cands, 2)
	require.Equal(t, []string{"d_chunk_0", "d_chunk_1"}, rankedIDs(first))

	start := time.Now()
	second := r.Rerank(context.Background(), "q", cands, 2)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"d_chunk_0", "d_chunk_1"}, rankedIDs(second))
	assert.False(t, second[0].Reranked)
	assert.Equal(t, int32(1), calls.Load())
}
