package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/postprocessors"
)

func newTestQuery(index *flakyIndex, scorer driven.RelevanceScorer, llm driven.LLMService) *QueryService {
	settings := domain.DefaultAppSettings().Retrieval
	return NewQueryService(
		NewRetriever(&mockEmbeddingService{}, index, settings),
		NewReranker(scorer),
		NewContextExpander(index),
		NewPromptBuilder(nil),
		llm,
		settings,
	)
}

func TestClampTopK(t *testing.T) {
	tests := []struct {
		k, fallback, want int
	}{
		{0, 5, 5},
		{-3, 5, 5},
		{1, 5, 1},
		{50, 5, 50},
		{51, 5, 50},
		{500, 5, 50},
		{0, 0, domain.DefaultTopK},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampTopK(tt.k, tt.fallback), "k=%d fallback=%d", tt.k, tt.fallback)
	}
}

func TestQueryService_Query_RetrieveRerankExpand(t *testing.T) {
	index := newFlakyIndex()
	seedDocument(t, index, "doc", "aaaa", "bbbb", "cccc", "dddd")
	// Prefer the chunk mentioning d regardless of distance.
	scorer := &mockScorer{score: func(_, text string) float64 {
		return float64(strings.Count(text, "d"))
	}}
	svc := newTestQuery(index, scorer, nil)

	got, err := svc.Query(context.Background(), domain.QueryRequest{Question: "bbbb", TopK: 2})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "doc_chunk_3", got[0].Chunk.ID)
	assert.True(t, got[0].Reranked)
	assert.True(t, got[0].IsExpanded)
	assert.Equal(t, "[Previous Context]\ncccc\n\n[Main Match]\ndddd", got[0].Chunk.Text)
	assert.Equal(t, 1, scorer.calls)
}

func TestQueryService_Query_NoExpand(t *testing.T) {
	index := newFlakyIndex()
	seedDocument(t, index, "doc", "aaaa", "bbbb", "cccc")
	svc := newTestQuery(index, nil, nil)

	got, err := svc.Query(context.Background(), domain.QueryRequest{Question: "bbbb", TopK: 1, NoExpand: true})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc_chunk_1", got[0].Chunk.ID)
	assert.False(t, got[0].IsExpanded)
	assert.Equal(t, "bbbb", got[0].Chunk.Text)
	assert.Zero(t, index.gets)
}

func TestQueryService_Query_EmptyIndex(t *testing.T) {
	svc := newTestQuery(newFlakyIndex(), &mockScorer{}, nil)

	got, err := svc.Query(context.Background(), domain.QueryRequest{Question: "anything"})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryService_Query_DefaultTopK(t *testing.T) {
	index := newFlakyIndex()
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = strings.Repeat("a", i+1)
	}
	seedDocument(t, index, "doc", texts...)
	svc := newTestQuery(index, nil, nil)

	got, err := svc.Query(context.Background(), domain.QueryRequest{Question: "a"})

	require.NoError(t, err)
	assert.Len(t, got, domain.DefaultTopK)
}

func TestQueryService_Query_RerankFailureFallsBack(t *testing.T) {
	index := newFlakyIndex()
	seedDocument(t, index, "doc", "aaaa", "bbbb", "cccc")
	svc := newTestQuery(index, &mockScorer{err: domain.ErrRerankUnavailable}, nil)

	got, err := svc.Query(context.Background(), domain.QueryRequest{Question: "cccc", TopK: 1, NoExpand: true})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc_chunk_2", got[0].Chunk.ID)
	assert.False(t, got[0].Reranked)
}

func TestQueryService_Ask(t *testing.T) {
	index := newFlakyIndex()
	seedDocument(t, index, "doc", "aaaa", "bbbb")
	llm := &mockLLMService{response: "  The answer.  "}
	svc := newTestQuery(index, nil, llm)

	answer, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "bbbb", TopK: 1})

	require.NoError(t, err)
	assert.Equal(t, "The answer.", answer.Text)
	assert.True(t, answer.HasContext)
	assert.Equal(t, 1, answer.NumChunks)
	require.Len(t, answer.Sources, 1)
	assert.Contains(t, llm.lastPrompt(), "[From: Title doc]")
	assert.Contains(t, llm.lastPrompt(), "USER QUERY: bbbb")
}

func TestQueryService_Ask_NoContext(t *testing.T) {
	llm := &mockLLMService{response: "I don't know about that."}
	svc := newTestQuery(newFlakyIndex(), nil, llm)

	answer, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "quantum chromodynamics"})

	require.NoError(t, err)
	assert.False(t, answer.HasContext)
	assert.Zero(t, answer.NumChunks)
	assert.Contains(t, llm.lastPrompt(), "no relevant context was found")
}

func TestQueryService_Ask_NoLLM(t *testing.T) {
	svc := newTestQuery(newFlakyIndex(), nil, nil)

	_, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "q"})

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestQueryService_Ask_LLMFailure(t *testing.T) {
	svc := newTestQuery(newFlakyIndex(), nil, &mockLLMService{err: errors.New("502 bad gateway")})

	_, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "q"})

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestQueryService_Ask_CancelledBeforeGeneration(t *testing.T) {
	llm := &mockLLMService{response: "unused"}
	svc := newTestQuery(newFlakyIndex(), nil, llm)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ask(ctx, domain.QueryRequest{Question: "q"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, llm.prompts)
}

func TestQueryService_Ask_IndexUnavailable(t *testing.T) {
	index := newFlakyIndex()
	index.searchErr = domain.ErrIndexUnavailable
	llm := &mockLLMService{}
	svc := newTestQuery(index, nil, llm)

	_, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "q"})

	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.Empty(t, llm.prompts)
}

func TestQueryService_SetMetrics(t *testing.T) {
	index := newFlakyIndex()
	seedDocument(t, index, "doc", "aaaa", "bbbb")
	m := newRecordingMetrics()
	svc := newTestQuery(index, nil, &mockLLMService{response: "ok"})
	svc.SetMetrics(m)

	_, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "aaaa"})
	require.NoError(t, err)

	assert.Equal(t, 1, m.stages["embed_query"])
	assert.Equal(t, 1, m.stages["search"])
	assert.Equal(t, 1, m.stages["expand"])
	assert.Equal(t, 1, m.stages["generate"])
	assert.Equal(t, []string{fallbackNoScorer}, m.fallbacks)
}

// End to end: ingest through the real chunker, then ask.
func TestPipeline_IngestThenAsk(t *testing.T) {
	index := newFlakyIndex()
	embedder := &mockEmbeddingService{}
	ingest := NewIngestService(
		postprocessors.NewDefaultPipeline(domain.ChunkingSettings{Size: 1000, Overlap: 200}),
		embedder, index, domain.IngestSettings{BatchSize: 50},
	)
	text := strings.Repeat("a", 798) + "\n\n" + strings.Repeat("b", 798) + "\n\n" + strings.Repeat("c", 798)
	_, err := ingest.Ingest(context.Background(), domain.IngestRequest{DocumentID: "letters", Title: "Letters", Text: text})
	require.NoError(t, err)

	llm := &mockLLMService{response: "B."}
	settings := domain.DefaultAppSettings().Retrieval
	svc := NewQueryService(
		NewRetriever(embedder, index, settings),
		NewReranker(nil),
		NewContextExpander(index),
		NewPromptBuilder(nil),
		llm,
		settings,
	)

	answer, err := svc.Ask(context.Background(), domain.QueryRequest{Question: "bbbbbbbb", TopK: 1})

	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)
	top := answer.Sources[0]
	assert.Equal(t, "letters_chunk_1", top.Chunk.ID)
	assert.True(t, top.Expansion.HasPrevious)
	assert.True(t, top.Expansion.HasNext)
	assert.Contains(t, llm.lastPrompt(), "[From: Letters]")
}
