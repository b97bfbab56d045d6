package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// letterVector embeds text as letter frequencies, so texts sharing letters
// are close in cosine distance.
func letterVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu         sync.Mutex
	embedErr   error
	batchErrs  map[int]error // keyed by 1-based EmbedBatch call number
	batchSizes []int
	embeds     int
	short      bool // return one vector too few
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return letterVector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, len(texts))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.batchErrs[len(m.batchSizes)]; ok {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	if m.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return 26
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return nil
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

func (m *mockEmbeddingService) calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batchSizes...)
}

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	opts     []driven.GenerateOptions
}

func (m *mockLLMService) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLMService) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return m.response, m.err
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

func (m *mockLLMService) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// mockScorer implements driven.RelevanceScorer for testing.
type mockScorer struct {
	scores []float64
	err    error
	score  func(query, text string) float64
	calls  int
}

func (m *mockScorer) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.score != nil {
		out := make([]float64, len(texts))
		for i, t := range texts {
			out[i] = m.score(query, t)
		}
		return out, nil
	}
	return m.scores, nil
}

func (m *mockScorer) ModelName() string {
	return "mock-reranker"
}

func (m *mockScorer) Close() error {
	return nil
}

// flakyIndex wraps the memory index with injectable failures.
type flakyIndex struct {
	*memory.VectorIndex
	upsertErrs map[int]error // keyed by 1-based Upsert call number
	upserts    int
	getErr     error
	searchErr  error
	gets       int
	mu         sync.Mutex
}

func newFlakyIndex() *flakyIndex {
	return &flakyIndex{VectorIndex: memory.NewVectorIndex()}
}

func (f *flakyIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	f.upserts++
	err := f.upsertErrs[f.upserts]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.VectorIndex.Upsert(ctx, chunks)
}

func (f *flakyIndex) Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.VectorIndex.Get(ctx, ids)
}

func (f *flakyIndex) Search(
	ctx context.Context, query []float32, n int, filter domain.Filter,
) ([]domain.Candidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.VectorIndex.Search(ctx, query, n, filter)
}

// recordingMetrics implements driven.PipelineMetrics for testing.
type recordingMetrics struct {
	mu        sync.Mutex
	batches   map[bool]int
	stages    map[string]int
	fallbacks []string
	ingests   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{batches: map[bool]int{}, stages: map[string]int{}}
}

func (r *recordingMetrics) ObserveBatch(success bool, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[success]++
}

func (r *recordingMetrics) ObserveIngest(time.Duration, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingests++
}

func (r *recordingMetrics) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage]++
}

func (r *recordingMetrics) RerankFallback(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, reason)
}

// storedChunk builds an indexed chunk with reserved metadata.
func storedChunk(docID string, index, total int, text string) domain.Chunk {
	return domain.Chunk{
		ID:          domain.ChunkID(docID, index),
		DocumentID:  docID,
		Index:       index,
		TotalChunks: total,
		Text:        text,
		Embedding:   letterVector(text + " z"),
		Metadata: domain.Metadata{
			domain.MetaDocumentID:  domain.StringValue(docID),
			domain.MetaChunkIndex:  domain.IntValue(index),
			domain.MetaTotalChunks: domain.IntValue(total),
			domain.MetaTitle:       domain.StringValue("Title " + docID),
		},
	}
}

// candidate builds a search candidate for chunk at distance.
func candidate(c domain.Chunk, distance float64) domain.Candidate {
	c.Embedding = nil
	return domain.Candidate{Chunk: c, Distance: distance}
}
