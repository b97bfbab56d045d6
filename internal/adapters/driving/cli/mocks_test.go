package cli

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/custodia-labs/recall/internal/adapters/driving/watch"
	"github.com/custodia-labs/recall/internal/core/domain"
)

// mockIngestService records the last request and returns a canned result.
type mockIngestService struct {
	lastReq  domain.IngestRequest
	replaced bool
	result   *domain.IngestResult
	err      error
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.respond(req)
}

func (m *mockIngestService) Replace(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	m.replaced = true
	return m.respond(req)
}

func (m *mockIngestService) respond(req domain.IngestRequest) (*domain.IngestResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	id := req.DocumentID
	if id == "" {
		id = "generated-id"
	}
	return &domain.IngestResult{
		DocumentID:         id,
		ChunksCreated:      2,
		TotalChunks:        2,
		TotalCharacters:    len(req.Text),
		EmbeddingDimension: 768,
	}, nil
}

type mockQueryService struct {
	lastReq domain.QueryRequest
	results []domain.ExpandedResult
	answer  *domain.Answer
	err     error
}

func (m *mockQueryService) Query(_ context.Context, req domain.QueryRequest) ([]domain.ExpandedResult, error) {
	m.lastReq = req
	return m.results, m.err
}

func (m *mockQueryService) Ask(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

type mockStudyService struct {
	cards      []domain.Flashcard
	quiz       *domain.QuizQuestion
	err        error
	topic      string
	count      int
	difficulty string
	documentID string
}

func (m *mockStudyService) Flashcards(_ context.Context, topic string, count int, documentID string) ([]domain.Flashcard, error) {
	m.topic, m.count, m.documentID = topic, count, documentID
	return m.cards, m.err
}

func (m *mockStudyService) Quiz(_ context.Context, topic, difficulty, documentID string) (*domain.QuizQuestion, error) {
	m.topic, m.difficulty, m.documentID = topic, difficulty, documentID
	if m.err != nil {
		return nil, m.err
	}
	return m.quiz, nil
}

type mockDocumentService struct {
	docs    []domain.DocumentSummary
	chunks  map[string][]domain.Chunk
	stats   *domain.IndexStats
	deleted []string
	reset   bool
	err     error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.DocumentSummary, error) {
	return m.docs, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	chunks, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return chunks, nil
}

func (m *mockDocumentService) Delete(_ context.Context, id string) (*domain.DeleteResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	chunks, ok := m.chunks[id]
	m.deleted = append(m.deleted, id)
	return &domain.DeleteResult{DocumentID: id, ChunksDeleted: len(chunks), Found: ok}, nil
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Reset(_ context.Context) error {
	m.reset = true
	return m.err
}

// mockSettingsService keeps settings in memory and records Set calls.
type mockSettingsService struct {
	settings domain.AppSettings
	set      map[string]string
	setErr   error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings(), set: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = *s
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Keys() []string {
	return []string{"embedding.model", "llm.model", "retrieval.top_k"}
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return nil }

func (m *mockSettingsService) ValidateLLMConfig() error { return nil }

// testServices holds the mocks injected by setupTestServices.
type testServices struct {
	ingest   *mockIngestService
	query    *mockQueryService
	study    *mockStudyService
	document *mockDocumentService
	settings *mockSettingsService
}

func testChunk(doc string, index int, text string) domain.Chunk {
	return domain.Chunk{
		ID:          domain.ChunkID(doc, index),
		DocumentID:  doc,
		Index:       index,
		TotalChunks: 2,
		Text:        text,
		Metadata:    domain.Metadata{domain.MetaTitle: domain.StringValue("Cell Biology")},
	}
}

// setupTestServices injects mocks into the command globals and returns a
// cleanup that restores them and resets every flag.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingest: &mockIngestService{},
		query:  &mockQueryService{},
		study:  &mockStudyService{},
		document: &mockDocumentService{
			docs: []domain.DocumentSummary{
				{ID: "bio", Title: "Cell Biology", TotalChunks: 2, IndexedChunks: 2},
				{ID: "chem", TotalChunks: 4, IndexedChunks: 3},
			},
			chunks: map[string][]domain.Chunk{
				"bio": {testChunk("bio", 0, "Cells are the unit of life."), testChunk("bio", 1, "Mitosis divides cells.")},
			},
			stats: &domain.IndexStats{
				Backend:            "sqlite",
				TotalChunks:        5,
				EmbeddingModel:     "nomic-embed-text",
				EmbeddingDimension: 768,
			},
		},
		settings: newMockSettingsService(),
	}

	ingestService = ts.ingest
	queryService = ts.query
	studyService = ts.study
	documentService = ts.document
	settingsService = ts.settings
	servicesReady = true

	return ts, func() {
		ingestService = nil
		queryService = nil
		studyService = nil
		documentService = nil
		settingsService = nil
		servicesReady = false
		stdin = strings.NewReader("")
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}
}

// resetFlags restores flag variables, which persist between executions.
func resetFlags() {
	ingestID, ingestTitle, ingestText, ingestMeta = "", "", "", nil
	queryTopK, queryDocument, queryNoExpand, queryJSON = 0, "", false, false
	documentsJSON, showChunks, resetYes = false, false, false
	flashcardCount, quizDifficulty, studyDocument, studyJSON, quizInteractive = 5, "medium", "", false, false
	tuiTopK, tuiDocument, tuiRetrieve = 0, "", false
	mcpHTTPAddr, mcpReadOnly = "", false
	watchDebounce, watchNoScan = watch.DefaultDebounce, false
}

// executeCommand runs the root command with args and returns its combined output.
func executeCommand(in io.Reader, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	if in != nil {
		rootCmd.SetIn(in)
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}
