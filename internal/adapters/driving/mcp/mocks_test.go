package mcp

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result  *domain.IngestResult
	err     error
	lastReq domain.IngestRequest
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockIngestService) Replace(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	results []domain.ExpandedResult
	answer  *domain.Answer
	err     error
	lastReq domain.QueryRequest
}

func (m *mockQueryService) Query(_ context.Context, req domain.QueryRequest) ([]domain.ExpandedResult, error) {
	m.lastReq = req
	return m.results, m.err
}

func (m *mockQueryService) Ask(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.lastReq = req
	return m.answer, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.DocumentSummary
	chunks    []domain.Chunk
	deleted   *domain.DeleteResult
	stats     *domain.IndexStats
	err       error
	lastID    string
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.DocumentSummary, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	m.lastID = id
	return m.chunks, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) (*domain.DeleteResult, error) {
	m.lastID = id
	return m.deleted, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Reset(_ context.Context) error {
	return m.err
}

func chunk(docID string, index int, text string) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(docID, index),
		DocumentID: docID,
		Index:      index,
		Text:       text,
		Metadata: domain.Metadata{
			domain.MetaTitle: domain.StringValue("Title " + docID),
		},
	}
}

func newTestServer(ingest *mockIngestService, query *mockQueryService, docs *mockDocumentService) *Server {
	ports := &Ports{Query: query, Document: docs}
	if ingest != nil {
		ports.Ingest = ingest
	}
	s, err := NewServer(ports)
	if err != nil {
		panic(err)
	}
	return s
}
