package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Text       string         `json:"text" jsonschema:"the plain text or markdown to index"`
	DocumentID string         `json:"document_id,omitempty" jsonschema:"stable id; an existing document with this id is replaced"`
	Title      string         `json:"title,omitempty" jsonschema:"human-readable title"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"string, number or boolean values stored with every chunk"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	DocumentID         string `json:"document_id"`
	ChunksCreated      int    `json:"chunks_created"`
	ChunksFailed       int    `json:"chunks_failed"`
	TotalChunks        int    `json:"total_chunks"`
	TotalCharacters    int    `json:"total_characters"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// QueryInput is the input schema for the query and ask tools.
type QueryInput struct {
	Question   string `json:"question" jsonschema:"the question to answer from the indexed notes"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of results (default 5, max 50)"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"restrict retrieval to one document"`
	NoExpand   bool   `json:"no_expand,omitempty" jsonschema:"do not merge neighbouring chunks into results"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Results []ResultOutput `json:"results"`
	Count   int            `json:"count"`
}

// ResultOutput represents a single retrieved chunk.
type ResultOutput struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title,omitempty"`
	Text           string  `json:"text"`
	Distance       float64 `json:"distance"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
	Reranked       bool    `json:"reranked"`
	Expanded       bool    `json:"expanded"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer     string         `json:"answer"`
	HasContext bool           `json:"has_context"`
	NumChunks  int            `json:"num_chunks"`
	Sources    []SourceOutput `json:"sources"`
}

// SourceOutput identifies a context block used for an answer.
type SourceOutput struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
}

// ListDocumentsInput is the (empty) input schema for list_documents.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output schema for list_documents.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput summarises an indexed document.
type DocumentOutput struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	TotalChunks   int    `json:"total_chunks"`
	IndexedChunks int    `json:"indexed_chunks"`
}

// DeleteInput is the input schema for delete_document.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document to remove"`
}

// DeleteOutput is the output schema for delete_document.
type DeleteOutput struct {
	DocumentID    string `json:"document_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
	Found         bool   `json:"found"`
}

// StatsInput is the (empty) input schema for stats.
type StatsInput struct{}

// StatsOutput is the output schema for stats.
type StatsOutput struct {
	Backend            string `json:"backend"`
	Collection         string `json:"collection"`
	TotalChunks        int    `json:"total_chunks"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	if s.ports.writable() {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Chunk, embed and index a document",
		}, s.handleIngest)
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "delete_document",
			Description: "Remove a document and all its chunks from the index",
		}, s.handleDeleteDocument)
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Retrieve the most relevant note passages for a question",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed notes, citing sources",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List indexed documents",
	}, s.handleListDocuments)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stats",
		Description: "Describe the vector index",
	}, s.handleStats)
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if !s.ports.writable() {
		return nil, IngestOutput{}, toolError("ingest", ErrReadOnly)
	}

	meta, err := toMetadata(input.Metadata)
	if err != nil {
		return nil, IngestOutput{}, toolError("ingest", err)
	}
	req := domain.IngestRequest{
		DocumentID: input.DocumentID,
		Title:      input.Title,
		Text:       input.Text,
		Metadata:   meta,
	}

	result, err := s.ports.Ingest.Replace(ctx, req)
	if err != nil {
		return nil, IngestOutput{}, toolError("ingest", err)
	}

	return nil, IngestOutput{
		DocumentID:         result.DocumentID,
		ChunksCreated:      result.ChunksCreated,
		ChunksFailed:       result.ChunksFailed,
		TotalChunks:        result.TotalChunks,
		TotalCharacters:    result.TotalCharacters,
		EmbeddingDimension: result.EmbeddingDimension,
	}, nil
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	results, err := s.ports.Query.Query(ctx, input.request())
	if err != nil {
		return nil, QueryOutput{}, toolError("query", err)
	}

	output := QueryOutput{
		Results: make([]ResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		r := &results[i]
		output.Results[i] = ResultOutput{
			ChunkID:        r.Chunk.ID,
			DocumentID:     r.Chunk.DocumentID,
			Title:          r.Chunk.Title(),
			Text:           r.Chunk.Text,
			Distance:       r.Distance,
			RelevanceScore: r.RelevanceScore,
			Reranked:       r.Reranked,
			Expanded:       r.IsExpanded,
		}
	}
	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Query.Ask(ctx, input.request())
	if err != nil {
		return nil, AskOutput{}, toolError("ask", err)
	}

	output := AskOutput{
		Answer:     answer.Text,
		HasContext: answer.HasContext,
		NumChunks:  answer.NumChunks,
		Sources:    make([]SourceOutput, len(answer.Sources)),
	}
	for i := range answer.Sources {
		c := answer.Sources[i].Chunk
		output.Sources[i] = SourceOutput{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Title:      c.Title(),
		}
	}
	return nil, output, nil
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, toolError("list_documents", err)
	}

	output := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i, d := range docs {
		output.Documents[i] = DocumentOutput{
			ID:            d.ID,
			Title:         d.Title,
			TotalChunks:   d.TotalChunks,
			IndexedChunks: d.IndexedChunks,
		}
	}
	return nil, output, nil
}

// handleDeleteDocument handles the delete_document tool invocation.
func (s *Server) handleDeleteDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	if !s.ports.writable() {
		return nil, DeleteOutput{}, toolError("delete_document", ErrReadOnly)
	}
	result, err := s.ports.Document.Delete(ctx, input.DocumentID)
	if err != nil {
		return nil, DeleteOutput{}, toolError("delete_document", err)
	}
	return nil, DeleteOutput{
		DocumentID:    result.DocumentID,
		ChunksDeleted: result.ChunksDeleted,
		Found:         result.Found,
	}, nil
}

// handleStats handles the stats tool invocation.
func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Document.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, toolError("stats", err)
	}
	return nil, StatsOutput{
		Backend:            stats.Backend,
		Collection:         stats.Collection,
		TotalChunks:        stats.TotalChunks,
		EmbeddingModel:     stats.EmbeddingModel,
		EmbeddingDimension: stats.EmbeddingDimension,
	}, nil
}

func (in QueryInput) request() domain.QueryRequest {
	return domain.QueryRequest{
		Question:   in.Question,
		TopK:       in.TopK,
		DocumentID: in.DocumentID,
		NoExpand:   in.NoExpand,
	}
}

// toMetadata converts JSON metadata into typed scalar values.
func toMetadata(in map[string]any) (domain.Metadata, error) {
	if len(in) == 0 {
		return nil, nil
	}
	meta := make(domain.Metadata, len(in))
	for k, v := range in {
		value, err := domain.ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		meta[k] = value
	}
	return meta, nil
}
