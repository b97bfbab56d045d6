package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages indexed documents.
// Documents have no record of their own; they are the set of chunks
// sharing a document id.
type DocumentService struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	vector   domain.VectorSettings
}

// NewDocumentService creates a new document service.
// The embedder parameter is optional (can be nil); it only feeds Stats.
func NewDocumentService(
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	vector domain.VectorSettings,
) *DocumentService {
	return &DocumentService{
		index:    index,
		embedder: embedder,
		vector:   vector,
	}
}

// List returns every indexed document ordered by id.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	if s.index == nil {
		return nil, fmt.Errorf("list documents: %w", domain.ErrIndexUnavailable)
	}

	chunks, err := s.index.Scan(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	byID := make(map[string]*domain.DocumentSummary)
	for _, c := range chunks {
		if c.DocumentID == "" {
			continue
		}
		summary, ok := byID[c.DocumentID]
		if !ok {
			summary = &domain.DocumentSummary{ID: c.DocumentID}
			byID[c.DocumentID] = summary
		}
		summary.IndexedChunks++
		summary.TotalChunks = max(summary.TotalChunks, c.TotalChunks)
		if summary.Title == "" {
			summary.Title = c.Title()
		}
	}

	summaries := make([]domain.DocumentSummary, 0, len(byID))
	for _, summary := range byID {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// Chunks returns the stored chunks of a document in order.
func (s *DocumentService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("document chunks: %w: empty id", domain.ErrInvalidInput)
	}
	if s.index == nil {
		return nil, fmt.Errorf("document chunks: %w", domain.ErrIndexUnavailable)
	}

	chunks, err := s.index.Scan(ctx, domain.DocumentFilter(documentID))
	if err != nil {
		return nil, fmt.Errorf("document chunks %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return chunks, nil
}

// Delete removes every chunk of a document.
// Deleting an unknown document is not an error; Found reports it.
func (s *DocumentService) Delete(ctx context.Context, documentID string) (*domain.DeleteResult, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("delete document: %w: empty id", domain.ErrInvalidInput)
	}
	if s.index == nil {
		return nil, fmt.Errorf("delete document: %w", domain.ErrIndexUnavailable)
	}

	n, err := s.index.Delete(ctx, domain.DocumentFilter(documentID))
	if err != nil {
		return nil, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	logger.Debug("Deleted %d chunks of %s", n, documentID)

	return &domain.DeleteResult{
		DocumentID:    documentID,
		ChunksDeleted: n,
		Found:         n > 0,
	}, nil
}

// Stats describes the index and the embedding model feeding it.
func (s *DocumentService) Stats(ctx context.Context) (*domain.IndexStats, error) {
	if s.index == nil {
		return nil, fmt.Errorf("stats: %w", domain.ErrIndexUnavailable)
	}

	n, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	stats := &domain.IndexStats{
		Backend:     s.vector.Backend.String(),
		Collection:  s.vector.Collection,
		TotalChunks: n,
	}
	if s.embedder != nil {
		stats.EmbeddingModel = s.embedder.ModelName()
		stats.EmbeddingDimension = s.embedder.Dimensions()
	}
	return stats, nil
}

// Reset removes every chunk from the index.
func (s *DocumentService) Reset(ctx context.Context) error {
	if s.index == nil {
		return fmt.Errorf("reset: %w", domain.ErrIndexUnavailable)
	}
	if err := s.index.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	logger.Info("Index reset")
	return nil
}
