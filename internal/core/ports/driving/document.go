package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// DocumentService manages indexed documents.
type DocumentService interface {
	// List returns every indexed document, sorted by id.
	List(ctx context.Context) ([]domain.DocumentSummary, error)

	// Chunks returns the stored chunks of a document ordered by index.
	// An unknown document returns ErrNotFound.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Delete removes all chunks of a document.
	Delete(ctx context.Context, documentID string) (*domain.DeleteResult, error)

	// Stats describes the vector index.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// Reset removes every chunk from the index.
	Reset(ctx context.Context) error
}
