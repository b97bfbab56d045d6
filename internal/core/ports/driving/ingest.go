package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// IngestService adds documents to the knowledge base.
type IngestService interface {
	// Ingest chunks, embeds and indexes a document in sequential batches.
	// A failed batch is skipped and reported in the result; the call only
	// errors on empty input, an unreachable index or cancellation.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// Replace removes any existing chunks of req.DocumentID, then ingests.
	Replace(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
}
