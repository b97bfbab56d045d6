package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// VectorIndex is the persistent store of chunk vectors, text and metadata.
// Implementations must make a completed Upsert visible to every later Get and
// Search, and must tolerate concurrent upserts on disjoint chunk ids.
// Infrastructure failures are wrapped with domain.ErrIndexUnavailable.
type VectorIndex interface {
	// Upsert writes a batch of chunks, overwriting existing ids.
	// The batch is atomic from the caller's point of view.
	Upsert(ctx context.Context, chunks []domain.Chunk) error

	// Get returns the chunks for the given ids. Missing ids are omitted.
	Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error)

	// Search returns up to n chunks nearest to query, by ascending cosine distance.
	// A non-empty filter restricts results to chunks whose metadata matches every pair.
	Search(ctx context.Context, query []float32, n int, filter domain.Filter) ([]domain.Candidate, error)

	// Delete removes every chunk matching filter and returns how many were removed.
	// An empty filter is rejected with domain.ErrInvalidInput; use Reset instead.
	Delete(ctx context.Context, filter domain.Filter) (int, error)

	// Count returns the total number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Scan returns chunk text and metadata (without embeddings) matching filter.
	Scan(ctx context.Context, filter domain.Filter) ([]domain.Chunk, error)

	// Reset removes every chunk.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}
