package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Search is an exact cosine scan.
type VectorIndex struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		chunks: make(map[string]domain.Chunk),
	}
}

// Upsert stores chunks, replacing any with the same ID.
func (v *VectorIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("upsert: %w: chunk without id", domain.ErrInvalidInput)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("upsert %s: %w: missing embedding", c.ID, domain.ErrInvalidInput)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range chunks {
		stored := domain.RestoreChunk(c.ID, c.Text, c.Metadata.Clone())
		stored.Embedding = append([]float32(nil), c.Embedding...)
		v.chunks[c.ID] = stored
	}
	return nil
}

// Get returns the chunks that exist among ids.
func (v *VectorIndex) Get(_ context.Context, ids []string) (map[string]domain.Chunk, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	found := make(map[string]domain.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := v.chunks[id]; ok {
			found[id] = withoutEmbedding(c)
		}
	}
	return found, nil
}

// Search returns up to n nearest chunks matching filter.
func (v *VectorIndex) Search(
	_ context.Context, query []float32, n int, filter domain.Filter,
) ([]domain.Candidate, error) {
	if n <= 0 {
		return []domain.Candidate{}, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	candidates := make([]domain.Candidate, 0, len(v.chunks))
	skipped, storedDims := 0, 0
	for _, c := range v.chunks {
		if !c.Metadata.Matches(filter) {
			continue
		}
		if len(c.Embedding) != len(query) {
			skipped++
			storedDims = len(c.Embedding)
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Chunk:    withoutEmbedding(c),
			Distance: domain.CosineDistance(query, c.Embedding),
		})
	}
	if skipped > 0 {
		if len(candidates) == 0 {
			return nil, fmt.Errorf("search: %w: query has %d dimensions, index has %d",
				domain.ErrInvalidInput, len(query), storedDims)
		}
		logger.Warn("search: skipped %d chunks with %d dimensions (query has %d)",
			skipped, storedDims, len(query))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// Delete removes every chunk matching filter and returns how many were removed.
func (v *VectorIndex) Delete(_ context.Context, filter domain.Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete: %w: empty filter", domain.ErrInvalidInput)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	deleted := 0
	for id, c := range v.chunks {
		if c.Metadata.Matches(filter) {
			delete(v.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored chunks.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.chunks), nil
}

// Scan returns every chunk matching filter ordered by document and index.
func (v *VectorIndex) Scan(_ context.Context, filter domain.Filter) ([]domain.Chunk, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range v.chunks {
		if c.Metadata.Matches(filter) {
			out = append(out, withoutEmbedding(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// Reset removes all chunks.
func (v *VectorIndex) Reset(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chunks = make(map[string]domain.Chunk)
	return nil
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}

func withoutEmbedding(c domain.Chunk) domain.Chunk {
	c.Embedding = nil
	c.Metadata = c.Metadata.Clone()
	return c
}
