// Package postprocessors turns document text into indexable chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline chains multiple PostProcessors and runs them in order.
// The final chunk list must satisfy the contiguity invariant: indices
// 0..n-1 in order, ids from domain.ChunkID and a shared TotalChunks.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process runs the document through all processors in order.
// The first processor receives nil chunks and should create them.
// Subsequent processors receive and may modify the chunks.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk

	for _, processor := range p.processors {
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	if err := validateContiguous(doc.ID, chunks); err != nil {
		return nil, err
	}

	return chunks, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

func validateContiguous(docID string, chunks []domain.Chunk) error {
	for i, c := range chunks {
		if c.Index != i || c.TotalChunks != len(chunks) || c.ID != domain.ChunkID(docID, i) {
			return fmt.Errorf("%w: chunk %d of %d breaks contiguity (id %q, index %d, total %d)",
				domain.ErrInvalidInput, i, len(chunks), c.ID, c.Index, c.TotalChunks)
		}
	}
	return nil
}
