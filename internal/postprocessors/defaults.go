package postprocessors

import (
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/postprocessors/chunker"
)

// NewDefaultPipeline builds the ingestion pipeline from chunking settings.
// Zero or negative values fall back to the chunker defaults.
func NewDefaultPipeline(cfg domain.ChunkingSettings) *Pipeline {
	var opts []chunker.Option
	if cfg.Size > 0 {
		opts = append(opts, chunker.WithChunkSize(cfg.Size))
	}
	if cfg.Overlap >= 0 {
		opts = append(opts, chunker.WithOverlap(cfg.Overlap))
	}
	return NewPipeline(chunker.New(opts...))
}
