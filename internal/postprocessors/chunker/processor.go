// Package chunker provides a boundary-aware overlapping text chunker.
package chunker

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// boundaryTiers lists separators from most to least preferred.
// A cut lands just after the separator.
var boundaryTiers = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" ", "\t"},
}

// Processor splits document content into overlapping chunks.
// Chunk i+1 starts exactly overlap characters before chunk i ends, so
// dropping the first overlap characters of every later chunk and
// concatenating reproduces the input.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	texts := p.Split(doc.Content)
	if len(texts) == 0 {
		// Empty content produces no chunks
		return nil, nil
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:          domain.ChunkID(doc.ID, i),
			DocumentID:  doc.ID,
			Index:       i,
			TotalChunks: len(texts),
			Text:        text,
		}
	}
	return chunks, nil
}

// Split returns the ordered chunk texts for text.
// Text no longer than the chunk size yields one chunk; empty text yields none.
func (p *Processor) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= p.chunkSize {
		return []string{text}
	}

	fences := fencedBlocks(runes)

	// Estimate number of chunks
	estimated := (len(runes)-p.overlap)/(p.chunkSize-p.overlap) + 1
	chunks := make([]string, 0, estimated)

	start := 0
	for {
		end := p.cutPoint(runes, start, fences)
		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
		start = end - p.overlap
	}

	return chunks
}

// cutPoint picks the end of the chunk starting at start.
// The cut must leave more than overlap characters so the next chunk advances.
func (p *Processor) cutPoint(runes []rune, start int, fences []span) int {
	limit := start + p.chunkSize
	if limit >= len(runes) {
		return len(runes)
	}

	minEnd := start + max(p.overlap+1, p.chunkSize/2)

	for _, tier := range boundaryTiers {
		best := -1
		for _, sep := range tier {
			if cut := lastBoundary(runes, []rune(sep), minEnd, limit, fences); cut > best {
				best = cut
			}
		}
		if best > 0 {
			return best
		}
	}

	// No usable boundary: hard character cut.
	return limit
}

// lastBoundary returns the largest cut in [lo, hi] that directly follows sep
// and is not inside a fenced block, or -1.
func lastBoundary(runes, sep []rune, lo, hi int, fences []span) int {
	for cut := hi; cut >= lo; cut-- {
		if cut < len(sep) || !hasSuffixAt(runes, sep, cut) {
			continue
		}
		if insideAny(fences, cut) {
			continue
		}
		return cut
	}
	return -1
}

func hasSuffixAt(runes, sep []rune, end int) bool {
	offset := end - len(sep)
	for i, r := range sep {
		if runes[offset+i] != r {
			return false
		}
	}
	return true
}
