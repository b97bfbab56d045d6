package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Section headers in expanded text.
const (
	headerPrevious = "[Previous Context]"
	headerMain     = "[Main Match]"
	headerNext     = "[Next Context]"
)

const defaultExpandConcurrency = 4

// ContextExpander merges each result with its neighbouring chunks.
type ContextExpander struct {
	index       driven.VectorIndex
	metrics     driven.PipelineMetrics
	concurrency int
}

// NewContextExpander creates an expander over index.
func NewContextExpander(index driven.VectorIndex) *ContextExpander {
	return &ContextExpander{
		index:       index,
		metrics:     driven.NopMetrics{},
		concurrency: defaultExpandConcurrency,
	}
}

// SetMetrics sets the metrics sink.
func (e *ContextExpander) SetMetrics(m driven.PipelineMetrics) {
	if m != nil {
		e.metrics = m
	}
}

// Expand returns one result per candidate, in the same order.
// Lookup failures leave the affected result unexpanded.
func (e *ContextExpander) Expand(ctx context.Context, candidates []domain.Candidate) []domain.ExpandedResult {
	start := time.Now()
	defer func() { e.metrics.ObserveStage("expand", time.Since(start)) }()

	results := make([]domain.ExpandedResult, len(candidates))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = e.expandOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *ContextExpander) expandOne(ctx context.Context, c domain.Candidate) domain.ExpandedResult {
	res := Unexpanded(c)

	docID, ok := c.Chunk.Metadata.String(domain.MetaDocumentID)
	if !ok || docID == "" {
		return res
	}
	idx, ok := c.Chunk.Metadata.Int(domain.MetaChunkIndex)
	if !ok {
		return res
	}
	total, ok := c.Chunk.Metadata.Int(domain.MetaTotalChunks)
	if !ok || idx < 0 || idx >= total {
		return res
	}

	var prevID, nextID string
	var ids []string
	if idx > 0 {
		prevID = domain.ChunkID(docID, idx-1)
		ids = append(ids, prevID)
	}
	if idx < total-1 {
		nextID = domain.ChunkID(docID, idx+1)
		ids = append(ids, nextID)
	}
	if len(ids) == 0 {
		return res
	}

	if e.index == nil {
		return res
	}
	neighbours, err := e.index.Get(ctx, ids)
	if err != nil {
		logger.Debug("Neighbour lookup for %s failed: %v", c.Chunk.ID, err)
		return res
	}

	sections := make([]string, 0, 3)
	if prev, ok := neighbours[prevID]; ok && prevID != "" && prev.Text != "" {
		sections = append(sections, headerPrevious+"\n"+prev.Text)
		res.Expansion.HasPrevious = true
		res.Expansion.PreviousChunkID = prevID
	}
	sections = append(sections, headerMain+"\n"+res.OriginalText)
	if next, ok := neighbours[nextID]; ok && nextID != "" && next.Text != "" {
		sections = append(sections, headerNext+"\n"+next.Text)
		res.Expansion.HasNext = true
		res.Expansion.NextChunkID = nextID
	}

	if !res.Expansion.HasPrevious && !res.Expansion.HasNext {
		return res
	}

	res.Chunk.Text = strings.Join(sections, "\n\n")
	res.IsExpanded = true
	return res
}

// Unexpanded wraps a candidate as a result without neighbours.
func Unexpanded(c domain.Candidate) domain.ExpandedResult {
	return domain.ExpandedResult{Candidate: c, OriginalText: c.Chunk.Text}
}
