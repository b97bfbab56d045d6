package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService chunks, embeds and stores documents in batches.
// A failed batch is skipped; the remaining batches still run.
type IngestService struct {
	pipeline   driven.PostProcessorPipeline
	embedder   driven.EmbeddingService
	index      driven.VectorIndex
	metrics    driven.PipelineMetrics
	batchSize  int
	batchPause time.Duration
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	settings domain.IngestSettings,
) *IngestService {
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = domain.DefaultBatchSize
	}
	return &IngestService{
		pipeline:   pipeline,
		embedder:   embedder,
		index:      index,
		metrics:    driven.NopMetrics{},
		batchSize:  batchSize,
		batchPause: max(settings.BatchPause, 0),
	}
}

// SetMetrics sets the metrics sink.
func (s *IngestService) SetMetrics(m driven.PipelineMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// Ingest adds a document to the index.
// It returns a result even when some batches fail; callers inspect
// ChunksFailed. The error is non-nil only when nothing could be attempted
// or the run was aborted.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	logger.Section("Ingestion")

	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("ingest: %w", domain.ErrEmptyDocument)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("ingest: %w", domain.ErrEmbeddingUnavailable)
	}
	if s.index == nil {
		return nil, fmt.Errorf("ingest: %w", domain.ErrIndexUnavailable)
	}

	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}

	start := time.Now()
	doc := &domain.Document{
		ID:       docID,
		Title:    req.Title,
		Content:  req.Text,
		Metadata: req.Metadata,
	}

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: chunk: %w", docID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest %s: %w", docID, domain.ErrEmptyDocument)
	}
	logger.Debug("Document %s: %d characters, %d chunks", docID, utf8.RuneCountInString(req.Text), len(chunks))

	for i := range chunks {
		chunks[i].Metadata = chunkMetadata(doc, chunks[i])
	}

	result := &domain.IngestResult{
		DocumentID:         docID,
		TotalChunks:        len(chunks),
		TotalCharacters:    utf8.RuneCountInString(req.Text),
		EmbeddingDimension: s.embedder.Dimensions(),
	}

	runErr := s.runBatches(ctx, chunks, result)

	result.ChunksFailed = result.TotalChunks - result.ChunksCreated
	elapsed := time.Since(start)
	s.metrics.ObserveIngest(elapsed, result.ChunksCreated, result.ChunksFailed)

	if runErr != nil {
		logger.Error("ingest %s aborted after %d/%d chunks: %v",
			docID, result.ChunksCreated, result.TotalChunks, runErr)
		return result, fmt.Errorf("ingest %s: %w", docID, runErr)
	}

	logger.Info("Ingested %s: %d/%d chunks in %s", docID, result.ChunksCreated, result.TotalChunks, elapsed)
	return result, nil
}

// Replace re-ingests a document under its existing id. New chunks overwrite
// the old ones in place; chunks past the new end are removed only once every
// batch has been stored, so a failed run leaves the previous version searchable.
func (s *IngestService) Replace(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		return s.Ingest(ctx, req)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("replace %s: %w", docID, domain.ErrEmptyDocument)
	}
	if s.index == nil {
		return nil, fmt.Errorf("replace %s: %w", docID, domain.ErrIndexUnavailable)
	}

	result, err := s.Ingest(ctx, req)
	if err != nil {
		return result, err
	}
	if result.ChunksFailed > 0 {
		logger.Warn("Replace %s: %d/%d chunks failed, previous chunks kept",
			docID, result.ChunksFailed, result.TotalChunks)
		return result, nil
	}

	removed, err := s.removeStale(ctx, docID, result.TotalChunks)
	if err != nil {
		return result, fmt.Errorf("replace %s: remove stale chunks: %w", docID, err)
	}
	logger.Debug("Replaced %s: removed %d stale chunks", docID, removed)
	return result, nil
}

// removeStale deletes chunks of docID whose index is at or past total.
func (s *IngestService) removeStale(ctx context.Context, docID string, total int) (int, error) {
	existing, err := s.index.Scan(ctx, domain.DocumentFilter(docID))
	if err != nil {
		return 0, err
	}

	removed := 0
	seen := make(map[int]bool)
	for _, c := range existing {
		idx, ok := c.Metadata.Int(domain.MetaChunkIndex)
		if !ok || idx < total || seen[idx] {
			continue
		}
		seen[idx] = true
		filter := domain.DocumentFilter(docID)
		filter[domain.MetaChunkIndex] = domain.IntValue(idx)
		n, err := s.index.Delete(ctx, filter)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// runBatches embeds and stores chunks batch by batch, recording each outcome.
// It stops early when the index is unreachable or ctx is done.
func (s *IngestService) runBatches(ctx context.Context, chunks []domain.Chunk, result *domain.IngestResult) error {
	numBatches := (len(chunks) + s.batchSize - 1) / s.batchSize

	for b := 0; b < numBatches; b++ {
		if b > 0 {
			if err := s.pause(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		lo := b * s.batchSize
		hi := min(lo+s.batchSize, len(chunks))
		batch := chunks[lo:hi]

		err := s.storeBatch(ctx, batch)
		s.metrics.ObserveBatch(err == nil, len(batch))

		br := domain.BatchResult{Index: b, Start: lo, Count: len(batch), Success: err == nil, Err: err}
		result.Batches = append(result.Batches, br)

		if err == nil {
			result.ChunksCreated += len(batch)
			if result.EmbeddingDimension == 0 && len(batch[0].Embedding) > 0 {
				result.EmbeddingDimension = len(batch[0].Embedding)
			}
			logger.Debug("Batch %d/%d stored (%d chunks)", b+1, numBatches, len(batch))
			continue
		}

		logger.Error("batch %d/%d (chunks %d-%d) skipped: %v", b+1, numBatches, lo, hi-1, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return err
		}
	}
	return nil
}

// storeBatch embeds one batch and upserts it.
func (s *IngestService) storeBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	done := logger.Timed("embed batch", "document", batch[0].DocumentID, "chunks", len(batch))
	stageStart := time.Now()
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	s.metrics.ObserveStage("embed", time.Since(stageStart))
	done()
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingFailure, len(vectors), len(batch))
	}

	for i := range batch {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("%w: empty vector for chunk %s", domain.ErrEmbeddingFailure, batch[i].ID)
		}
		batch[i].Embedding = vectors[i]
	}

	stageStart = time.Now()
	err = s.index.Upsert(ctx, batch)
	s.metrics.ObserveStage("upsert", time.Since(stageStart))
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

func (s *IngestService) pause(ctx context.Context) error {
	if s.batchPause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.batchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// chunkMetadata merges document metadata with the reserved chunk keys.
// Reserved keys always win over caller-supplied ones.
func chunkMetadata(doc *domain.Document, c domain.Chunk) domain.Metadata {
	meta := doc.Metadata.Clone()
	meta[domain.MetaDocumentID] = domain.StringValue(doc.ID)
	meta[domain.MetaChunkIndex] = domain.IntValue(c.Index)
	meta[domain.MetaTotalChunks] = domain.IntValue(c.TotalChunks)
	if doc.Title != "" {
		meta[domain.MetaTitle] = domain.StringValue(doc.Title)
	}
	return meta
}
