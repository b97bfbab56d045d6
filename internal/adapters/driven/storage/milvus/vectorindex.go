package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*Store)(nil)

// scanPage bounds a single keyset query.
const scanPage = 1000

// postFilterFactor widens a search whose filter is partly applied locally.
const postFilterFactor = 10

var outputFields = []string{fieldID, fieldText, fieldMetadata}

// strong gives every read a view of all completed writes.
func strong() client.SearchQueryOptionFunc {
	return client.WithSearchQueryConsistencyLevel(entity.ClStrong)
}

// Upsert writes a batch of chunks in one call, overwriting existing ids.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dims := len(chunks[0].Embedding)
	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	docIDs := make([]string, len(chunks))
	indices := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	metas := make([]string, len(chunks))

	for i, c := range chunks {
		if c.ID == "" || len(c.ID) > maxIDLength {
			return fmt.Errorf("milvus: upsert: %w: bad chunk id %q", domain.ErrInvalidInput, c.ID)
		}
		if len(c.Embedding) == 0 || len(c.Embedding) != dims {
			return fmt.Errorf("milvus: upsert %s: %w: embedding has %d dimensions, batch has %d",
				c.ID, domain.ErrInvalidInput, len(c.Embedding), dims)
		}
		metadataJSON, err := json.Marshal(c.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("milvus: upsert %s: marshalling metadata: %w", c.ID, err)
		}
		if len(c.Text) > maxTextLength || len(metadataJSON) > maxTextLength {
			return fmt.Errorf("milvus: upsert %s: %w: text or metadata exceeds %d bytes",
				c.ID, domain.ErrInvalidInput, maxTextLength)
		}
		restored := domain.RestoreChunk(c.ID, c.Text, c.Metadata)

		ids[i] = c.ID
		vectors[i] = c.Embedding
		docIDs[i] = restored.DocumentID
		indices[i] = int64(restored.Index)
		texts[i] = c.Text
		metas[i] = string(metadataJSON)
	}

	if _, err := s.ensureCollection(ctx, dims); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "milvus.Upsert", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("count", len(chunks)),
	))
	defer span.End()

	_, err := s.milvus.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dims, vectors),
		entity.NewColumnVarChar(fieldDocumentID, docIDs),
		entity.NewColumnInt64(fieldChunkIndex, indices),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldMetadata, metas),
	)
	if err != nil {
		return spanErr(span, "upsert", err)
	}

	s.mu.Lock()
	if s.dims == 0 {
		s.dims = dims
	}
	s.mu.Unlock()
	return nil
}

// Get returns the chunks that exist among ids, without embeddings.
func (s *Store) Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	found := make(map[string]domain.Chunk, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	if ok, err := s.ensureCollection(ctx, 0); err != nil || !ok {
		return found, err
	}

	ctx, span := tracer.Start(ctx, "milvus.Get", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("ids", len(ids)),
	))
	defer span.End()

	rs, err := s.milvus.Query(ctx, s.collection, nil, idsExpr(ids), outputFields, strong())
	if err != nil {
		return nil, spanErr(span, "get", err)
	}
	chunks, err := decodeRows(rs)
	if err != nil {
		return nil, spanErr(span, "get", err)
	}
	for _, c := range chunks {
		found[c.ID] = c
	}
	return found, nil
}

// Search returns up to n chunks nearest to query by cosine distance.
func (s *Store) Search(
	ctx context.Context, query []float32, n int, filter domain.Filter,
) ([]domain.Candidate, error) {
	if n <= 0 {
		return []domain.Candidate{}, nil
	}
	if ok, err := s.ensureCollection(ctx, 0); err != nil || !ok {
		return []domain.Candidate{}, err
	}
	if dims := s.dimensions(); dims > 0 && dims != len(query) {
		return nil, fmt.Errorf("milvus: search: %w: query has %d dimensions, collection has %d",
			domain.ErrInvalidInput, len(query), dims)
	}

	expr, rest := splitFilter(filter)
	topK := n
	if rest != nil {
		topK = n * postFilterFactor
	}
	topK = min(topK, maxQueryWindow)

	ctx, span := tracer.Start(ctx, "milvus.Search", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("top_k", topK),
		attribute.Bool("post_filter", rest != nil),
	))
	defer span.End()

	sp, err := entity.NewIndexHNSWSearchParam(max(minSearchEf, topK))
	if err != nil {
		return nil, spanErr(span, "search params", err)
	}

	results, err := s.milvus.Search(ctx, s.collection, nil, expr, outputFields,
		[]entity.Vector{entity.FloatVector(query)}, fieldVector, entity.COSINE, topK, sp, strong())
	if err != nil {
		return nil, spanErr(span, "search", err)
	}

	candidates := []domain.Candidate{}
	for _, result := range results {
		if result.Err != nil {
			return nil, spanErr(span, "search", result.Err)
		}
		chunks, err := decodeRows(result.Fields)
		if err != nil {
			return nil, spanErr(span, "search", err)
		}
		for i, c := range chunks {
			if i >= len(result.Scores) {
				break
			}
			if !c.Metadata.Matches(rest) {
				continue
			}
			candidates = append(candidates, domain.Candidate{
				Chunk:    c,
				Distance: 1 - float64(result.Scores[i]),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	span.SetAttributes(attribute.Int("result_count", len(candidates)))
	return candidates, nil
}

// Delete removes every chunk matching filter.
func (s *Store) Delete(ctx context.Context, filter domain.Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("milvus: delete: %w: empty filter", domain.ErrInvalidInput)
	}
	matches, err := s.Scan(ctx, filter)
	if err != nil || len(matches) == 0 {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "milvus.Delete", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("count", len(matches)),
	))
	defer span.End()

	for start := 0; start < len(matches); start += scanPage {
		end := min(start+scanPage, len(matches))
		ids := make([]string, 0, end-start)
		for _, c := range matches[start:end] {
			ids = append(ids, c.ID)
		}
		if err := s.milvus.Delete(ctx, s.collection, "", idsExpr(ids)); err != nil {
			return start, spanErr(span, "delete", err)
		}
	}
	return len(matches), nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	if ok, err := s.ensureCollection(ctx, 0); err != nil || !ok {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "milvus.Count", trace.WithAttributes(attribute.String("collection", s.collection)))
	defer span.End()

	rs, err := s.milvus.Query(ctx, s.collection, nil, "", []string{"count(*)"}, strong())
	if err != nil {
		return 0, spanErr(span, "count", err)
	}
	col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, spanErr(span, "count", fmt.Errorf("missing count column"))
	}
	return int(col.Data()[0]), nil
}

// Scan returns chunks matching filter ordered by document and position.
// Rows are read in primary key pages so large collections stay within the
// server's query window.
func (s *Store) Scan(ctx context.Context, filter domain.Filter) ([]domain.Chunk, error) {
	chunks := []domain.Chunk{}
	if ok, err := s.ensureCollection(ctx, 0); err != nil || !ok {
		return chunks, err
	}

	expr, rest := splitFilter(filter)

	ctx, span := tracer.Start(ctx, "milvus.Scan", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Bool("post_filter", rest != nil),
	))
	defer span.End()

	pageExpr := allRows
	if expr != "" {
		pageExpr = expr
	}
	for {
		rs, err := s.milvus.Query(ctx, s.collection, nil, pageExpr, outputFields,
			strong(), client.WithLimit(scanPage))
		if err != nil {
			return nil, spanErr(span, "scan", err)
		}
		page, err := decodeRows(rs)
		if err != nil {
			return nil, spanErr(span, "scan", err)
		}

		last := ""
		for _, c := range page {
			if c.ID > last {
				last = c.ID
			}
			if c.Metadata.Matches(rest) {
				chunks = append(chunks, c)
			}
		}
		if len(page) < scanPage {
			break
		}
		pageExpr = afterExpr(last, expr)
	}

	sort.Slice(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ID < b.ID
	})
	span.SetAttributes(attribute.Int("result_count", len(chunks)))
	return chunks, nil
}

// Reset drops the collection. It is recreated on the next upsert.
func (s *Store) Reset(ctx context.Context) error {
	ok, err := s.ensureCollection(ctx, 0)
	if err != nil || !ok {
		return err
	}

	ctx, span := tracer.Start(ctx, "milvus.Reset", trace.WithAttributes(attribute.String("collection", s.collection)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.milvus.DropCollection(ctx, s.collection); err != nil {
		return spanErr(span, "reset", err)
	}
	s.ready = false
	s.dims = 0
	return nil
}

func (s *Store) dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// decodeRows turns id, text and metadata columns into chunks.
func decodeRows(rs client.ResultSet) ([]domain.Chunk, error) {
	idCol, ok := rs.GetColumn(fieldID).(*entity.ColumnVarChar)
	if !ok {
		return nil, nil
	}
	textCol, ok := rs.GetColumn(fieldText).(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("missing %s column", fieldText)
	}
	metaCol, ok := rs.GetColumn(fieldMetadata).(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("missing %s column", fieldMetadata)
	}

	ids, texts, metas := idCol.Data(), textCol.Data(), metaCol.Data()
	chunks := make([]domain.Chunk, 0, len(ids))
	for i, id := range ids {
		meta := domain.Metadata{}
		if metas[i] != "" {
			if err := json.Unmarshal([]byte(metas[i]), &meta); err != nil {
				return nil, fmt.Errorf("chunk %s: decoding metadata: %w", id, err)
			}
		}
		chunks = append(chunks, domain.RestoreChunk(id, texts[i], meta))
	}
	return chunks, nil
}
