package milvus

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func setupTestStore(t *testing.T, dims int) (*Store, *fakeMilvus) {
	t.Helper()
	fake := newFakeMilvus()
	s, err := newStore(context.Background(), fake, Config{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s, fake
}

func testChunk(docID string, index, total int, vec ...float32) domain.Chunk {
	return domain.Chunk{
		ID:          domain.ChunkID(docID, index),
		DocumentID:  docID,
		Index:       index,
		TotalChunks: total,
		Text:        fmt.Sprintf("%s text %d", docID, index),
		Embedding:   vec,
		Metadata: domain.Metadata{
			domain.MetaDocumentID:  domain.StringValue(docID),
			domain.MetaChunkIndex:  domain.IntValue(index),
			domain.MetaTotalChunks: domain.IntValue(total),
		},
	}
}

func TestNewStore_CreatesCollectionWhenDimensionsKnown(t *testing.T) {
	s, fake := setupTestStore(t, 3)

	assert.Equal(t, domain.DefaultCollectionName, s.Collection())
	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 3, fake.dims)
	assert.True(t, fake.loaded)
}

func TestNewStore_DefersCreationWithoutDimensions(t *testing.T) {
	s, fake := setupTestStore(t, 0)
	ctx := context.Background()

	assert.Zero(t, fake.creates)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	results, err := s.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, s.Upsert(ctx, []domain.Chunk{testChunk("doc", 0, 1, 1, 0)}))
	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 2, fake.dims)
}

func TestNewStore_ServerDown(t *testing.T) {
	fake := newFakeMilvus()
	fake.failWith = errors.New("connection refused")

	_, err := newStore(context.Background(), fake, Config{Dimensions: 3})

	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestStore_UpsertGetAndSearch(t *testing.T) {
	s, _ := setupTestStore(t, 3)
	ctx := context.Background()
	titled := testChunk("a", 0, 2, 1, 0, 0)
	titled.Metadata[domain.MetaTitle] = domain.StringValue("Alpha")
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{
		titled,
		testChunk("a", 1, 2, 0.9, 0.1, 0),
		testChunk("b", 0, 1, 0, 1, 0),
	}))

	got, err := s.Get(ctx, []string{"a_chunk_0", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got["a_chunk_0"].Title())
	assert.Equal(t, 2, got["a_chunk_0"].TotalChunks)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a_chunk_0", results[0].Chunk.ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "a_chunk_1", results[1].Chunk.ID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestStore_Upsert_Validation(t *testing.T) {
	s, _ := setupTestStore(t, 2)
	ctx := context.Background()

	tests := []struct {
		name   string
		chunks []domain.Chunk
	}{
		{"missing id", []domain.Chunk{{Embedding: []float32{1, 0}}}},
		{"missing embedding", []domain.Chunk{testChunk("d", 0, 1)}},
		{"mixed dimensions", []domain.Chunk{testChunk("d", 0, 2, 1, 0), testChunk("d", 1, 2, 1, 0, 0)}},
		{"collection dimensions", []domain.Chunk{testChunk("d", 0, 1, 1, 0, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Upsert(ctx, tt.chunks)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestStore_Search_Filters(t *testing.T) {
	s, fake := setupTestStore(t, 2)
	ctx := context.Background()
	draft := testChunk("notes", 0, 2, 1, 0)
	draft.Metadata["draft"] = domain.BoolValue(true)
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{
		draft,
		testChunk("notes", 1, 2, 1, 0.1),
		testChunk("other", 0, 1, 1, 0),
	}))

	scoped, err := s.Search(ctx, []float32{1, 0}, 10, domain.DocumentFilter("notes"))
	require.NoError(t, err)
	assert.Len(t, scoped, 2)
	assert.Contains(t, fake.exprs, `document_id == "notes"`)

	drafts, err := s.Search(ctx, []float32{1, 0}, 10, domain.Filter{"draft": domain.BoolValue(true)})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "notes_chunk_0", drafts[0].Chunk.ID)

	_, err = s.Search(ctx, []float32{1, 0, 0}, 10, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_DeleteScanCountReset(t *testing.T) {
	s, fake := setupTestStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{
		testChunk("b", 1, 2, 1, 0),
		testChunk("a", 0, 1, 1, 0),
		testChunk("b", 0, 2, 0, 1),
	}))

	chunks, err := s.Scan(ctx, nil)
	require.NoError(t, err)
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a_chunk_0", "b_chunk_0", "b_chunk_1"}, ids)

	_, err = s.Delete(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	n, err := s.Delete(ctx, domain.DocumentFilter("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 1, fake.drops)
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The collection comes back on the next write.
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{testChunk("c", 0, 1, 1, 0, 0)}))
	assert.Equal(t, 3, fake.dims)
}

func TestStore_ServerErrorsAreUnavailable(t *testing.T) {
	s, fake := setupTestStore(t, 2)
	ctx := context.Background()
	fake.failWith = errors.New("rpc error: code = Unavailable")

	_, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	err = s.Upsert(ctx, []domain.Chunk{testChunk("d", 0, 1, 1, 0)})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestExpressions(t *testing.T) {
	assert.Equal(t, `"a\"b\\c"`, quote(`a"b\c`))
	assert.Equal(t, `id in ["x", "y"]`, idsExpr([]string{"x", "y"}))
	assert.Equal(t, `id > "k"`, afterExpr("k", ""))
	assert.Equal(t, `document_id == "d" && id > "k"`, afterExpr("k", `document_id == "d"`))

	expr, rest := splitFilter(domain.Filter{
		domain.MetaDocumentID: domain.StringValue("d"),
		"tag":                 domain.StringValue("x"),
	})
	assert.Equal(t, `document_id == "d"`, expr)
	assert.Equal(t, domain.Filter{"tag": domain.StringValue("x")}, rest)

	expr, rest = splitFilter(domain.Filter{domain.MetaDocumentID: domain.NumberValue(1)})
	assert.Empty(t, expr)
	assert.Len(t, rest, 1)

	expr, rest = splitFilter(nil)
	assert.Empty(t, expr)
	assert.Nil(t, rest)
}
