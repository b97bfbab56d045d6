// Package milvus provides a vector index backed by a Milvus server.
//
// Chunks live in a single collection with an HNSW index over cosine
// similarity. The document id is a scalar field so document-scoped filters
// run server side; other metadata is stored as a JSON string and matched
// after retrieval. Every call is wrapped in an OpenTelemetry span.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
)

var tracer = otel.Tracer("recall/milvus")

// Field names of the chunk collection.
const (
	fieldID         = "id"
	fieldVector     = "vector"
	fieldDocumentID = "document_id"
	fieldChunkIndex = "chunk_index"
	fieldText       = "text"
	fieldMetadata   = "metadata"
)

// Collection limits and index parameters.
const (
	maxIDLength       = 512
	maxTextLength     = 65535
	hnswM             = 16
	hnswEfConstruct   = 200
	minSearchEf       = 64
	maxQueryWindow    = 16384
	defaultAddress    = "localhost:19530"
	defaultShardCount = entity.DefaultShardNumber
)

// api is the subset of client.Client the store uses.
type api interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	DropCollection(ctx context.Context, collName string, opts ...client.DropCollectionOption) error
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Query(ctx context.Context, collectionName string, partitionNames []string, expr string, outputFields []string,
		opts ...client.SearchQueryOptionFunc) (client.ResultSet, error)
	Close() error
}

// Config holds Milvus connection settings.
type Config struct {
	// Address is host:port of the server (default: localhost:19530).
	Address string

	// Username and Password authenticate when both are set.
	Username string
	Password string

	// Collection names the chunk collection (default: notes_collection).
	Collection string

	// Dimensions creates the collection eagerly when known. Zero defers
	// creation to the first upsert.
	Dimensions int
}

// Store is a Milvus-backed vector index.
type Store struct {
	milvus     api
	collection string

	mu    sync.Mutex
	ready bool
	dims  int
}

// NewStore connects to Milvus and opens the chunk collection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}

	clientCfg := client.Config{Address: cfg.Address}
	if cfg.Username != "" && cfg.Password != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	c, err := client.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("milvus: %w: connect %s: %w", domain.ErrIndexUnavailable, cfg.Address, err)
	}

	s, err := newStore(ctx, c, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, c api, cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = domain.DefaultCollectionName
	}
	s := &Store{milvus: c, collection: cfg.Collection}

	if _, err := s.ensureCollection(ctx, cfg.Dimensions); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.milvus.Close()
}

// Collection returns the collection name.
func (s *Store) Collection() string {
	return s.collection
}

// ensureCollection loads the collection, creating it when dims is known.
// It reports false when the collection does not exist and dims is zero.
func (s *Store) ensureCollection(ctx context.Context, dims int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		if dims > 0 && s.dims > 0 && dims != s.dims {
			return false, fmt.Errorf("%w: collection %s has %d dimensions, got %d",
				domain.ErrInvalidInput, s.collection, s.dims, dims)
		}
		return true, nil
	}

	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", s.collection), attribute.Int("dims", dims)))
	defer span.End()

	exists, err := s.milvus.HasCollection(ctx, s.collection)
	if err != nil {
		return false, spanErr(span, "has collection", err)
	}

	if !exists {
		if dims <= 0 {
			return false, nil
		}
		logger.Info("creating milvus collection %s (%d dimensions)", s.collection, dims)
		if err := s.milvus.CreateCollection(ctx, chunkSchema(s.collection, dims), defaultShardCount); err != nil {
			return false, spanErr(span, "create collection", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruct)
		if err != nil {
			return false, spanErr(span, "build index params", err)
		}
		if err := s.milvus.CreateIndex(ctx, s.collection, fieldVector, idx, false); err != nil {
			return false, spanErr(span, "create index", err)
		}
	}

	if err := s.milvus.LoadCollection(ctx, s.collection, false); err != nil {
		return false, spanErr(span, "load collection", err)
	}

	s.ready = true
	if !exists {
		s.dims = dims
	}
	return true, nil
}

// chunkSchema describes the chunk collection.
func chunkSchema(name string, dims int) *entity.Schema {
	varchar := func(n int) map[string]string {
		return map[string]string{"max_length": strconv.Itoa(n)}
	}
	return &entity.Schema{
		CollectionName: name,
		Description:    "recall document chunks",
		Fields: []*entity.Field{
			{Name: fieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, AutoID: false, TypeParams: varchar(maxIDLength)},
			{Name: fieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(dims)}},
			{Name: fieldDocumentID, DataType: entity.FieldTypeVarChar, TypeParams: varchar(maxIDLength)},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldText, DataType: entity.FieldTypeVarChar, TypeParams: varchar(maxTextLength)},
			{Name: fieldMetadata, DataType: entity.FieldTypeVarChar, TypeParams: varchar(maxTextLength)},
		},
	}
}

// spanErr records err on span and classifies it.
func spanErr(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return indexErr(op, err)
}

// indexErr tags server failures with ErrIndexUnavailable.
// Cancellation and input errors are passed through untouched.
func indexErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("milvus: %s: %w", op, err)
	}
	return fmt.Errorf("milvus: %s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
