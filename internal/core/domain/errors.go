package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider, backend or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured or unreachable.
	// Answer generation and study features are disabled without it.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Neither ingestion nor retrieval can run without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Pipeline Errors.

	// ErrEmptyDocument indicates ingestion input has no extractable text.
	// Nothing is written when this is returned.
	ErrEmptyDocument = errors.New("empty document")

	// ErrEmbeddingFailure indicates an embedding call failed.
	// Ingestion contains it at batch granularity; a failed query embedding aborts the query.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrIndexUnavailable indicates the vector database is unreachable.
	// It aborts both ingestion and query and is never retried internally.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrRerankUnavailable indicates the relevance model is unreachable or erroring.
	// The re-ranker recovers from it by keeping embedding-distance order.
	ErrRerankUnavailable = errors.New("re-ranker unavailable")
)
