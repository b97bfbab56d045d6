// Package mcp provides an MCP (Model Context Protocol) server adapter for recall.
// It lets AI assistants ingest notes into and ask questions of the local index.
package mcp

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Errors returned by NewServer.
var (
	ErrMissingQueryService    = errors.New("mcp: query service is required")
	ErrMissingDocumentService = errors.New("mcp: document service is required")
	ErrReadOnly               = errors.New("mcp: server is read-only")
)

// toolError prefixes err with a hint the calling assistant can act on.
// The SDK reports handler errors as tool results with IsError set.
func toolError(tool string, err error) error {
	var hint string
	switch {
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrEmbeddingFailure):
		hint = "the embedding service is unreachable"
	case errors.Is(err, domain.ErrIndexUnavailable):
		hint = "the vector index is unavailable"
	case errors.Is(err, domain.ErrLLMUnavailable):
		hint = "no language model is reachable; use the query tool for retrieval only"
	case errors.Is(err, domain.ErrEmptyDocument):
		hint = "the document has no text"
	case errors.Is(err, domain.ErrInvalidInput):
		hint = "invalid arguments"
	default:
		return fmt.Errorf("%s: %w", tool, err)
	}
	return fmt.Errorf("%s: %s: %w", tool, hint, err)
}
