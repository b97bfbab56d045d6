package mcp

import (
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Ingest adds documents to the knowledge base.
	Ingest driving.IngestService

	// Query runs retrieval and answer generation.
	Query driving.QueryService

	// Document lists, deletes and describes indexed documents.
	Document driving.DocumentService

	// ReadOnly hides the ingest and delete_document tools.
	ReadOnly bool
}

func (p *Ports) writable() bool {
	return !p.ReadOnly && p.Ingest != nil
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.Document == nil {
		return ErrMissingDocumentService
	}
	// Ingest is optional; without it the server is read-only.
	return nil
}
