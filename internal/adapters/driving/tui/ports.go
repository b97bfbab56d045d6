// Package tui provides an interactive terminal user interface for asking questions.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the TUI.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query retrieves passages and generates answers.
	Query driving.QueryService
}

// NewPorts creates a new Ports aggregate with the given services.
func NewPorts(query driving.QueryService) *Ports {
	return &Ports{Query: query}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
