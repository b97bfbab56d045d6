package plaintext

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/plain"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise converts a raw document to a normalised document.
// The content is kept as is apart from normalised line endings.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")

	doc := domain.Document{
		Title:    TitleFromMetadataOrURI(raw.Metadata, raw.URI),
		Content:  content,
		Metadata: raw.Metadata.Clone(),
	}
	doc.Metadata["mime_type"] = domain.StringValue(raw.MIMEType)

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// TitleFromMetadataOrURI prefers an explicit title, then the file name.
func TitleFromMetadataOrURI(meta domain.Metadata, uri string) string {
	if title, ok := meta.String(domain.MetaTitle); ok && title != "" {
		return title
	}
	return TitleFromURI(uri)
}

// TitleFromURI turns a file path into a human-readable title.
// Stdin ("-") and empty paths have no title.
func TitleFromURI(uri string) string {
	if uri == "" || uri == "-" {
		return ""
	}
	filename := filepath.Base(uri)

	// Remove the extension for a cleaner title
	ext := filepath.Ext(filename)
	if ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}

	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")

	return filename
}
