package normalisers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/normalisers/markdown"
	"github.com/custodia-labs/recall/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// MaxFileSize caps files read from disk.
const MaxFileSize = 16 << 20

// extensionTypes maps the file extensions recall ingests to MIME types.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
}

// Registry dispatches raw documents to the highest-priority normaliser
// for their MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry registers the markdown and plaintext normalisers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(markdown.New())
	r.Register(plaintext.New())
	return r
}

// Register adds a normaliser, keeping the list ordered by priority.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// SupportedMIMETypes returns all MIME types that can be normalised.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// Normalise runs the best normaliser for raw.MIMEType.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	var selected driven.Normaliser
	for _, n := range r.normalisers {
		if supports(n, raw.MIMEType) {
			selected = n
			break
		}
	}
	r.mu.RUnlock()

	if selected == nil {
		return nil, fmt.Errorf("normalise %s: %w: %q", raw.URI, domain.ErrUnsupportedType, raw.MIMEType)
	}
	return selected.Normalise(ctx, raw)
}

func supports(n driven.Normaliser, mimeType string) bool {
	for _, t := range n.SupportedMIMETypes() {
		if t == mimeType {
			return true
		}
	}
	return false
}

// MIMETypeForPath returns the MIME type for a supported file extension.
func MIMETypeForPath(path string) (string, bool) {
	t, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	return t, ok
}

// IsSupportedPath reports whether path has an ingestible extension.
func IsSupportedPath(path string) bool {
	_, ok := MIMETypeForPath(path)
	return ok
}

// LoadFile reads and normalises a file from disk.
// Files with unknown extensions are read as plain text.
func (r *Registry) LoadFile(ctx context.Context, path string, meta domain.Metadata) (*domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: %w: is a directory", path, domain.ErrInvalidInput)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("read %s: %w: file larger than %d bytes", path, domain.ErrInvalidInput, MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	mimeType, ok := MIMETypeForPath(path)
	if !ok {
		mimeType = "text/plain"
	}
	return r.LoadBytes(ctx, path, mimeType, content, meta)
}

// LoadBytes normalises in-memory content, such as stdin.
func (r *Registry) LoadBytes(
	ctx context.Context, uri, mimeType string, content []byte, meta domain.Metadata,
) (*domain.Document, error) {
	result, err := r.Normalise(ctx, &domain.RawDocument{
		URI:      uri,
		MIMEType: mimeType,
		Content:  content,
		Metadata: meta,
	})
	if err != nil {
		return nil, err
	}
	return &result.Document, nil
}
