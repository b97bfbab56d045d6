package normalisers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

type stubNormaliser struct {
	types    []string
	priority int
	title    string
}

func (s *stubNormaliser) SupportedMIMETypes() []string { return s.types }
func (s *stubNormaliser) Priority() int                { return s.priority }
func (s *stubNormaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	return &driven.NormaliseResult{Document: domain.Document{Title: s.title, Content: string(raw.Content)}}, nil
}

func TestRegistry_PicksHighestPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{types: []string{"text/plain"}, priority: 5, title: "low"})
	r.Register(&stubNormaliser{types: []string{"text/plain"}, priority: 60, title: "high"})

	result, err := r.Normalise(context.Background(), &domain.RawDocument{MIMEType: "text/plain"})

	require.NoError(t, err)
	assert.Equal(t, "high", result.Document.Title)
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Normalise(context.Background(), &domain.RawDocument{URI: "x.pdf", MIMEType: "application/pdf"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = r.Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_SupportedMIMETypes(t *testing.T) {
	assert.Equal(t,
		[]string{"text/markdown", "text/plain", "text/x-markdown"},
		NewDefaultRegistry().SupportedMIMETypes())
}

func TestMIMETypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"notes.md", "text/markdown", true},
		{"Notes.MARKDOWN", "text/markdown", true},
		{"a/b/todo.txt", "text/plain", true},
		{"image.png", "", false},
		{"README", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := MIMETypeForPath(tt.path)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ok, IsSupportedPath(tt.path))
		})
	}
}

func TestRegistry_LoadFile(t *testing.T) {
	dir := t.TempDir()
	r := NewDefaultRegistry()
	ctx := context.Background()

	mdPath := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("# Guide\n\n**Bold** text"), 0o600))

	doc, err := r.LoadFile(ctx, mdPath, domain.Metadata{"tag": domain.StringValue("x")})
	require.NoError(t, err)
	assert.Equal(t, "Guide", doc.Title)
	assert.Equal(t, "Guide\n\nBold text", doc.Content)
	assert.True(t, doc.Metadata["tag"].Equal(domain.StringValue("x")))

	// Unknown extensions fall back to plain text.
	rawPath := filepath.Join(dir, "notes.log")
	require.NoError(t, os.WriteFile(rawPath, []byte("**kept**"), 0o600))

	doc, err = r.LoadFile(ctx, rawPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "notes", doc.Title)
	assert.Equal(t, "**kept**", doc.Content)
}

func TestRegistry_LoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	r := NewDefaultRegistry()

	_, err := r.LoadFile(context.Background(), filepath.Join(dir, "missing.md"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = r.LoadFile(context.Background(), dir, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
