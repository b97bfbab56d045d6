package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var (
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	inlineCode   = regexp.MustCompile("`([^`\n]+)`")
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldStars    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	boldUnders   = regexp.MustCompile(`__([^_\n]+)__`)
	italicStars  = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnders = regexp.MustCompile(`(^|\s)_([^_\n]+)_(\s|$|[.,;:!?])`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	rule         = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers  = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Format-specific, higher than plaintext
}

// Normalise converts a markdown document to plain text.
// Fenced code blocks are kept verbatim so the chunker can keep them whole.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	rawContent := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")

	title, ok := raw.Metadata.String(domain.MetaTitle)
	if !ok || title == "" {
		title = extractMarkdownTitle(rawContent, raw.URI)
	}

	doc := domain.Document{
		Title:    title,
		Content:  stripMarkdown(rawContent),
		Metadata: raw.Metadata.Clone(),
	}
	doc.Metadata["mime_type"] = domain.StringValue(raw.MIMEType)
	doc.Metadata["format"] = domain.StringValue("markdown")

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// extractMarkdownTitle returns the first H1 heading outside code fences,
// falling back to the file name.
func extractMarkdownTitle(content, uri string) string {
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return plaintext.TitleFromURI(uri)
}

// stripMarkdown removes common markdown formatting outside fenced blocks.
func stripMarkdown(content string) string {
	var (
		out   strings.Builder
		prose []string
		fence []string
	)
	flushProse := func() {
		if len(prose) > 0 {
			out.WriteString(stripProse(strings.Join(prose, "\n")))
			out.WriteString("\n")
			prose = prose[:0]
		}
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case fence != nil:
			fence = append(fence, line)
			if isFence(strings.TrimSpace(line)) {
				out.WriteString(strings.Join(fence, "\n"))
				out.WriteString("\n")
				fence = nil
			}
		case isFence(strings.TrimSpace(line)):
			flushProse()
			fence = []string{line}
		default:
			prose = append(prose, line)
		}
	}
	flushProse()
	if fence != nil {
		// Unclosed fence runs to the end.
		out.WriteString(strings.Join(fence, "\n"))
	}

	return strings.TrimSpace(multiNewline.ReplaceAllString(out.String(), "\n\n"))
}

func stripProse(s string) string {
	s = images.ReplaceAllString(s, "")
	s = links.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = headings.ReplaceAllString(s, "")
	s = boldStars.ReplaceAllString(s, "$1")
	s = boldUnders.ReplaceAllString(s, "$1")
	s = rule.ReplaceAllString(s, "")
	s = listMarkers.ReplaceAllString(s, "$1")
	s = italicStars.ReplaceAllString(s, "$1")
	s = italicUnders.ReplaceAllString(s, "$1$2$3")
	s = blockquote.ReplaceAllString(s, "")
	return s
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}
