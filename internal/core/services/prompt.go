package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// blockSeparator separates context blocks in every prompt.
const blockSeparator = "\n\n---\n\n"

// PromptBuilder fills prompt templates. Templates come from the store when
// it has one, otherwise from the built-in defaults.
type PromptBuilder struct {
	store driven.PromptStore
}

// NewPromptBuilder creates a builder. store may be nil.
func NewPromptBuilder(store driven.PromptStore) *PromptBuilder {
	return &PromptBuilder{store: store}
}

func (b *PromptBuilder) template(name string) string {
	if b == nil || b.store == nil {
		return domain.DefaultPrompts()[name]
	}
	tmpl, err := b.store.Load(name)
	switch {
	case err == nil && strings.TrimSpace(tmpl) != "":
		return tmpl
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		logger.Warn("Prompt %s unreadable, using default: %v", name, err)
	}
	return domain.DefaultPrompts()[name]
}

// Answer builds the grounded question-answering prompt.
// With no results it returns the no-context prompt.
func (b *PromptBuilder) Answer(query string, results []domain.ExpandedResult) string {
	if len(results) == 0 {
		return b.NoContext(query)
	}
	return fill(b.template(domain.PromptAnswer), map[string]string{
		domain.PlaceholderContext: formatBlocks("From", results),
		domain.PlaceholderQuery:   query,
	})
}

// NoContext builds the prompt used when retrieval found nothing.
func (b *PromptBuilder) NoContext(query string) string {
	return fill(b.template(domain.PromptNoContext), map[string]string{
		domain.PlaceholderQuery: query,
	})
}

// Flashcards builds the flashcard generation prompt.
func (b *PromptBuilder) Flashcards(topic string, count int, results []domain.ExpandedResult) string {
	return fill(b.template(domain.PromptFlashcards), map[string]string{
		domain.PlaceholderContext: formatBlocks("Source", results),
		domain.PlaceholderTopic:   topic,
		domain.PlaceholderCount:   strconv.Itoa(count),
	})
}

// Quiz builds the quiz question prompt.
func (b *PromptBuilder) Quiz(topic, difficulty string, results []domain.ExpandedResult) string {
	return fill(b.template(domain.PromptQuiz), map[string]string{
		domain.PlaceholderContext:    formatBlocks("Source", results),
		domain.PlaceholderTopic:      topic,
		domain.PlaceholderDifficulty: strings.ToUpper(difficulty),
	})
}

// BuildAnswerPrompt builds the answer prompt from the default templates.
func BuildAnswerPrompt(query string, results []domain.ExpandedResult) string {
	return (*PromptBuilder)(nil).Answer(query, results)
}

// formatBlocks renders results as "[label: title]\ntext" blocks.
func formatBlocks(label string, results []domain.ExpandedResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = "[" + label + ": " + sourceTitle(r.Chunk, i) + "]\n" + r.Chunk.Text
	}
	return strings.Join(blocks, blockSeparator)
}

// sourceTitle labels a chunk by title, falling back to its position.
func sourceTitle(c domain.Chunk, i int) string {
	if title := c.Title(); title != "" {
		return title
	}
	return "Document " + strconv.Itoa(i+1)
}

// fill substitutes every placeholder in one pass, so values that contain
// placeholder text are not expanded again.
func fill(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
