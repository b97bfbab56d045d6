package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure StudyService implements the interface.
var _ driving.StudyService = (*StudyService)(nil)

// Study generation limits.
const (
	studyContextChunks = 5
	defaultFlashcards  = 5
	maxFlashcards      = 20
	defaultDifficulty  = "medium"
	studyTemperature   = 0.3
)

// StudyService generates flashcards and quiz questions from indexed notes.
type StudyService struct {
	query   *QueryService
	prompts *PromptBuilder
	llm     driven.LLMService
}

// NewStudyService creates a new study service.
func NewStudyService(query *QueryService, prompts *PromptBuilder, llm driven.LLMService) *StudyService {
	return &StudyService{query: query, prompts: prompts, llm: llm}
}

// Flashcards generates up to count cards about topic.
func (s *StudyService) Flashcards(
	ctx context.Context, topic string, count int, documentID string,
) ([]domain.Flashcard, error) {
	logger.Section("Flashcards")

	if count <= 0 {
		count = defaultFlashcards
	}
	count = min(count, maxFlashcards)

	results, err := s.gatherContext(ctx, topic, documentID)
	if err != nil {
		return nil, fmt.Errorf("flashcards: %w", err)
	}

	raw, err := s.generate(ctx, s.prompts.Flashcards(topic, count, results))
	if err != nil {
		return nil, fmt.Errorf("flashcards: %w", err)
	}

	var payload struct {
		Cards []domain.Flashcard `json:"cards"`
	}
	if err := decodeJSON(raw, &payload); err != nil {
		return nil, fmt.Errorf("flashcards: %w", err)
	}

	cards := make([]domain.Flashcard, 0, len(payload.Cards))
	for _, c := range payload.Cards {
		c.Front = strings.TrimSpace(c.Front)
		c.Back = strings.TrimSpace(c.Back)
		if c.Front == "" || c.Back == "" {
			continue
		}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("flashcards: %w: model returned no usable cards", domain.ErrInvalidInput)
	}
	if len(cards) > count {
		cards = cards[:count]
	}

	logger.Debug("Generated %d flashcards for %q", len(cards), topic)
	return cards, nil
}

// Quiz generates one multiple-choice question about topic.
func (s *StudyService) Quiz(ctx context.Context, topic, difficulty, documentID string) (*domain.QuizQuestion, error) {
	logger.Section("Quiz")

	difficulty = strings.ToLower(strings.TrimSpace(difficulty))
	switch difficulty {
	case "":
		difficulty = defaultDifficulty
	case "easy", "medium", "hard":
	default:
		return nil, fmt.Errorf("quiz: %w: difficulty %q", domain.ErrInvalidInput, difficulty)
	}

	results, err := s.gatherContext(ctx, topic, documentID)
	if err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}

	raw, err := s.generate(ctx, s.prompts.Quiz(topic, difficulty, results))
	if err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}

	var q domain.QuizQuestion
	if err := decodeJSON(raw, &q); err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	if err := validateQuiz(&q); err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	q.Sources = sourceTitles(results)
	return &q, nil
}

// gatherContext retrieves unexpanded context for topic.
func (s *StudyService) gatherContext(ctx context.Context, topic, documentID string) ([]domain.ExpandedResult, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: empty topic", domain.ErrInvalidInput)
	}

	results, err := s.query.Query(ctx, domain.QueryRequest{
		Question:   topic,
		TopK:       studyContextChunks,
		DocumentID: documentID,
		NoExpand:   true,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no notes found for topic %q", domain.ErrNotFound, topic)
	}
	return results, nil
}

func (s *StudyService) generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{Temperature: studyTemperature, JSON: true})
	if err != nil {
		return "", fmt.Errorf("generate: %w", asLLMError(err))
	}
	return out, nil
}

// decodeJSON extracts the outermost JSON object from a model response,
// tolerating code fences and surrounding prose.
func decodeJSON(raw string, v any) error {
	text := stripCodeFence(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: response contains no JSON object", domain.ErrInvalidInput)
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}

func validateQuiz(q *domain.QuizQuestion) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: %d options", domain.ErrInvalidInput, len(q.Options))
	}
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: %d correct options", domain.ErrInvalidInput, correct)
	}
	return nil
}

// sourceTitles lists distinct titles in first-seen order.
func sourceTitles(results []domain.ExpandedResult) []string {
	seen := make(map[string]bool, len(results))
	var titles []string
	for i, r := range results {
		title := sourceTitle(r.Chunk, i)
		if seen[title] {
			continue
		}
		seen[title] = true
		titles = append(titles, title)
	}
	return titles
}
