package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// QueryService answers questions from the knowledge base.
type QueryService interface {
	// Query runs retrieval, re-ranking and context expansion.
	// An empty result is the normal no-context state, not an error.
	Query(ctx context.Context, req domain.QueryRequest) ([]domain.ExpandedResult, error)

	// Ask runs Query and hands the assembled prompt to the answer generator.
	Ask(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
}

// StudyService generates study material from retrieved context.
type StudyService interface {
	// Flashcards generates count flashcards about topic.
	Flashcards(ctx context.Context, topic string, count int, documentID string) ([]domain.Flashcard, error)

	// Quiz generates one multiple-choice question about topic.
	Quiz(ctx context.Context, topic, difficulty, documentID string) (*domain.QuizQuestion, error)
}
