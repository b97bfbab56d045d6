package messages

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestMode_String(t *testing.T) {
	assert.Equal(t, "ask", ModeAsk.String())
	assert.Equal(t, "retrieve", ModeRetrieve.String())
	assert.Equal(t, "unknown", Mode(42).String())
}

func TestMode_Next(t *testing.T) {
	assert.Equal(t, ModeRetrieve, ModeAsk.Next())
	assert.Equal(t, ModeAsk, ModeRetrieve.Next())
}

// TestQuestionSubmitted tests the QuestionSubmitted message type
func TestQuestionSubmitted(t *testing.T) {
	msg := QuestionSubmitted{Question: "what is mitosis?", Mode: ModeRetrieve}

	assert.Equal(t, "what is mitosis?", msg.Question)
	assert.Equal(t, ModeRetrieve, msg.Mode)
}

// TestAnswerReady tests the AnswerReady message type
func TestAnswerReady(t *testing.T) {
	t.Run("with answer", func(t *testing.T) {
		answer := &domain.Answer{Text: "Cells divide."}
		msg := AnswerReady{Answer: answer}

		require.NotNil(t, msg.Answer)
		assert.Equal(t, "Cells divide.", msg.Answer.Text)
		assert.NoError(t, msg.Err)
	})

	t.Run("with error", func(t *testing.T) {
		msg := AnswerReady{Err: domain.ErrLLMUnavailable}

		assert.Nil(t, msg.Answer)
		assert.ErrorIs(t, msg.Err, domain.ErrLLMUnavailable)
	})
}

// TestResultsReady tests the ResultsReady message type
func TestResultsReady(t *testing.T) {
	results := []domain.ExpandedResult{
		{Candidate: domain.Candidate{Chunk: domain.Chunk{ID: "doc#0", Text: "first"}}},
		{Candidate: domain.Candidate{Chunk: domain.Chunk{ID: "doc#1", Text: "second"}}},
	}
	msg := ResultsReady{Question: "q", Results: results}

	assert.Equal(t, "q", msg.Question)
	require.Len(t, msg.Results, 2)
	assert.Equal(t, "doc#1", msg.Results[1].Chunk.ID)
}

// TestErrorOccurred tests the ErrorOccurred message type
func TestErrorOccurred(t *testing.T) {
	err := errors.New("boom")
	msg := ErrorOccurred{Err: err}

	assert.Equal(t, err, msg.Err)
}
