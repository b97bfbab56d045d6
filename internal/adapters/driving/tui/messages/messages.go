// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/recall/internal/core/domain"
)

// Mode selects what happens when a question is submitted.
type Mode int

const (
	// ModeAsk retrieves context and generates an answer.
	ModeAsk Mode = iota
	// ModeRetrieve only retrieves and shows passages.
	ModeRetrieve
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAsk:
		return "ask"
	case ModeRetrieve:
		return "retrieve"
	default:
		return "unknown"
	}
}

// Next returns the other mode.
func (m Mode) Next() Mode {
	if m == ModeAsk {
		return ModeRetrieve
	}
	return ModeAsk
}

// QuestionSubmitted is sent when the user submits a question.
type QuestionSubmitted struct {
	Question string
	Mode     Mode
}

// AnswerReady carries a generated answer back to the model.
type AnswerReady struct {
	Answer *domain.Answer
	Err    error
}

// ResultsReady carries retrieval-only results back to the model.
type ResultsReady struct {
	Question string
	Results  []domain.ExpandedResult
	Err      error
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}
