// Package openai answers questions with an OpenAI-compatible chat model.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/recall/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig configures the chat client. Only APIKey is required; BaseURL can
// point at Azure or any server speaking /chat/completions.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService generates answers over /chat/completions.
type LLMService struct {
	api   *httpapi.Client
	model string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	Stop           []string      `json:"stop,omitempty"`
	ResponseFormat *outputFormat `json:"response_format,omitempty"`
}

type outputFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewLLMService creates the chat client.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w: API key is required", domain.ErrLLMUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	api := httpapi.New(cfg.BaseURL, cfg.Timeout, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	})
	return &LLMService{api: api, model: cfg.Model}, nil
}

// Generate answers a single prompt. opts.JSON turns on the json_object
// response format.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := s.request([]driven.ChatMessage{{Role: "user", Content: prompt}}, opts.MaxTokens, opts.Temperature)
	req.Stop = opts.StopWords
	if opts.JSON {
		req.ResponseFormat = &outputFormat{Type: "json_object"}
	}
	return s.complete(ctx, req)
}

// Chat continues a conversation. Roles are passed through unchanged.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	return s.complete(ctx, s.request(messages, opts.MaxTokens, opts.Temperature))
}

func (s *LLMService) request(messages []driven.ChatMessage, maxTokens int, temperature float64) chatRequest {
	req := chatRequest{Model: s.model, Messages: make([]chatMessage, len(messages))}
	for i, m := range messages {
		req.Messages[i] = chatMessage(m)
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if temperature > 0 {
		req.Temperature = temperature
	}
	return req
}

func (s *LLMService) complete(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := s.api.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", s.wrap(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w: response has no choices", domain.ErrLLMUnavailable)
	}

	choice := resp.Choices[0]
	logger.Debug("openai %s%s", s.model, logger.Fields(
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish", choice.FinishReason))
	if choice.FinishReason == "length" {
		logger.Warn("openai: answer cut off at the token limit")
	}
	return choice.Message.Content, nil
}

// wrap keeps caller cancellation distinct from an unavailable model.
func (s *LLMService) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("openai: %w", err)
	}
	return fmt.Errorf("openai: %w: %w", domain.ErrLLMUnavailable, err)
}

// ModelName returns the chat model id.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/models"); err != nil {
		return s.wrap(ctx, err)
	}
	return nil
}

// Close is a no-op.
func (s *LLMService) Close() error {
	return nil
}
