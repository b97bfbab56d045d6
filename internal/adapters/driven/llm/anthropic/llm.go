// Package anthropic answers questions with a Claude model over the Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-sonnet-latest"
	DefaultTimeout = 120 * time.Second

	apiVersion = "2023-06-01"

	// max_tokens is mandatory on every request.
	defaultMaxTokens = 2048

	// The API has no JSON mode, so JSON answers are asked for in the system prompt.
	jsonInstruction = "Respond with a single valid JSON object and nothing else."
)

// Config configures the Messages API client. APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService generates answers over /v1/messages.
type LLMService struct {
	api   *httpapi.Client
	model string
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageRequest struct {
	Model         string   `json:"model"`
	System        string   `json:"system,omitempty"`
	Messages      []turn   `json:"messages"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewLLMService creates the Messages API client.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w: API key is required", domain.ErrLLMUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	api := httpapi.New(cfg.BaseURL, cfg.Timeout, map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": apiVersion,
	})
	return &LLMService{api: api, model: cfg.Model}, nil
}

// Generate answers a single prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := s.request(opts.MaxTokens, opts.Temperature)
	req.Messages = []turn{{Role: "user", Content: prompt}}
	req.StopSequences = opts.StopWords
	if opts.JSON {
		req.System = jsonInstruction
	}
	return s.send(ctx, req)
}

// Chat continues a conversation. System messages are lifted into the
// top-level system field, joined in order when there are several.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	req := s.request(opts.MaxTokens, opts.Temperature)
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, turn(m))
	}
	req.System = strings.Join(system, "\n\n")
	return s.send(ctx, req)
}

func (s *LLMService) request(maxTokens int, temperature float64) messageRequest {
	req := messageRequest{Model: s.model, MaxTokens: defaultMaxTokens}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if temperature > 0 {
		req.Temperature = temperature
	}
	return req
}

func (s *LLMService) send(ctx context.Context, req messageRequest) (string, error) {
	var resp messageResponse
	if err := s.api.PostJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return "", s.wrap(ctx, err)
	}

	var answer strings.Builder
	blocks := 0
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		answer.WriteString(block.Text)
		blocks++
	}
	if blocks == 0 {
		return "", fmt.Errorf("anthropic: %w: response has no text content", domain.ErrLLMUnavailable)
	}

	logger.Debug("anthropic %s%s", s.model, logger.Fields(
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop", resp.StopReason))
	if resp.StopReason == "max_tokens" {
		logger.Warn("anthropic: answer cut off at %d tokens", req.MaxTokens)
	}
	return answer.String(), nil
}

// wrap keeps caller cancellation distinct from an unavailable model.
func (s *LLMService) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("anthropic: %w", err)
	}
	return fmt.Errorf("anthropic: %w: %w", domain.ErrLLMUnavailable, err)
}

// ModelName returns the Claude model id.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/v1/models"); err != nil {
		return s.wrap(ctx, err)
	}
	return nil
}

// Close is a no-op.
func (s *LLMService) Close() error {
	return nil
}
