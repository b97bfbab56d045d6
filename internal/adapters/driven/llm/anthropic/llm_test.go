package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewLLMService(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	return svc
}

func TestNewLLMService(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)

	svc, err := NewLLMService(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, svc.api.BaseURL())
	assert.Equal(t, DefaultModel, svc.ModelName())
}

func TestGenerate(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		assert.Empty(t, req.System)
		assert.Equal(t, []string{"STOP"}, req.StopSequences)

		_, _ = w.Write([]byte(`{"content": [
			{"type": "text", "text": "part one, "},
			{"type": "tool_use", "text": "ignored"},
			{"type": "text", "text": "part two"}
		]}`))
	})

	got, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{StopWords: []string{"STOP"}})

	require.NoError(t, err)
	assert.Equal(t, "part one, part two", got)
}

func TestGenerate_JSONModeAsksInSystemPrompt(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, jsonInstruction, req.System)

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "{}"}]}`))
	})

	_, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{JSON: true})

	require.NoError(t, err)
}

func TestChat_ExtractsSystemMessage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, 50, req.MaxTokens)

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}]}`))
	})

	got, err := svc.Chat(context.Background(), []driven.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}, driven.ChatOptions{MaxTokens: 50})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusBadRequest, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`},
		{"overloaded", 529, `{}`},
		{"empty content", http.StatusOK, `{"content": []}`},
		{"not json", http.StatusBadGateway, `gateway`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{})

			assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
		})
	}
}

func TestPing(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	assert.NoError(t, svc.Ping(context.Background()))
}

func TestChat_JoinsSystemMessages(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "use the sources\n\ncite them", req.System)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, []string{"user", "assistant"}, []string{req.Messages[0].Role, req.Messages[1].Role})

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}]}`))
	})

	_, err := svc.Chat(context.Background(), []driven.ChatMessage{
		{Role: "system", Content: "use the sources"},
		{Role: "user", Content: "q"},
		{Role: "system", Content: "cite them"},
		{Role: "assistant", Content: "a"},
	}, driven.ChatOptions{})

	require.NoError(t, err)
}

func TestGenerate_OnlyNonTextBlocks(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content": [{"type": "tool_use", "text": ""}]}`))
	})

	_, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{})

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestPing_BadKey(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	})

	err := svc.Ping(context.Background())

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.Contains(t, err.Error(), "authentication_error")
}
