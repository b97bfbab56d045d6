package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second, map[string]string{"X-Key": "secret"})
}

func TestPostJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ping", in["say"])

		_, _ = w.Write([]byte(`{"said": "pong"}`))
	})

	var out struct {
		Said string `json:"said"`
	}
	err := c.PostJSON(context.Background(), "/v1/things", map[string]string{"say": "ping"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "pong", out.Said)
	assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
}

func TestPostJSON_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  string
		wantMsg   string
		temporary bool
	}{
		{"envelope", http.StatusUnauthorized, `{"error": {"type": "auth", "message": "bad key"}}`, "auth", "bad key", false},
		{"plain body", http.StatusBadGateway, "  upstream down\n", "", "upstream down", true},
		{"empty body", http.StatusTooManyRequests, "", "", "Too Many Requests", true},
		{"overloaded", 529, `{}`, "", "{}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.PostJSON(context.Background(), "/x", struct{}{}, nil)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.temporary, apiErr.Temporary())
		})
	}
}

func TestPostJSON_LongErrorBodyIsCut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 4*maxErrorBody)))
	})

	err := c.PostJSON(context.Background(), "/x", struct{}{}, nil)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Message, maxErrorBody+3)
}

func TestPostJSON_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	var out map[string]any
	err := c.PostJSON(context.Background(), "/x", struct{}{}, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestPostJSON_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.PostJSON(ctx, "/x", struct{}{}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	assert.NoError(t, c.Get(context.Background(), "/models"))

	var apiErr *Error
	require.True(t, errors.As(c.Get(context.Background(), "/nope"), &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestGet_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, time.Second, nil).Get(context.Background(), "/models")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}
