package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil ports returns error", func(t *testing.T) {
		server, err := NewServer(nil)
		assert.ErrorIs(t, err, ErrMissingQueryService)
		assert.Nil(t, server)
	})

	t.Run("missing query service returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{Document: &mockDocumentService{}})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingQueryService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		server, err := NewServer(&Ports{
			Ingest:   &mockIngestService{},
			Query:    &mockQueryService{},
			Document: &mockDocumentService{},
		})
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ports Ports
		want  error
	}{
		{"empty", Ports{}, ErrMissingQueryService},
		{"no document service", Ports{Query: &mockQueryService{}}, ErrMissingDocumentService},
		{"read only", Ports{Query: &mockQueryService{}, Document: &mockDocumentService{}}, nil},
		{"all ports", Ports{
			Ingest:   &mockIngestService{},
			Query:    &mockQueryService{},
			Document: &mockDocumentService{},
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestServer_HandlerServesMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("recall_ingest_batches_total 1\n"))
	})
	server, err := NewServer(
		&Ports{Query: &mockQueryService{}, Document: &mockDocumentService{}},
		WithMetricsHandler(metrics),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recall_ingest_batches_total")
}

func TestServer_HandlerWithoutMetrics(t *testing.T) {
	server := newTestServer(nil, &mockQueryService{}, &mockDocumentService{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// The streamable MCP handler answers instead; it never serves metrics.
	assert.NotContains(t, rec.Body.String(), "recall_ingest_batches_total")
}
