// Package rerank provides a relevance scorer backed by an HTTP cross-encoder.
//
// Two wire formats are supported: the text-embeddings-inference /rerank
// endpoint and the Jina/Cohere-style /v1/rerank endpoint. Every call passes
// through a rate limiter and a circuit breaker so a failing model degrades
// to distance ordering quickly instead of stalling each query.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure Scorer implements the interface.
var _ driven.RelevanceScorer = (*Scorer)(nil)

// Default configuration values.
const (
	DefaultTimeout   = domain.DefaultRerankTimeout
	DefaultBurst     = 4
	breakerName      = "rerank"
	breakerCooldown  = 30 * time.Second
	breakerInterval  = time.Minute
	breakerMinTrips  = 3
	breakerFailRatio = 0.6
)

// Config holds configuration for the HTTP scorer.
type Config struct {
	// Provider selects the wire format (tei or jina).
	Provider domain.RerankProvider

	// BaseURL is the scorer endpoint root.
	BaseURL string

	// Model is sent to APIs that take one.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64

	// Burst is the token bucket size (default: 4).
	Burst int
}

// Scorer scores query/text pairs over HTTP.
type Scorer struct {
	client   *http.Client
	provider domain.RerankProvider
	baseURL  string
	model    string
	apiKey   string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	limiter  *RateLimiter
}

// teiRequest is the text-embeddings-inference /rerank request format.
type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

// teiScore is one element of the /rerank response array.
type teiScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// jinaRequest is the /v1/rerank request format.
type jinaRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// jinaResponse is the /v1/rerank response format.
type jinaResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// statusError carries a non-200 response status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// NewScorer creates an HTTP relevance scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	switch cfg.Provider {
	case domain.RerankProviderTEI, domain.RerankProviderJina:
	default:
		return nil, fmt.Errorf("rerank: %w: provider %q", domain.ErrUnsupportedType, cfg.Provider)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rerank: %w: base URL is required", domain.ErrInvalidInput)
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("rerank: %w: base URL %q must be an http(s) URL", domain.ErrInvalidInput, cfg.BaseURL)
	}
	if cfg.Timeout < 0 || cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("rerank: %w: timeout and requests per second must not be negative", domain.ErrInvalidInput)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinTrips && failureRatio >= breakerFailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
		// Cancellation does not count against the scorer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Scorer{
		client:   &http.Client{Timeout: cfg.Timeout},
		provider: cfg.Provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		breaker:  breaker,
		limiter:  NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}, nil
}

// Score returns one relevance score per text, in input order.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	if err := s.wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank: %w: %w", domain.ErrRerankUnavailable, err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.call(ctx, query, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("rerank: %w: circuit %s", domain.ErrRerankUnavailable, s.breaker.State())
		}
		return nil, fmt.Errorf("rerank: %w: %w", domain.ErrRerankUnavailable, err)
	}
	return result.([]float64), nil
}

// wait takes a rate limiter token, giving up after the request timeout.
func (s *Scorer) wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *Scorer) call(ctx context.Context, query string, texts []string) ([]float64, error) {
	var (
		path string
		body any
	)
	switch s.provider {
	case domain.RerankProviderJina:
		path = "/v1/rerank"
		body = jinaRequest{Model: s.model, Query: query, Documents: texts, TopN: len(texts)}
	default:
		path = "/rerank"
		body = teiRequest{Query: query, Texts: texts}
	}

	raw, err := s.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	assign := func(index int, score float64) error {
		if index < 0 || index >= len(texts) {
			return fmt.Errorf("score index %d out of range", index)
		}
		scores[index] = score
		seen[index] = true
		return nil
	}

	switch s.provider {
	case domain.RerankProviderJina:
		var resp jinaResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		for _, r := range resp.Results {
			if err := assign(r.Index, r.RelevanceScore); err != nil {
				return nil, err
			}
		}
	default:
		var resp []teiScore
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		for _, r := range resp {
			if err := assign(r.Index, r.Score); err != nil {
				return nil, err
			}
		}
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("no score for text %d", i)
		}
	}
	return scores, nil
}

func (s *Scorer) post(ctx context.Context, path string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		s.limiter.RecordRateLimitError(parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

// parseRetryAfter reads a delay-seconds Retry-After header.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ModelName returns the scoring model name, if known.
func (s *Scorer) ModelName() string {
	if s.model != "" {
		return s.model
	}
	return string(s.provider)
}

// Close releases resources.
func (s *Scorer) Close() error {
	return nil
}
