package driven

import "context"

// RelevanceScorer scores query/text pairs with a model independent of the
// embedding space, typically a cross-encoder.
// This is an optional service - when nil, results keep embedding-distance order.
type RelevanceScorer interface {
	// Score returns one relevance score per text, in input order.
	// Higher is more relevant. Failures are wrapped with domain.ErrRerankUnavailable.
	Score(ctx context.Context, query string, texts []string) ([]float64, error)

	// ModelName returns the scoring model name, if known.
	ModelName() string

	// Close releases resources.
	Close() error
}
