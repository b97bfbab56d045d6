// Package metrics exposes pipeline metrics through client_golang.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.PipelineMetrics = (*Metrics)(nil)

const namespace = "recall"

// Metrics holds all Prometheus collectors for the ingestion and query pipelines.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	IngestBatchesTotal *prometheus.CounterVec
	ChunksTotal        *prometheus.CounterVec
	IngestDuration     prometheus.Histogram

	// Query metrics
	StageDuration       *prometheus.HistogramVec
	RerankFallbackTotal *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
// A dedicated registry keeps repeated construction (tests, reloads) from
// colliding on the default registerer.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.IngestBatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Total number of ingestion batches by outcome",
		},
		[]string{"outcome"},
	)

	m.ChunksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Total number of chunks processed by outcome",
		},
		[]string{"outcome"},
	)

	m.IngestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of document ingestion in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_stage_duration_seconds",
			Help:      "Duration of query pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	m.RerankFallbackTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_fallback_total",
			Help:      "Total number of re-ranking fallbacks to distance order",
		},
		[]string{"reason"},
	)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch implements driven.PipelineMetrics.
func (m *Metrics) ObserveBatch(success bool, chunks int) {
	outcome := outcomeLabel(success)
	m.IngestBatchesTotal.WithLabelValues(outcome).Inc()
	m.ChunksTotal.WithLabelValues(outcome).Add(float64(chunks))
}

// ObserveIngest implements driven.PipelineMetrics.
func (m *Metrics) ObserveIngest(duration time.Duration, _, _ int) {
	m.IngestDuration.Observe(duration.Seconds())
}

// ObserveStage implements driven.PipelineMetrics.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RerankFallback implements driven.PipelineMetrics.
func (m *Metrics) RerankFallback(reason string) {
	m.RerankFallbackTotal.WithLabelValues(reason).Inc()
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
