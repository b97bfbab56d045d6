package driven

import "time"

// PipelineMetrics records ingestion and query pipeline measurements.
// This is an optional service - services fall back to NopMetrics when nil.
type PipelineMetrics interface {
	// ObserveBatch records one ingestion batch outcome and its chunk count.
	ObserveBatch(success bool, chunks int)

	// ObserveIngest records a completed ingestion call.
	ObserveIngest(duration time.Duration, chunksCreated, chunksFailed int)

	// ObserveStage records the duration of a query stage
	// ("embed", "search", "rerank", "expand", "generate").
	ObserveStage(stage string, duration time.Duration)

	// RerankFallback records that re-ranking fell back to distance order.
	RerankFallback(reason string)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

// ObserveBatch implements PipelineMetrics.
func (NopMetrics) ObserveBatch(bool, int) {}

// ObserveIngest implements PipelineMetrics.
func (NopMetrics) ObserveIngest(time.Duration, int, int) {}

// ObserveStage implements PipelineMetrics.
func (NopMetrics) ObserveStage(string, time.Duration) {}

// RerankFallback implements PipelineMetrics.
func (NopMetrics) RerankFallback(string) {}
