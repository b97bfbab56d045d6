package domain

// IngestRequest is a document handed to the ingestion pipeline.
type IngestRequest struct {
	// DocumentID is optional; a UUID is generated when blank.
	DocumentID string

	// Title is stored in every chunk's metadata.
	Title string

	// Text is the extracted plain text.
	Text string

	// Metadata is copied to every chunk.
	Metadata Metadata
}

// BatchResult records the outcome of one embedding+upsert batch.
type BatchResult struct {
	// Index is the 0-based batch number.
	Index int

	// Start is the chunk index of the first chunk in the batch.
	Start int

	// Count is the number of chunks in the batch.
	Count int

	// Success is true when the batch was embedded and stored.
	Success bool

	// Err holds the failure cause when Success is false.
	Err error
}

// IngestResult summarises an ingestion call.
// ChunksCreated below TotalChunks is a degraded success, not an error.
type IngestResult struct {
	DocumentID         string
	ChunksCreated      int
	ChunksFailed       int
	TotalChunks        int
	TotalCharacters    int
	EmbeddingDimension int
	Batches            []BatchResult
}

// SuccessRate returns the fraction of chunks indexed, 0..1.
func (r *IngestResult) SuccessRate() float64 {
	if r.TotalChunks == 0 {
		return 0
	}
	return float64(r.ChunksCreated) / float64(r.TotalChunks)
}

// Partial returns true when some but not all chunks were indexed.
func (r *IngestResult) Partial() bool {
	return r.ChunksCreated > 0 && r.ChunksCreated < r.TotalChunks
}

// Failed returns true when no chunk was indexed.
func (r *IngestResult) Failed() bool {
	return r.ChunksCreated == 0
}

// FailedBatches returns the batches that were skipped.
func (r *IngestResult) FailedBatches() []BatchResult {
	var failed []BatchResult
	for _, b := range r.Batches {
		if !b.Success {
			failed = append(failed, b)
		}
	}
	return failed
}
