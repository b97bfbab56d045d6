package domain

import "strconv"

// Document represents a logical unit of ingested text.
// Documents are immutable once ingested; re-ingestion creates new chunks.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Title is the human-readable title.
	Title string

	// Content is the full plain text before chunking.
	Content string

	// Metadata contains caller-supplied key-value pairs.
	Metadata Metadata
}

// Chunk represents the atomic retrievable unit within a document.
type Chunk struct {
	// ID is derived with ChunkID from DocumentID and Index.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Index is the 0-based position within the document.
	Index int

	// TotalChunks is the number of chunks in the owning document.
	TotalChunks int

	// Text is the raw chunk content.
	Text string

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata holds the document metadata plus the reserved chunk fields.
	Metadata Metadata
}

// ChunkID derives the stable chunk identifier "{documentID}_chunk_{index}".
// Neighbour lookups depend on this derivation, so it must never change.
func ChunkID(documentID string, index int) string {
	return documentID + "_chunk_" + strconv.Itoa(index)
}

// Title returns the title stored in chunk metadata.
func (c Chunk) Title() string {
	title, _ := c.Metadata.String(MetaTitle)
	return title
}

// DocumentSummary describes an indexed document.
type DocumentSummary struct {
	// ID is the document identifier.
	ID string

	// Title is the stored title, if any.
	Title string

	// TotalChunks is the chunk count recorded at ingestion.
	TotalChunks int

	// IndexedChunks is how many chunks are actually present.
	// It is lower than TotalChunks after a partial ingestion.
	IndexedChunks int
}

// DeleteResult reports the outcome of a document deletion.
type DeleteResult struct {
	DocumentID    string
	ChunksDeleted int
	Found         bool
}

// IndexStats describes the vector index.
type IndexStats struct {
	Backend            string
	Collection         string
	TotalChunks        int
	EmbeddingModel     string
	EmbeddingDimension int
}

// RestoreChunk rebuilds a stored chunk, taking its positional fields from
// the reserved metadata keys.
func RestoreChunk(id, text string, meta Metadata) Chunk {
	c := Chunk{ID: id, Text: text, Metadata: meta}
	c.DocumentID, _ = meta.String(MetaDocumentID)
	c.Index, _ = meta.Int(MetaChunkIndex)
	c.TotalChunks, _ = meta.Int(MetaTotalChunks)
	return c
}
