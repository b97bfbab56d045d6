// Package domain defines the core business entities for recall.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A logical unit of ingested text
//   - Chunk: The atomic retrievable unit, keyed by ChunkID
//   - Metadata: String keys mapped to a closed scalar union
//   - Candidate: A chunk matched by similarity search
//   - ExpandedResult: A candidate merged with its neighbouring chunks
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
