// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingService: Turns text into vectors for ingestion and retrieval
//   - VectorIndex: Chunk persistence and nearest-neighbour search
//   - ConfigStore: Application configuration
//   - PostProcessor: Splits documents into chunks
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - RelevanceScorer: Cross-encoder re-ranking. Without it, distance order is kept.
//   - LLMService: Answer generation. Without it, only retrieval is available.
//   - PromptStore: User overrides for prompt templates.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
