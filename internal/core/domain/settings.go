package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Timeout bounds a single generation request.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// RerankProvider identifies the relevance model API flavour.
type RerankProvider string

// Available re-ranking providers.
const (
	// RerankProviderNone disables re-ranking; results keep distance order.
	RerankProviderNone RerankProvider = "none"

	// RerankProviderTEI is a text-embeddings-inference /rerank endpoint.
	RerankProviderTEI RerankProvider = "tei"

	// RerankProviderJina is a Jina/Cohere-style /v1/rerank endpoint.
	RerankProviderJina RerankProvider = "jina"
)

// IsValid returns true if the provider is recognised.
func (p RerankProvider) IsValid() bool {
	switch p {
	case RerankProviderNone, RerankProviderTEI, RerankProviderJina:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the provider.
func (p RerankProvider) Description() string {
	switch p {
	case RerankProviderNone:
		return "Disabled (embedding distance order)"
	case RerankProviderTEI:
		return "Text Embeddings Inference cross-encoder"
	case RerankProviderJina:
		return "Jina/Cohere compatible rerank API"
	default:
		return unknownDescription
	}
}

// RerankSettings holds relevance model configuration.
type RerankSettings struct {
	// Provider selects the API flavour.
	Provider RerankProvider

	// BaseURL is the scorer endpoint root.
	BaseURL string

	// Model is sent to APIs that require one.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single scoring request.
	Timeout time.Duration

	// RequestsPerSecond throttles scoring calls; zero means unlimited.
	RequestsPerSecond float64
}

// IsConfigured returns true if a scorer should be built.
func (r RerankSettings) IsConfigured() bool {
	return r.Provider.IsValid() && r.Provider != RerankProviderNone && r.BaseURL != ""
}

// ChunkingSettings configures the chunker.
type ChunkingSettings struct {
	// Size is the target maximum chunk length in characters.
	Size int

	// Overlap is the number of characters repeated at the start of the next chunk.
	Overlap int
}

// IngestSettings configures the ingestion pipeline.
type IngestSettings struct {
	// BatchSize is the number of chunks embedded per call.
	BatchSize int

	// BatchPause is the delay between batches; zero disables it.
	BatchPause time.Duration
}

// RetrievalSettings configures query-time retrieval.
type RetrievalSettings struct {
	// TopK is the default number of results after re-ranking.
	TopK int

	// OverFetch multiplies TopK to size the candidate set.
	OverFetch int

	// MinCandidates is the floor for the candidate set size.
	MinCandidates int

	// Expand enables neighbour expansion.
	Expand bool
}

// VectorBackend identifies a vector index implementation.
type VectorBackend string

// Available vector index backends.
const (
	// VectorBackendSQLite stores vectors in the local SQLite database.
	VectorBackendSQLite VectorBackend = "sqlite"

	// VectorBackendMemory keeps vectors in process memory only.
	VectorBackendMemory VectorBackend = "memory"

	// VectorBackendMilvus stores vectors in a Milvus server.
	VectorBackendMilvus VectorBackend = "milvus"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendSQLite, VectorBackendMemory, VectorBackendMilvus:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b VectorBackend) String() string {
	return string(b)
}

// VectorSettings holds vector index configuration.
type VectorSettings struct {
	// Backend selects the index implementation.
	Backend VectorBackend

	// Collection names the Milvus collection.
	Collection string

	// MilvusAddress is host:port of the Milvus server.
	MilvusAddress string

	// MilvusUsername authenticates against Milvus when set.
	MilvusUsername string

	// MilvusPassword authenticates against Milvus when set.
	MilvusPassword string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Rerank    RerankSettings
	Chunking  ChunkingSettings
	Ingest    IngestSettings
	Retrieval RetrievalSettings
	Vector    VectorSettings
}

// Default values shared by settings and services.
const (
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultBatchSize      = 50
	DefaultBatchPause     = 500 * time.Millisecond
	DefaultTopK           = 5
	MaxTopK               = 50
	DefaultOverFetch      = 10
	DefaultMinCandidates  = 50
	DefaultCollectionName = "notes_collection"
	DefaultAITimeout      = 120 * time.Second
	DefaultRerankTimeout  = 10 * time.Second
)

// DefaultAppSettings returns settings for a local Ollama setup.
// Re-ranking is disabled until a scorer endpoint is configured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    DefaultEmbeddingModels()[AIProviderOllama],
			BaseURL:  DefaultOllamaURL,
			Timeout:  DefaultAITimeout,
		},
		LLM: LLMSettings{
			Provider: AIProviderOllama,
			Model:    DefaultLLMModels()[AIProviderOllama],
			BaseURL:  DefaultOllamaURL,
			Timeout:  DefaultAITimeout,
		},
		// Re-ranking needs a separate model server, so it is opt-in.
		Rerank: RerankSettings{
			Provider: RerankProviderNone,
			Timeout:  DefaultRerankTimeout,
		},
		Chunking: ChunkingSettings{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Ingest: IngestSettings{
			BatchSize:  DefaultBatchSize,
			BatchPause: DefaultBatchPause,
		},
		Retrieval: RetrievalSettings{
			TopK:          DefaultTopK,
			OverFetch:     DefaultOverFetch,
			MinCandidates: DefaultMinCandidates,
			Expand:        true,
		},
		Vector: VectorSettings{
			Backend:       VectorBackendSQLite,
			Collection:    DefaultCollectionName,
			MilvusAddress: "localhost:19530",
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2:3b",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
