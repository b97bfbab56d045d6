package domain

// Candidate is a chunk returned by similarity search for one query.
type Candidate struct {
	// Chunk is the matched chunk. Embedding is not populated.
	Chunk Chunk

	// Distance is the embedding-space dissimilarity (lower is more similar).
	Distance float64

	// RelevanceScore is the re-ranker's score (higher is more relevant).
	// Only meaningful when Reranked is true.
	RelevanceScore float64

	// Reranked is true when RelevanceScore was assigned by a relevance model.
	Reranked bool
}

// ExpansionInfo records which neighbours were merged into a result.
type ExpansionInfo struct {
	HasPrevious     bool
	HasNext         bool
	PreviousChunkID string
	NextChunkID     string
}

// ExpandedResult is a candidate whose text includes its neighbouring chunks.
type ExpandedResult struct {
	Candidate

	// OriginalText is the matched chunk's own text.
	OriginalText string

	// IsExpanded is true when at least one neighbour was merged in.
	IsExpanded bool

	// Expansion describes the merged neighbours.
	Expansion ExpansionInfo
}

// QueryRequest configures a retrieval query.
type QueryRequest struct {
	// Question is the raw user query.
	Question string

	// TopK is the number of results wanted after re-ranking.
	TopK int

	// DocumentID optionally scopes retrieval to one document.
	DocumentID string

	// NoExpand disables neighbour expansion.
	NoExpand bool
}

// Answer is the generated response to a question.
type Answer struct {
	// Question echoes the query.
	Question string

	// Text is the generated answer.
	Text string

	// HasContext is false when nothing relevant was retrieved.
	HasContext bool

	// NumChunks is the number of context blocks given to the model.
	NumChunks int

	// Sources are the context blocks used.
	Sources []ExpandedResult
}

// Flashcard is a generated study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// QuizOption is one answer choice.
type QuizOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuizQuestion is a generated multiple-choice question.
type QuizQuestion struct {
	Question    string       `json:"question"`
	Options     []QuizOption `json:"options"`
	Explanation string       `json:"explanation"`
	Sources     []string     `json:"-"`
}
