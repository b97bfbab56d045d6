package domain

// Prompt template names.
const (
	// PromptAnswer grounds an answer in retrieved context.
	PromptAnswer = "answer"

	// PromptNoContext is used when retrieval found nothing.
	PromptNoContext = "no_context"

	// PromptFlashcards generates flashcards as JSON.
	PromptFlashcards = "flashcards"

	// PromptQuiz generates one multiple-choice question as JSON.
	PromptQuiz = "quiz"
)

// Template placeholders, substituted verbatim.
const (
	PlaceholderContext    = "{{context}}"
	PlaceholderQuery      = "{{query}}"
	PlaceholderTopic      = "{{topic}}"
	PlaceholderCount      = "{{count}}"
	PlaceholderDifficulty = "{{difficulty}}"
)

// DefaultPrompts returns the built-in templates keyed by name.
func DefaultPrompts() map[string]string {
	out := make(map[string]string, len(defaultPrompts))
	for k, v := range defaultPrompts {
		out[k] = v
	}
	return out
}

//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	PromptAnswer: `You are a helpful assistant that answers questions based ONLY on the provided context from the user's notes.

IMPORTANT INSTRUCTIONS:
1. Answer the question using ONLY the information in the context below
2. If the context doesn't contain enough information to answer the question, say so clearly
3. Do not make up information or use knowledge outside the provided context
4. When citing sources, use the note titles shown in [From: ...] format (e.g., "According to the Linear Algebra notes...")
5. Be concise but complete in your answer
6. Use markdown formatting for better readability (headers, lists, code blocks, etc.)
7. Write mathematical notation in standard LaTeX: $...$ inline and $$...$$ for display math

CONTEXT FROM NOTES:
{{context}}

USER QUERY: {{query}}

ANSWER (based only on the context above):`,

	PromptNoContext: `You are a helpful assistant. The user asked a question, but no relevant context was found in the knowledge base.

Please politely inform the user that you don't have information about this topic in the current knowledge base, and suggest they either:
1. Add relevant notes about this topic first
2. Rephrase their question

User Query: {{query}}`,

	PromptFlashcards: `You are a Flashcard Generator. Your ONLY job is to output valid JSON. Do not include any explanations, markdown formatting, or conversational text.

CONTEXT FROM NOTES:
{{context}}

TOPIC: {{topic}}

TASK: Generate exactly {{count}} flashcards based on the context above.
- Each card has a 'front' (concept/term/question) and 'back' (definition/answer).
- Keep 'front' under 50 characters and 'back' under 150 characters.
- Base the flashcards ONLY on the context provided.

OUTPUT FORMAT - Your response must be ONLY this valid JSON structure:
{
  "cards": [
    {"front": "Term or concept", "back": "Concise definition or explanation"},
    {"front": "Another term", "back": "Another concise definition"}
  ]
}

Output ONLY the JSON. No markdown code blocks, no explanations, no extra text.`,

	PromptQuiz: `You are a Professor creating a rigorous exam.
CONTEXT: {{context}}

TASK: Create 1 multiple-choice question about {{topic}} based on the context.
1. The question should test deep understanding, not just memorization.
2. Difficulty level: {{difficulty}}
3. Provide 1 correct answer.
4. Provide 3 plausible distractors that reflect common misconceptions.

OUTPUT FORMAT (JSON ONLY):
{
  "question": "...",
  "options": [
    {"text": "Option A text", "is_correct": true},
    {"text": "Option B text", "is_correct": false},
    {"text": "Option C text", "is_correct": false},
    {"text": "Option D text", "is_correct": false}
  ],
  "explanation": "Briefly explain why the correct answer is right and why the others are wrong."
}

DO NOT output markdown code blocks or extra text. ONLY the JSON.`,
}
