package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
// Template names are the domain.Prompt* constants.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Returns an error wrapping domain.ErrNotFound for unknown names.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}
