// Package keymap defines keybindings for the TUI.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines all keybindings for the TUI.
type KeyMap struct {
	// Quit exits the application.
	Quit key.Binding

	// Submit sends the question.
	Submit key.Binding

	// Back returns focus to the question input.
	Back key.Binding

	// Up selects the previous source.
	Up key.Binding

	// Down selects the next source.
	Down key.Binding

	// ScrollUp scrolls the answer up.
	ScrollUp key.Binding

	// ScrollDown scrolls the answer down.
	ScrollDown key.Binding

	// NewQuestion clears the input and focuses it.
	NewQuestion key.Binding

	// ToggleMode switches between answering and retrieval only.
	ToggleMode key.Binding

	// ToggleSource shows the full text of the selected source.
	ToggleSource key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "edit question"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "prev source"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next source"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdn", "scroll down"),
		),
		NewQuestion: key.NewBinding(
			key.WithKeys("n", "/"),
			key.WithHelp("n", "new question"),
		),
		ToggleMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "ask/retrieve"),
		),
		ToggleSource: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "show source"),
		),
	}
}

// ShortHelp returns the keybindings shown while typing a question.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.ToggleMode, k.Quit}
}

// AnswerHelp returns the keybindings shown while reading an answer.
func (k *KeyMap) AnswerHelp() []key.Binding {
	return []key.Binding{k.NewQuestion, k.Down, k.ToggleSource, k.ScrollDown, k.Quit}
}

// FullHelp returns the full list of keybindings for the help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.ToggleMode, k.Back},
		{k.Up, k.Down, k.ToggleSource},
		{k.ScrollUp, k.ScrollDown, k.NewQuestion, k.Quit},
	}
}

// Matches checks if a key string matches a binding.
func Matches(keyStr string, binding key.Binding) bool {
	for _, k := range binding.Keys() {
		if k == keyStr {
			return true
		}
	}
	return false
}
