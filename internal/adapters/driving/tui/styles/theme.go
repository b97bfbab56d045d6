// Package styles holds the lipgloss palette for the ask screen.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the colour palette.
type Theme struct {
	Accent  lipgloss.Color // titles, answer rule, selection
	Link    lipgloss.Color // citations and mode tag
	Text    lipgloss.Color
	Subtle  lipgloss.Color // hints, previews, scores
	Danger  lipgloss.Color
	Caution lipgloss.Color // ungrounded answers
	Edge    lipgloss.Color // borders
	Bar     lipgloss.Color // status bar background
}

// DefaultTheme returns the dark palette.
func DefaultTheme() *Theme {
	return &Theme{
		Accent:  lipgloss.Color("#7C3AED"),
		Link:    lipgloss.Color("#06B6D4"),
		Text:    lipgloss.Color("#CDD6F4"),
		Subtle:  lipgloss.Color("#6C7086"),
		Danger:  lipgloss.Color("#F38BA8"),
		Caution: lipgloss.Color("#F9E2AF"),
		Edge:    lipgloss.Color("#45475A"),
		Bar:     lipgloss.Color("#181825"),
	}
}

// Styles are the rendered styles derived from a Theme.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style

	// Answer draws generated text behind a left rule.
	Answer lipgloss.Style

	// Citation renders the full text of an opened source.
	Citation lipgloss.Style

	// Score renders relevance or distance next to a source title.
	Score lipgloss.Style
}

// NewStyles builds styles from theme, falling back to DefaultTheme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Accent),
		Subtitle: lipgloss.NewStyle().Bold(true).Foreground(theme.Link),
		Normal:   lipgloss.NewStyle().Foreground(theme.Text),
		Muted:    lipgloss.NewStyle().Foreground(theme.Subtle),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(theme.Text).Background(theme.Accent),
		Error:    lipgloss.NewStyle().Foreground(theme.Danger),
		Warning:  lipgloss.NewStyle().Italic(true).Foreground(theme.Caution),

		InputField: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Edge).
			Padding(0, 1),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Subtle).
			Background(theme.Bar).
			Padding(0, 1),

		Help: lipgloss.NewStyle().Foreground(theme.Subtle),

		Answer: lipgloss.NewStyle().
			Foreground(theme.Text).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(theme.Accent).
			PaddingLeft(1),

		Citation: lipgloss.NewStyle().Foreground(theme.Link).Italic(true),
		Score:    lipgloss.NewStyle().Foreground(theme.Subtle).Faint(true),
	}
}

// DefaultStyles returns styles for DefaultTheme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the palette the styles were built from.
func (s *Styles) Theme() *Theme {
	return s.theme
}
