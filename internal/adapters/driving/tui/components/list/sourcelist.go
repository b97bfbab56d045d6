// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/recall/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/recall/internal/core/domain"
)

// SourceList displays the passages behind an answer in a navigable list.
type SourceList struct {
	sources  []domain.ExpandedResult
	selected int
	expanded bool
	styles   *styles.Styles
	width    int
	height   int
}

// NewSourceList creates a new source list component.
func NewSourceList(s *styles.Styles) *SourceList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &SourceList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the source list.
func (l *SourceList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (l *SourceList) Update(msg tea.Msg) (*SourceList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		}
	}
	return l, nil
}

// View renders the source list.
func (l *SourceList) View() string {
	if len(l.sources) == 0 {
		return l.styles.Muted.Render("No sources")
	}

	lines := make([]string, 0, len(l.sources)+2)
	lines = append(lines, l.styles.Subtitle.Render(fmt.Sprintf("Sources (%d)", len(l.sources))), "")

	// Each source takes two lines, the expanded one takes the rest.
	visibleCount := (l.height - 2) / 2
	if visibleCount < 1 {
		visibleCount = 1
	}

	start := 0
	if l.selected >= visibleCount {
		start = l.selected - visibleCount + 1
	}
	end := start + visibleCount
	if end > len(l.sources) {
		end = len(l.sources)
	}

	for i := start; i < end; i++ {
		lines = append(lines, l.renderSource(i, &l.sources[i]))
	}

	return strings.Join(lines, "\n")
}

func (l *SourceList) renderSource(index int, src *domain.ExpandedResult) string {
	indicator := "  "
	if index == l.selected {
		indicator = "> "
	}

	title := truncate(SourceTitle(src), max(l.width-24, 10))
	score := FormatScore(src)

	var header string
	if index == l.selected {
		header = l.styles.Selected.Render(fmt.Sprintf("%s[%d] %s  %s", indicator, index+1, title, score))
	} else {
		header = l.styles.Normal.Render(fmt.Sprintf("%s[%d] %s  ", indicator, index+1, title)) +
			l.styles.Score.Render(score)
	}

	if index == l.selected && l.expanded {
		return header + "\n" + l.styles.Citation.Render(indentBlock(src.Chunk.Text, "    "))
	}

	preview := strings.Join(strings.Fields(src.Chunk.Text), " ")
	preview = truncate(preview, max(l.width-6, 20))
	return header + "\n" + l.styles.Muted.Render("    "+preview)
}

// SourceTitle returns the display title of a source, falling back to its document id.
func SourceTitle(src *domain.ExpandedResult) string {
	if title := src.Chunk.Title(); title != "" {
		return title
	}
	if src.Chunk.DocumentID != "" {
		return src.Chunk.DocumentID
	}
	return "(untitled)"
}

// FormatScore renders the relevance score for re-ranked sources and the distance otherwise.
func FormatScore(src *domain.ExpandedResult) string {
	if src.Reranked {
		return fmt.Sprintf("relevance %.3f", src.RelevanceScore)
	}
	return fmt.Sprintf("distance %.3f", src.Distance)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func indentBlock(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// SetSources replaces the listed sources and resets the selection.
func (l *SourceList) SetSources(sources []domain.ExpandedResult) {
	l.sources = sources
	l.selected = 0
	l.expanded = false
}

// Sources returns the current sources.
func (l *SourceList) Sources() []domain.ExpandedResult {
	return l.sources
}

// Selected returns the index of the selected source.
func (l *SourceList) Selected() int {
	return l.selected
}

// SelectedSource returns the currently selected source, or nil if none.
func (l *SourceList) SelectedSource() *domain.ExpandedResult {
	if l.selected < 0 || l.selected >= len(l.sources) {
		return nil
	}
	return &l.sources[l.selected]
}

// ToggleExpanded shows or hides the full text of the selected source.
func (l *SourceList) ToggleExpanded() {
	if len(l.sources) > 0 {
		l.expanded = !l.expanded
	}
}

// Expanded reports whether the selected source shows its full text.
func (l *SourceList) Expanded() bool {
	return l.expanded
}

// MoveUp moves selection up.
func (l *SourceList) MoveUp() {
	if l.selected > 0 {
		l.selected--
		l.expanded = false
	}
}

// MoveDown moves selection down.
func (l *SourceList) MoveDown() {
	if l.selected < len(l.sources)-1 {
		l.selected++
		l.expanded = false
	}
}

// SetDimensions sets the component dimensions.
func (l *SourceList) SetDimensions(width, height int) {
	l.width = width
	l.height = height
}

// Count returns the number of sources.
func (l *SourceList) Count() int {
	return len(l.sources)
}

// IsEmpty returns whether the list is empty.
func (l *SourceList) IsEmpty() bool {
	return len(l.sources) == 0
}
