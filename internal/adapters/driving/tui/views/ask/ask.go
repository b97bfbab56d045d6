// Package ask provides the question and answer view for the TUI.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/recall/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/recall/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/recall/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/recall/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/recall/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/recall/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// ErrNoQueryService is returned when the view has no query service.
var ErrNoQueryService = errors.New("query service not available")

// View represents the ask view: question input, answer pane, sources and status bar.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.QuestionInput
	answer    viewport.Model
	sources   *list.SourceList
	spinner   spinner.Model
	statusbar *status.Bar

	queryService driving.QueryService
	ctx          context.Context

	mode       messages.Mode
	topK       int
	documentID string

	question   string
	result     *domain.Answer
	thinking   bool
	width      int
	height     int
	ready      bool
	err        error
	focusInput bool // true = typing a question, false = reading the answer
}

// NewView creates a new ask view.
func NewView(s *styles.Styles, km *keymap.KeyMap, queryService driving.QueryService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = s.Subtitle

	v := &View{
		styles:       s,
		keymap:       km,
		input:        input.NewQuestionInput(s),
		answer:       viewport.New(80, 8),
		sources:      list.NewSourceList(s),
		spinner:      sp,
		statusbar:    status.NewBar(s, km),
		queryService: queryService,
		ctx:          context.Background(),
		mode:         messages.ModeAsk,
		width:        80,
		height:       24,
		focusInput:   true,
	}
	v.SetDimensions(v.width, v.height)
	return v
}

// WithContext sets the context for the view.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// WithTopK sets the number of passages requested per question.
func (v *View) WithTopK(k int) *View {
	v.topK = k
	return v
}

// WithDocument scopes every question to one document.
func (v *View) WithDocument(id string) *View {
	v.documentID = id
	return v
}

// WithMode sets the initial question mode.
func (v *View) WithMode(mode messages.Mode) *View {
	v.setMode(mode)
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the ask view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		v.ready = true
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.QuestionSubmitted:
		return v, v.submit(msg.Question, msg.Mode)

	case messages.AnswerReady:
		v.handleAnswer(msg)
		return v, nil

	case messages.ResultsReady:
		v.handleResults(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil

	case spinner.TickMsg:
		if !v.thinking {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	}

	var cmd tea.Cmd
	if v.focusInput {
		v.input, cmd = v.input.Update(msg)
	} else {
		v.answer, cmd = v.answer.Update(msg)
	}
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return v, quit
	}

	if keymap.Matches(msg.String(), v.keymap.ToggleMode) {
		v.setMode(v.mode.Next())
		return v, nil
	}

	if v.focusInput {
		return v.handleInputKey(msg)
	}
	return v.handleAnswerKey(msg)
}

func (v *View) handleInputKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	//nolint:exhaustive // handling only relevant key types
	switch msg.Type {
	case tea.KeyEnter:
		return v, v.submit(v.input.Value(), v.mode)
	case tea.KeyEsc:
		// Back to the last answer when there is one, otherwise leave.
		if v.result != nil || !v.sources.IsEmpty() {
			v.focusAnswer()
			return v, nil
		}
		return v, quit
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleAnswerKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	k := msg.String()
	switch {
	case keymap.Matches(k, v.keymap.Quit):
		return v, quit
	case keymap.Matches(k, v.keymap.NewQuestion):
		v.input.Reset()
		return v, v.focusQuestion()
	case keymap.Matches(k, v.keymap.Back):
		return v, v.focusQuestion()
	case keymap.Matches(k, v.keymap.Up):
		v.sources.MoveUp()
	case keymap.Matches(k, v.keymap.Down):
		v.sources.MoveDown()
	case keymap.Matches(k, v.keymap.ToggleSource):
		v.sources.ToggleExpanded()
	case keymap.Matches(k, v.keymap.ScrollUp):
		v.scrollAnswer(-1)
	case keymap.Matches(k, v.keymap.ScrollDown):
		v.scrollAnswer(1)
	}
	return v, nil
}

// scrollAnswer moves the answer pane by half a page in direction dir.
func (v *View) scrollAnswer(dir int) {
	step := max(v.answer.Height/2, 1)
	v.answer.SetYOffset(v.answer.YOffset + dir*step)
}

// submit starts answering question in mode. Blank questions are ignored.
func (v *View) submit(question string, mode messages.Mode) tea.Cmd {
	question = strings.TrimSpace(question)
	if question == "" || v.thinking {
		return nil
	}

	v.question = question
	v.thinking = true
	v.err = nil
	v.setMode(mode)
	v.input.Blur()
	v.focusInput = false
	v.statusbar.SetState(status.StateThinking)
	if mode == messages.ModeAsk {
		v.statusbar.SetMessage("Thinking...")
	} else {
		v.statusbar.SetMessage("Retrieving...")
	}

	return tea.Batch(v.spinner.Tick, v.perform(question, mode))
}

// perform runs the query off the update loop and reports back with a message.
func (v *View) perform(question string, mode messages.Mode) tea.Cmd {
	req := domain.QueryRequest{
		Question:   question,
		TopK:       v.topK,
		DocumentID: v.documentID,
	}
	svc := v.queryService
	ctx := v.ctx

	return func() tea.Msg {
		if svc == nil {
			return messages.ErrorOccurred{Err: ErrNoQueryService}
		}
		if mode == messages.ModeRetrieve {
			results, err := svc.Query(ctx, req)
			return messages.ResultsReady{Question: question, Results: results, Err: err}
		}
		answer, err := svc.Ask(ctx, req)
		return messages.AnswerReady{Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReady) {
	if !v.thinking {
		return
	}
	v.thinking = false
	if msg.Err != nil {
		v.setError(msg.Err)
		return
	}
	if msg.Answer == nil {
		v.setError(errors.New("no answer returned"))
		return
	}

	v.result = msg.Answer
	v.sources.SetSources(msg.Answer.Sources)
	v.answer.SetContent(v.renderAnswer())
	v.answer.GotoTop()
	v.statusbar.SetState(status.StateAnswered)
	v.statusbar.SetMessage("")
	v.statusbar.SetResultCount(len(msg.Answer.Sources))
}

func (v *View) handleResults(msg messages.ResultsReady) {
	if !v.thinking || msg.Question != v.question {
		return
	}
	v.thinking = false
	if msg.Err != nil {
		v.setError(msg.Err)
		return
	}

	v.result = nil
	v.sources.SetSources(msg.Results)
	v.answer.SetContent(v.renderRetrieval(len(msg.Results)))
	v.answer.GotoTop()
	v.statusbar.SetState(status.StateAnswered)
	v.statusbar.SetMessage("")
	v.statusbar.SetResultCount(len(msg.Results))
}

func (v *View) setError(err error) {
	v.thinking = false
	v.err = err
	v.statusbar.SetState(status.StateError)
	v.statusbar.SetMessage(errorHint(err))
	v.focusAnswer()
}

// errorHint turns well-known failures into something actionable.
func errorHint(err error) string {
	switch {
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "LLM unavailable, press tab for retrieval only"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding provider unavailable, check 'recall settings'"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "vector index unavailable"
	default:
		return err.Error()
	}
}

func (v *View) setMode(mode messages.Mode) {
	v.mode = mode
	v.statusbar.SetMode(mode)
	if mode == messages.ModeAsk {
		v.input.SetLabel("Ask")
	} else {
		v.input.SetLabel("Find")
	}
}

func (v *View) focusQuestion() tea.Cmd {
	v.focusInput = true
	return v.input.Focus()
}

func (v *View) focusAnswer() {
	v.focusInput = false
	v.input.Blur()
}

func (v *View) renderAnswer() string {
	width := max(v.width-4, 20)
	var b strings.Builder
	b.WriteString(v.styles.Answer.Width(width).Render(v.result.Text))
	if !v.result.HasContext {
		b.WriteString("\n\n")
		b.WriteString(v.styles.Warning.Render("No relevant passages were found in the knowledge base."))
	}
	return b.String()
}

func (v *View) renderRetrieval(n int) string {
	if n == 0 {
		return v.styles.Muted.Render("No relevant passages found.")
	}
	return v.styles.Muted.Render(fmt.Sprintf("%d passages for %q", n, v.question))
}

// View renders the ask view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 8)
	sections = append(sections,
		v.styles.Title.Render("Recall"),
		"",
		v.input.View(),
		"",
	)

	switch {
	case v.thinking:
		sections = append(sections, v.spinner.View()+" "+v.styles.Muted.Render(v.question))
	case v.err != nil:
		sections = append(sections, v.styles.Error.Render(v.err.Error()))
	case v.result != nil || !v.sources.IsEmpty():
		sections = append(sections, v.answer.View(), "", v.sources.View())
	default:
		sections = append(sections, v.styles.Muted.Render("Ask anything about your ingested documents."))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	bodyHeight := lipgloss.Height(body)
	padding := v.height - bodyHeight - 1
	if padding < 0 {
		padding = 0
	}

	return body + strings.Repeat("\n", padding) + "\n" + v.statusbar.View()
}

// SetDimensions sets the view dimensions and lays out the panes.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)

	// Header, input and status take six lines; split the rest between answer and sources.
	avail := max(height-6, 4)
	answerHeight := avail / 2
	v.answer.Width = width
	v.answer.Height = answerHeight
	v.sources.SetDimensions(width, avail-answerHeight)
	if v.result != nil {
		v.answer.SetContent(v.renderAnswer())
	}
}

// Question returns the last submitted question.
func (v *View) Question() string {
	return v.question
}

// Answer returns the last generated answer, or nil in retrieval mode.
func (v *View) Answer() *domain.Answer {
	return v.result
}

// Sources returns the passages currently shown.
func (v *View) Sources() []domain.ExpandedResult {
	return v.sources.Sources()
}

// SelectedSource returns the highlighted source index.
func (v *View) SelectedSource() int {
	return v.sources.Selected()
}

// Mode returns the current question mode.
func (v *View) Mode() messages.Mode {
	return v.mode
}

// Thinking reports whether a question is in flight.
func (v *View) Thinking() bool {
	return v.thinking
}

// InputFocused reports whether the question input has focus.
func (v *View) InputFocused() bool {
	return v.focusInput
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

// Status returns the status bar state.
func (v *View) Status() status.State {
	return v.statusbar.State()
}

func quit() tea.Msg {
	return messages.Quit{}
}
