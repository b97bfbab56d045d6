package cli

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driving/tui"
)

var (
	tuiTopK     int
	tuiDocument string
	tuiRetrieve bool
)

// newTUIApp builds the TUI model; tests replace it to avoid a terminal.
var newTUIApp = func(ports *tui.Ports, opts tui.Options) (tuiRunner, error) {
	return tui.NewApp(ports, opts)
}

type tuiRunner interface {
	Run() error
}

// tuiCmd represents the tui command.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch an interactive screen for asking questions of the knowledge base.

Answers are shown with the passages they were generated from. Press tab to
switch to retrieval only, which works without a language model.

Controls:
  Enter    - Ask / Show source
  Tab      - Switch ask and retrieve
  ↑/k, ↓/j - Navigate sources
  PgUp/PgDn - Scroll the answer
  n, /     - New question
  Esc      - Edit question
  q        - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntVarP(&tuiTopK, "top-k", "k", 0, "passages per question (default from settings)")
	tuiCmd.Flags().StringVarP(&tuiDocument, "document", "d", "", "only search this document")
	tuiCmd.Flags().BoolVar(&tuiRetrieve, "retrieve", false, "start in retrieval-only mode")
	needs(tuiCmd, needsLLM)
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) (err error) {
	// Add panic recovery to get stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			err = fmt.Errorf("TUI panic: %v", r)
		}
	}()

	app, err := newTUIApp(tui.NewPorts(queryService), tui.Options{
		TopK:         tuiTopK,
		DocumentID:   tuiDocument,
		RetrieveOnly: tuiRetrieve,
	})
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}
	if a, ok := app.(*tui.App); ok {
		a.WithContext(cmd.Context())
	}

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
