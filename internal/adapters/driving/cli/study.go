package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flashcardCount    int
	quizDifficulty    string
	studyDocument     string
	studyJSON         bool
	quizInteractive   bool
	quizDifficulties  = []string{"easy", "medium", "hard"}
	quizOptionLetters = "ABCDEFGH"
)

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards [topic]",
	Short: "Generate flashcards about a topic",
	Long: `Retrieves notes about the topic and asks the language model to write
question and answer flashcards from them.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlashcards,
}

var quizCmd = &cobra.Command{
	Use:   "quiz [topic]",
	Short: "Generate a multiple-choice question about a topic",
	Long: `Retrieves notes about the topic and asks the language model for one
multiple-choice question. With --interactive the answer is hidden until you pick.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuiz,
}

func init() {
	flashcardsCmd.Flags().IntVarP(&flashcardCount, "count", "n", 5, "number of flashcards")
	quizCmd.Flags().StringVar(&quizDifficulty, "difficulty", "medium", "easy, medium or hard")
	quizCmd.Flags().BoolVarP(&quizInteractive, "interactive", "i", false, "ask before revealing the answer")
	for _, c := range []*cobra.Command{flashcardsCmd, quizCmd} {
		c.Flags().StringVarP(&studyDocument, "document", "d", "", "restrict to one document id")
		c.Flags().BoolVar(&studyJSON, "json", false, "output as JSON")
		needs(c, needsLLM)
		rootCmd.AddCommand(c)
	}
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	if studyService == nil {
		return errors.New("study service not configured")
	}
	if flashcardCount < 1 {
		return errors.New("--count must be at least 1")
	}

	cards, err := studyService.Flashcards(cmd.Context(), args[0], flashcardCount, studyDocument)
	if err != nil {
		return fmt.Errorf("flashcards failed: %w", err)
	}

	if studyJSON {
		return printJSON(cmd, cards)
	}

	for i, c := range cards {
		cmd.Printf("Card %d\n", i+1)
		cmd.Printf("  Q: %s\n", c.Front)
		cmd.Printf("  A: %s\n", c.Back)
		cmd.Println()
	}
	return nil
}

func runQuiz(cmd *cobra.Command, args []string) error {
	if studyService == nil {
		return errors.New("study service not configured")
	}
	difficulty := strings.ToLower(quizDifficulty)
	if !containsString(quizDifficulties, difficulty) {
		return fmt.Errorf("--difficulty must be one of %s", strings.Join(quizDifficulties, ", "))
	}

	q, err := studyService.Quiz(cmd.Context(), args[0], difficulty, studyDocument)
	if err != nil {
		return fmt.Errorf("quiz failed: %w", err)
	}

	if studyJSON {
		return printJSON(cmd, q)
	}

	cmd.Println(q.Question)
	cmd.Println()
	if len(q.Options) > len(quizOptionLetters) {
		q.Options = q.Options[:len(quizOptionLetters)]
	}
	correct := -1
	for i, o := range q.Options {
		cmd.Printf("  %c) %s\n", quizOptionLetters[i], o.Text)
		if o.IsCorrect {
			correct = i
		}
	}
	cmd.Println()

	if quizInteractive {
		cmd.Print("Your answer: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		picked := strings.ToUpper(readLine(reader))
		idx := strings.Index(quizOptionLetters[:len(q.Options)], picked)
		if len(picked) == 1 && idx == correct {
			cmd.Println("Correct!")
		} else {
			cmd.Println("Not quite.")
		}
	}

	if correct >= 0 {
		cmd.Printf("Answer: %c) %s\n", quizOptionLetters[correct], q.Options[correct].Text)
	}
	if q.Explanation != "" {
		cmd.Printf("Explanation: %s\n", q.Explanation)
	}
	if len(q.Sources) > 0 {
		cmd.Printf("Sources: %s\n", strings.Join(q.Sources, ", "))
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
