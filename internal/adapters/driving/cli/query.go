package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	queryTopK     int
	queryDocument string
	queryNoExpand bool
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve the passages most relevant to a question",
	Long: `Embeds the question, searches the vector index, re-ranks the candidates
and expands each result with its neighbouring chunks. No language model is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from your notes",
	Long: `Retrieves relevant passages like 'query' and asks the configured language
model to answer from them. Sources are listed after the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, askCmd} {
		c.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from settings)")
		c.Flags().StringVarP(&queryDocument, "document", "d", "", "restrict retrieval to one document id")
		c.Flags().BoolVar(&queryNoExpand, "no-expand", false, "do not merge neighbouring chunks")
		c.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	}
	needs(queryCmd, needsIndex)
	needs(askCmd, needsLLM)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
}

func queryRequest(question string) domain.QueryRequest {
	return domain.QueryRequest{
		Question:   question,
		TopK:       queryTopK,
		DocumentID: queryDocument,
		NoExpand:   queryNoExpand,
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	results, err := queryService.Query(cmd.Context(), queryRequest(args[0]))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, resultsJSON(results))
	}

	if len(results) == 0 {
		cmd.Println("No relevant passages found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		score := fmt.Sprintf("distance %.3f", r.Distance)
		if r.Reranked {
			score = fmt.Sprintf("relevance %.3f", r.RelevanceScore)
		}
		cmd.Printf("  [%d] %s (%s)\n", i+1, displayTitle(r.Chunk), score)
		cmd.Printf("      %s\n", r.Chunk.ID)
		cmd.Println(indent(r.Chunk.Text, "      "))
		cmd.Println()
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	answer, err := queryService.Ask(cmd.Context(), queryRequest(args[0]))
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, map[string]any{
			"question":    answer.Question,
			"answer":      answer.Text,
			"has_context": answer.HasContext,
			"sources":     resultsJSON(answer.Sources),
		})
	}

	cmd.Println(answer.Text)
	if !answer.HasContext {
		cmd.Println()
		cmd.Println("(No matching notes were found; this answer is not grounded in your documents.)")
		return nil
	}

	cmd.Println()
	cmd.Println("Sources:")
	for i := range answer.Sources {
		c := answer.Sources[i].Chunk
		cmd.Printf("  [%d] %s (%s)\n", i+1, displayTitle(c), c.ID)
	}
	return nil
}

type resultJSON struct {
	ChunkID        string          `json:"chunk_id"`
	DocumentID     string          `json:"document_id"`
	Title          string          `json:"title,omitempty"`
	Text           string          `json:"text"`
	OriginalText   string          `json:"original_text,omitempty"`
	Distance       float64         `json:"distance"`
	RelevanceScore float64         `json:"relevance_score,omitempty"`
	Reranked       bool            `json:"reranked"`
	Expanded       bool            `json:"expanded"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
}

func resultsJSON(results []domain.ExpandedResult) []resultJSON {
	out := make([]resultJSON, len(results))
	for i := range results {
		r := &results[i]
		out[i] = resultJSON{
			ChunkID:        r.Chunk.ID,
			DocumentID:     r.Chunk.DocumentID,
			Title:          r.Chunk.Title(),
			Text:           r.Chunk.Text,
			Distance:       r.Distance,
			RelevanceScore: r.RelevanceScore,
			Reranked:       r.Reranked,
			Expanded:       r.IsExpanded,
			Metadata:       r.Chunk.Metadata,
		}
		if r.IsExpanded {
			out[i].OriginalText = r.OriginalText
		}
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func displayTitle(c domain.Chunk) string {
	if title := c.Title(); title != "" {
		return title
	}
	return c.DocumentID
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
