package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	documentsJSON bool
	showChunks    bool
	resetYes      bool
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "List indexed documents",
	Args:    cobra.NoArgs,
	RunE:    runDocuments,
}

var showCmd = &cobra.Command{
	Use:   "show [document-id]",
	Short: "Print the stored chunks of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Remove a document and its chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Describe the vector index",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every document from the index",
	Long: `Removes every chunk from the vector index. Settings and prompts are kept.
Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	showCmd.Flags().BoolVar(&showChunks, "chunks", false, "print chunk boundaries")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")

	for _, c := range []*cobra.Command{documentsCmd, showCmd, deleteCmd, statsCmd, resetCmd} {
		needs(c, needsIndex)
		rootCmd.AddCommand(c)
	}
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentsJSON {
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	cmd.Printf("Documents (%d):\n", len(docs))
	cmd.Println()
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		cmd.Printf("  %s\n", d.ID)
		cmd.Printf("    Title:  %s\n", title)
		if d.IndexedChunks < d.TotalChunks {
			cmd.Printf("    Chunks: %d of %d (partially indexed)\n", d.IndexedChunks, d.TotalChunks)
		} else {
			cmd.Printf("    Chunks: %d\n", d.IndexedChunks)
		}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	chunks, err := documentService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	for i := range chunks {
		if showChunks {
			cmd.Printf("--- %s ---\n", chunks[i].ID)
		}
		cmd.Println(chunks[i].Text)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	result, err := documentService.Delete(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if !result.Found {
		cmd.Printf("Document %s not found.\n", result.DocumentID)
		return nil
	}
	cmd.Printf("Deleted %s (%d chunks).\n", result.DocumentID, result.ChunksDeleted)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	stats, err := documentService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	cmd.Println("[Index]")
	cmd.Printf("  Backend:    %s\n", stats.Backend)
	if stats.Collection != "" {
		cmd.Printf("  Collection: %s\n", stats.Collection)
	}
	cmd.Printf("  Chunks:     %d\n", stats.TotalChunks)
	if stats.EmbeddingModel != "" {
		cmd.Printf("  Model:      %s\n", stats.EmbeddingModel)
	}
	if stats.EmbeddingDimension > 0 {
		cmd.Printf("  Dimension:  %d\n", stats.EmbeddingDimension)
	}
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetYes {
		return errors.New("refusing to reset without --yes")
	}
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	cmd.Println("Index reset.")
	return nil
}
