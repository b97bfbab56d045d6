package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/normalisers"
)

var (
	ingestID    string
	ingestTitle string
	ingestText  string
	ingestMeta  []string
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|-]",
	Short: "Add a document to the index",
	Long: `Chunks, embeds and indexes a plain text or markdown document.

The document is read from a file, from standard input ("-"), or from --text.
Markdown is reduced to plain text before chunking; code fences are kept.

When --id names an existing document, its chunks are replaced.

Examples:
  recall ingest lecture-3.md
  recall ingest --id biology/cells --meta course=bio101 --meta week=3 cells.md
  pbpaste | recall ingest --title "Scratch notes" -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id (default: generated)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (default: first heading or file name)")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "ingest this text instead of a file")
	ingestCmd.Flags().StringArrayVar(&ingestMeta, "meta", nil, "metadata key=value, repeatable")
	needs(ingestCmd, needsIndex)
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	meta, err := parseMeta(ingestMeta)
	if err != nil {
		return err
	}

	doc, err := loadIngestDocument(cmd, args, meta)
	if err != nil {
		return err
	}

	req := domain.IngestRequest{
		DocumentID: ingestID,
		Title:      doc.Title,
		Text:       doc.Content,
		Metadata:   doc.Metadata,
	}
	if ingestTitle != "" {
		req.Title = ingestTitle
	}

	ingest := ingestService.Ingest
	if ingestID != "" {
		ingest = ingestService.Replace
	}
	result, err := ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	printIngestResult(cmd, result)
	if result.Failed() {
		return fmt.Errorf("%w: every batch failed", domain.ErrEmbeddingFailure)
	}
	return nil
}

func loadIngestDocument(cmd *cobra.Command, args []string, meta domain.Metadata) (*domain.Document, error) {
	ctx := cmd.Context()

	switch {
	case ingestText != "" && len(args) > 0:
		return nil, fmt.Errorf("%w: use either --text or a file, not both", domain.ErrInvalidInput)
	case ingestText != "":
		return documentLoader.LoadBytes(ctx, "", "text/plain", []byte(ingestText), meta)
	case len(args) == 0 || args[0] == "-":
		if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return nil, fmt.Errorf("%w: no input; pass a file, --text, or pipe text to stdin", domain.ErrInvalidInput)
		}
		data, err := io.ReadAll(io.LimitReader(stdin, normalisers.MaxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		if len(data) > normalisers.MaxFileSize {
			return nil, fmt.Errorf("%w: input exceeds %d bytes", domain.ErrInvalidInput, normalisers.MaxFileSize)
		}
		mimeType := "text/plain"
		if looksLikeMarkdown(data) {
			mimeType = "text/markdown"
		}
		return documentLoader.LoadBytes(ctx, "-", mimeType, data, meta)
	default:
		return documentLoader.LoadFile(ctx, args[0], meta)
	}
}

// looksLikeMarkdown guesses the format of piped input from its first line.
func looksLikeMarkdown(data []byte) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return strings.HasPrefix(first, "# ") || strings.HasPrefix(first, "---")
}

// parseMeta parses repeated key=value flags. Values become numbers or
// booleans when they parse as one.
func parseMeta(pairs []string) (domain.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(domain.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: metadata %q must be key=value", domain.ErrInvalidInput, pair)
		}
		meta[key] = domain.ParseValue(value)
	}
	return meta, nil
}

func printIngestResult(cmd *cobra.Command, r *domain.IngestResult) {
	cmd.Printf("Document: %s\n", r.DocumentID)
	cmd.Printf("  Chunks:     %d/%d indexed\n", r.ChunksCreated, r.TotalChunks)
	cmd.Printf("  Characters: %d\n", r.TotalCharacters)
	if r.EmbeddingDimension > 0 {
		cmd.Printf("  Dimension:  %d\n", r.EmbeddingDimension)
	}
	if r.Partial() {
		cmd.Printf("  Warning: %d chunks failed (%.0f%% indexed)\n", r.ChunksFailed, r.SuccessRate()*100)
		for _, b := range r.FailedBatches() {
			cmd.Printf("    batch %d: %s\n", b.Index, b.Err)
		}
	}
}
