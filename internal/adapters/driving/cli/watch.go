package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driving/watch"
)

var (
	watchDebounce time.Duration
	watchNoScan   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep a folder of notes indexed",
	Long: `Indexes every .md, .markdown and .txt file under the folder, then watches it.
Created and modified files are re-indexed, removed files are deleted from the
index. Document ids are paths relative to the folder. Hidden files and folders
are ignored. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "wait this long after the last change")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "skip the initial full index")
	needs(watchCmd, needsIndex)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil || documentService == nil {
		return errors.New("ingest service not configured")
	}

	w, err := watch.New(args[0], ingestService, documentService,
		watch.WithDebounce(watchDebounce),
		watch.WithLoader(documentLoader),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !watchNoScan {
		cmd.Printf("Indexing %s...\n", w.Root())
		events, err := w.Scan(ctx)
		for _, ev := range events {
			printWatchEvent(cmd, ev)
		}
		if err != nil {
			return fmt.Errorf("initial scan failed: %w", err)
		}
	}

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", w.Root())

	events := make(chan watch.Event)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, events)
		close(events)
	}()

	for ev := range events {
		printWatchEvent(cmd, ev)
	}
	return <-done
}

func printWatchEvent(cmd *cobra.Command, ev watch.Event) {
	switch {
	case ev.Err != nil:
		cmd.PrintErrf("  ! %s: %v\n", ev.DocumentID, ev.Err)
	case ev.Type == watch.ChangeRemoved:
		cmd.Printf("  - %s\n", ev.DocumentID)
	default:
		cmd.Printf("  + %s (%d chunks)\n", ev.DocumentID, ev.Chunks)
	}
}
