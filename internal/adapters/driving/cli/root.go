// Package cli provides the cobra command tree for recall.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driven/ai"
	"github.com/custodia-labs/recall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/recall/internal/adapters/driven/metrics"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/core/services"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/normalisers"
	"github.com/custodia-labs/recall/internal/postprocessors"
)

// version is set at build time via -ldflags.
var version = "dev"

// Global flags.
var (
	verbose   bool
	configDir string
	ephemeral bool
)

// Services used by the commands. They are built lazily by the root
// command for the commands that need them.
var (
	ingestService   driving.IngestService
	queryService    driving.QueryService
	studyService    driving.StudyService
	documentService driving.DocumentService
	settingsService driving.SettingsService
	pipelineMetrics *metrics.Metrics
	documentLoader  = normalisers.NewDefaultRegistry()

	servicesReady bool
	closeServices func()
)

// needsAnnotation declares which services a command requires.
const needsAnnotation = "recall.needs"

// Values for needsAnnotation.
const (
	needsSettings = "settings"
	needsIndex    = "index"
	needsLLM      = "llm"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Ask questions of your own notes",
	Long: `recall indexes plain text and markdown notes into a local vector index
and answers questions from them with a language model.

Get started:
  recall ingest notes.md
  recall ask "what is the krebs cycle?"`,
	SilenceUsage:      true,
	PersistentPreRunE: setupServices,
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		teardownServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.recall)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep the index in memory for this run only")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// needs marks cmd as requiring the given services.
func needs(cmd *cobra.Command, level string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[needsAnnotation] = level
}

// setupServices builds the services the command declared it needs.
func setupServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	level := cmd.Annotations[needsAnnotation]
	if level == "" || servicesReady {
		return nil
	}

	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}

	store, err := file.NewConfigStore(dir)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	settingsService = services.NewSettingsService(store, ai.NewConfigValidator())
	if level == needsSettings {
		return nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	logger.Section("Initialise")
	res, err := ai.Initialise(cmd.Context(), *settings, ai.Options{
		DataDir:   filepath.Join(dir, "data"),
		Ephemeral: ephemeral,
		SkipLLM:   level != needsLLM,
	})
	if err != nil {
		return err
	}
	closeServices = res.Close
	for _, w := range res.Warnings {
		cmd.PrintErrf("Warning: %s\n", w)
	}

	prompts, err := file.NewPromptStore(filepath.Join(dir, "prompts"))
	if err != nil {
		res.Close()
		return fmt.Errorf("opening prompts: %w", err)
	}

	pipelineMetrics = metrics.New()

	ingest := services.NewIngestService(
		postprocessors.NewDefaultPipeline(settings.Chunking),
		res.EmbeddingService,
		res.VectorIndex,
		settings.Ingest,
	)
	ingest.SetMetrics(pipelineMetrics)

	builder := services.NewPromptBuilder(prompts)
	query := services.NewQueryService(
		services.NewRetriever(res.EmbeddingService, res.VectorIndex, settings.Retrieval),
		services.NewReranker(res.Scorer),
		services.NewContextExpander(res.VectorIndex),
		builder,
		res.LLMService,
		settings.Retrieval,
	)
	query.SetMetrics(pipelineMetrics)

	ingestService = ingest
	queryService = query
	studyService = services.NewStudyService(query, builder, res.LLMService)
	documentService = services.NewDocumentService(res.VectorIndex, res.EmbeddingService, settings.Vector)
	servicesReady = true

	logger.Debug("services ready (backend=%s, llm=%t, rerank=%t)",
		settings.Vector.Backend, res.LLMService != nil, res.Scorer != nil)
	return nil
}

func teardownServices() {
	if closeServices != nil {
		closeServices()
		closeServices = nil
	}
}

func resolveConfigDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, file.DefaultDirName), nil
}
