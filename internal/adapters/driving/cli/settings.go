package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, chunking, retrieval and the vector index.

Settings are stored in config.toml under the config directory. Use 'set' for
any single key or the 'embedding' and 'llm' subcommands for guided setup.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a single setting",
	Long: `Set a single setting by key, for example:

  recall settings set retrieval.top_k 8
  recall settings set vector.backend milvus
  recall settings set rerank.provider tei
  recall settings set rerank.base_url http://localhost:8080

Re-ranking is off by default (rerank.provider none) and results keep vector
distance order. It needs a running TEI or Jina-compatible rerank server.

Run 'recall settings keys' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List setting keys",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider used for ingestion and retrieval.

Changing the embedding model changes the vector dimension; run 'recall reset --yes'
and re-ingest afterwards.`,
	RunE: runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Configure the LLM provider used to answer questions and generate study material.`,
	RunE:  runSettingsLLM,
}

func init() {
	for _, c := range []*cobra.Command{
		settingsCmd, settingsShowCmd, settingsSetCmd, settingsKeysCmd, settingsEmbeddingCmd, settingsLLMCmd,
	} {
		needs(c, needsSettings)
	}
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	// Embedding settings
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	printAPIKey(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	cmd.Printf("  Timeout: %s\n", settings.Embedding.Timeout)
	printStatus(cmd, settings.Embedding.IsConfigured())
	cmd.Println()

	// LLM settings
	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.LLM.Model)
	if settings.LLM.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
	}
	printAPIKey(cmd, settings.LLM.Provider, settings.LLM.APIKey)
	cmd.Printf("  Timeout: %s\n", settings.LLM.Timeout)
	printStatus(cmd, settings.LLM.IsConfigured())
	cmd.Println()

	// Re-ranking settings
	cmd.Println("[Re-ranking]")
	cmd.Printf("  Provider: %s\n", settings.Rerank.Provider.Description())
	if settings.Rerank.Provider != domain.RerankProviderNone {
		cmd.Printf("  Base URL: %s\n", settings.Rerank.BaseURL)
		if settings.Rerank.Model != "" {
			cmd.Printf("  Model: %s\n", settings.Rerank.Model)
		}
		if settings.Rerank.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Rerank.APIKey))
		}
		if settings.Rerank.RequestsPerSecond > 0 {
			cmd.Printf("  Rate limit: %g/s\n", settings.Rerank.RequestsPerSecond)
		}
		printStatus(cmd, settings.Rerank.IsConfigured())
	}
	cmd.Println()

	// Pipeline settings
	cmd.Println("[Pipeline]")
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Chunking.Size, settings.Chunking.Overlap)
	cmd.Printf("  Batch size: %d (pause %s)\n", settings.Ingest.BatchSize, settings.Ingest.BatchPause)
	cmd.Printf("  Top K: %d\n", settings.Retrieval.TopK)
	cmd.Printf("  Candidates: max(%d x top k, %d)\n", settings.Retrieval.OverFetch, settings.Retrieval.MinCandidates)
	cmd.Printf("  Expand neighbours: %t\n", settings.Retrieval.Expand)
	cmd.Println()

	// Vector index settings
	cmd.Println("[Vector Index]")
	cmd.Printf("  Backend: %s\n", settings.Vector.Backend)
	if settings.Vector.Backend == domain.VectorBackendMilvus {
		cmd.Printf("  Address: %s\n", settings.Vector.MilvusAddress)
		cmd.Printf("  Collection: %s\n", settings.Vector.Collection)
		if settings.Vector.MilvusUsername != "" {
			cmd.Printf("  Username: %s\n", settings.Vector.MilvusUsername)
		}
	}
	return nil
}

func printAPIKey(cmd *cobra.Command, provider domain.AIProvider, key string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if key != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(key))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
}

func printStatus(cmd *cobra.Command, configured bool) {
	status := "configured"
	if !configured {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	shown := value
	if strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "password") {
		shown = maskAPIKey(value)
	}
	cmd.Printf("%s = %s\n", key, shown)
	if strings.HasPrefix(key, "embedding.") {
		cmd.Println("Note: if the embedding dimension changed, run 'recall reset --yes' and re-ingest.")
	}
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureLLMProvider(cmd, reader)
}

// providerSetup describes one interactive provider flow.
type providerSetup struct {
	section   string
	label     string
	providers []domain.AIProvider
	models    map[domain.AIProvider]string
	validate  func() error
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	return configureProvider(cmd, reader, providerSetup{
		section:   "embedding",
		label:     "Embedding",
		providers: domain.AllEmbeddingProviders(),
		models:    domain.DefaultEmbeddingModels(),
		validate:  settingsService.ValidateEmbeddingConfig,
	})
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM - intentional for CLI flow clarity
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	return configureProvider(cmd, reader, providerSetup{
		section:   "llm",
		label:     "LLM",
		providers: domain.AllLLMProviders(),
		models:    domain.DefaultLLMModels(),
		validate:  settingsService.ValidateLLMConfig,
	})
}

func configureProvider(cmd *cobra.Command, reader *bufio.Reader, setup providerSetup) error {
	cmd.Printf("Select %s Provider\n", setup.label)
	for i, p := range setup.providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(setup.providers), 1)
	selectedProvider := setup.providers[idx-1]

	// Get model
	defaultModel := setup.models[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get base URL for local providers
	var baseURL string
	if selectedProvider.IsLocal() {
		cmd.Printf("Enter base URL [%s]: ", domain.DefaultOllamaURL)
		baseURL = readLine(reader)
		if baseURL == "" {
			baseURL = domain.DefaultOllamaURL
		}
	}

	// Get API key if needed
	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	values := [][2]string{
		{setup.section + ".provider", selectedProvider.String()},
		{setup.section + ".model", model},
		{setup.section + ".base_url", baseURL},
		{setup.section + ".api_key", apiKey},
	}
	for _, kv := range values {
		if err := settingsService.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to configure %s provider: %w", setup.section, err)
		}
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := setup.validate(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", setup.section, err)
	}
	cmd.Println("OK")

	cmd.Printf("%s provider configured: %s (%s)\n\n", setup.label, selectedProvider.Description(), model)
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo from a terminal, otherwise a plain line.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
