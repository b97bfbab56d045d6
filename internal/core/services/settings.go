package services

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedTimeout   = "embedding.timeout"
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMTimeout     = "llm.timeout"
	keyRerankProvider = "rerank.provider"
	keyRerankBaseURL  = "rerank.base_url"
	keyRerankModel    = "rerank.model"
	keyRerankAPIKey   = "rerank.api_key"
	keyRerankTimeout  = "rerank.timeout"
	keyRerankRPS      = "rerank.requests_per_second"
	keyChunkSize      = "chunking.size"
	keyChunkOverlap   = "chunking.overlap"
	keyBatchSize      = "ingest.batch_size"
	keyBatchPause     = "ingest.batch_pause"
	keyTopK           = "retrieval.top_k"
	keyOverFetch      = "retrieval.over_fetch"
	keyMinCandidates  = "retrieval.min_candidates"
	keyExpand         = "retrieval.expand"
	keyVectorBackend  = "vector.backend"
	keyVectorColl     = "vector.collection"
	keyMilvusAddress  = "vector.milvus_address"
	keyMilvusUsername = "vector.milvus_username"
	keyMilvusPassword = "vector.milvus_password"
)

// Environment variables that supply API keys when the config has none.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvOpenAIAPIKey    = "RECALL_OPENAI_API_KEY"
	EnvAnthropicAPIKey = "RECALL_ANTHROPIC_API_KEY"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
	kindFloat
	kindDuration
)

// settingDef describes how a key's string form is parsed and checked.
type settingDef struct {
	kind  valueKind
	check func(string) error
}

var settingDefs = map[string]settingDef{
	keyEmbedProvider:  {kindString, oneOf(providerNames(domain.AllEmbeddingProviders()))},
	keyEmbedModel:     {kindString, notEmpty},
	keyEmbedBaseURL:   {kindString, nil},
	keyEmbedAPIKey:    {kindString, nil},
	keyEmbedTimeout:   {kindDuration, nil},
	keyLLMProvider:    {kindString, oneOf(providerNames(domain.AllLLMProviders()))},
	keyLLMModel:       {kindString, notEmpty},
	keyLLMBaseURL:     {kindString, nil},
	keyLLMAPIKey:      {kindString, nil},
	keyLLMTimeout:     {kindDuration, nil},
	keyRerankProvider: {kindString, oneOf([]string{"none", "tei", "jina"})},
	keyRerankBaseURL:  {kindString, nil},
	keyRerankModel:    {kindString, nil},
	keyRerankAPIKey:   {kindString, nil},
	keyRerankTimeout:  {kindDuration, nil},
	keyRerankRPS:      {kindFloat, nil},
	keyChunkSize:      {kindInt, nil},
	keyChunkOverlap:   {kindInt, nil},
	keyBatchSize:      {kindInt, nil},
	keyBatchPause:     {kindDuration, nil},
	keyTopK:           {kindInt, nil},
	keyOverFetch:      {kindInt, nil},
	keyMinCandidates:  {kindInt, nil},
	keyExpand:         {kindBool, nil},
	keyVectorBackend:  {kindString, oneOf([]string{"sqlite", "memory", "milvus"})},
	keyVectorColl:     {kindString, notEmpty},
	keyMilvusAddress:  {kindString, nil},
	keyMilvusUsername: {kindString, nil},
	keyMilvusPassword: {kindString, nil},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
// Missing or invalid values fall back to defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, d.Embedding.Model),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL),
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
			Timeout:  s.getDuration(keyEmbedTimeout, d.Embedding.Timeout),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:    s.getString(keyLLMModel, d.LLM.Model),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL),
			APIKey:   s.configStore.GetString(keyLLMAPIKey),
			Timeout:  s.getDuration(keyLLMTimeout, d.LLM.Timeout),
		},
		Rerank: domain.RerankSettings{
			Provider:          s.getRerankProvider(d.Rerank.Provider),
			BaseURL:           s.configStore.GetString(keyRerankBaseURL),
			Model:             s.configStore.GetString(keyRerankModel),
			APIKey:            s.configStore.GetString(keyRerankAPIKey),
			Timeout:           s.getDuration(keyRerankTimeout, d.Rerank.Timeout),
			RequestsPerSecond: s.getFloat(keyRerankRPS, d.Rerank.RequestsPerSecond),
		},
		Chunking: domain.ChunkingSettings{
			Size:    s.getInt(keyChunkSize, d.Chunking.Size),
			Overlap: s.getNonNegativeInt(keyChunkOverlap, d.Chunking.Overlap),
		},
		Ingest: domain.IngestSettings{
			BatchSize:  s.getInt(keyBatchSize, d.Ingest.BatchSize),
			BatchPause: s.getDuration(keyBatchPause, d.Ingest.BatchPause),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:          ClampTopK(s.getInt(keyTopK, d.Retrieval.TopK), d.Retrieval.TopK),
			OverFetch:     s.getInt(keyOverFetch, d.Retrieval.OverFetch),
			MinCandidates: s.getInt(keyMinCandidates, d.Retrieval.MinCandidates),
			Expand:        s.getBool(keyExpand, d.Retrieval.Expand),
		},
		Vector: domain.VectorSettings{
			Backend:        s.getBackend(d.Vector.Backend),
			Collection:     s.getString(keyVectorColl, d.Vector.Collection),
			MilvusAddress:  s.getString(keyMilvusAddress, d.Vector.MilvusAddress),
			MilvusUsername: s.configStore.GetString(keyMilvusUsername),
			MilvusPassword: s.configStore.GetString(keyMilvusPassword),
		},
	}

	if settings.Embedding.Provider.IsLocal() && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = domain.DefaultOllamaURL
	}
	if settings.LLM.Provider.IsLocal() && settings.LLM.BaseURL == "" {
		settings.LLM.BaseURL = domain.DefaultOllamaURL
	}
	if settings.Embedding.Timeout <= 0 {
		settings.Embedding.Timeout = d.Embedding.Timeout
	}
	if settings.LLM.Timeout <= 0 {
		settings.LLM.Timeout = d.LLM.Timeout
	}
	if settings.Rerank.Timeout <= 0 {
		settings.Rerank.Timeout = d.Rerank.Timeout
	}
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.envAPIKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.envAPIKey(settings.LLM.Provider)
	}

	return settings, nil
}

// Save persists application settings.
// Empty API keys are not written, so keys from the environment never land on disk.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key string
		val any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedTimeout, settings.Embedding.Timeout.String()},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTimeout, settings.LLM.Timeout.String()},
		{keyRerankProvider, string(settings.Rerank.Provider)},
		{keyRerankBaseURL, settings.Rerank.BaseURL},
		{keyRerankModel, settings.Rerank.Model},
		{keyRerankTimeout, settings.Rerank.Timeout.String()},
		{keyRerankRPS, settings.Rerank.RequestsPerSecond},
		{keyChunkSize, settings.Chunking.Size},
		{keyChunkOverlap, settings.Chunking.Overlap},
		{keyBatchSize, settings.Ingest.BatchSize},
		{keyBatchPause, settings.Ingest.BatchPause.String()},
		{keyTopK, settings.Retrieval.TopK},
		{keyOverFetch, settings.Retrieval.OverFetch},
		{keyMinCandidates, settings.Retrieval.MinCandidates},
		{keyExpand, settings.Retrieval.Expand},
		{keyVectorBackend, settings.Vector.Backend.String()},
		{keyVectorColl, settings.Vector.Collection},
		{keyMilvusAddress, settings.Vector.MilvusAddress},
		{keyMilvusUsername, settings.Vector.MilvusUsername},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	secrets := []struct{ key, val string }{
		{keyEmbedAPIKey, settings.Embedding.APIKey},
		{keyLLMAPIKey, settings.LLM.APIKey},
		{keyRerankAPIKey, settings.Rerank.APIKey},
		{keyMilvusPassword, settings.Vector.MilvusPassword},
	}
	for _, v := range secrets {
		if v.val == "" || v.val == s.envAPIKeyFor(v.key, settings) {
			continue
		}
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	return nil
}

// Set parses and stores a single value given in string form.
func (s *SettingsService) Set(key, value string) error {
	def, ok := settingDefs[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)
	if def.check != nil {
		if err := def.check(value); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
	}

	var typed any
	switch def.kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		typed = n
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		typed = b
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		typed = f
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration such as 500ms", domain.ErrInvalidInput, key)
		}
		typed = d.String()
	default:
		typed = value
	}

	if err := s.configStore.Set(key, typed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys lists the settable keys in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingDefs))
	for k := range settingDefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

func (s *SettingsService) envAPIKey(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderOpenAI:
		return s.getenv(EnvOpenAIAPIKey)
	case domain.AIProviderAnthropic:
		return s.getenv(EnvAnthropicAPIKey)
	default:
		return ""
	}
}

func (s *SettingsService) envAPIKeyFor(key string, settings *domain.AppSettings) string {
	switch key {
	case keyEmbedAPIKey:
		return s.envAPIKey(settings.Embedding.Provider)
	case keyLLMAPIKey:
		return s.envAPIKey(settings.LLM.Provider)
	default:
		return ""
	}
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getNonNegativeInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	val := s.configStore.GetInt(key)
	if val < 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	val := s.configStore.GetFloat(key)
	if val < 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getRerankProvider(defaultVal domain.RerankProvider) domain.RerankProvider {
	provider := domain.RerankProvider(s.configStore.GetString(keyRerankProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.VectorBackend) domain.VectorBackend {
	backend := domain.VectorBackend(s.configStore.GetString(keyVectorBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func providerNames(providers []domain.AIProvider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.String()
	}
	return names
}

func oneOf(allowed []string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func notEmpty(v string) error {
	if v == "" {
		return errors.New("must not be empty")
	}
	return nil
}
