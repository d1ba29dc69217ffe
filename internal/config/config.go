package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultSimilarityThreshold is the default cosine similarity above which
	// two labels are considered the same concept label.
	DefaultSimilarityThreshold = 0.85

	// DefaultBatchLimit is the default number of rows one pipeline call processes.
	DefaultBatchLimit = 100

	// MaxBatchLimit caps the per-call limit; caller-requested limits are
	// clamped into [1, MaxBatchLimit].
	MaxBatchLimit = 1000
)

// Config holds all configuration for reviewlens.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Store      StoreConfig      `mapstructure:"store"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	API        APIConfig        `mapstructure:"api"`
	Business   BusinessConfig   `mapstructure:"business"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic Claude API settings used by the concept
// extractor, topic grouper and topic describer.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of AnthropicConfig with the API key masked.
func (c AnthropicConfig) String() string {
	return fmt.Sprintf("AnthropicConfig{APIKey:%s, Model:%s}", maskAPIKey(c.APIKey), c.Model)
}

// EmbeddingsConfig holds embedding service settings. Provider selects the
// backend: "openai" (hosted API) or "ollama" (local instance); BaseURL is
// interpreted by the selected provider.
type EmbeddingsConfig struct {
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
}

// String returns a safe representation of EmbeddingsConfig with the API key masked.
func (c EmbeddingsConfig) String() string {
	return fmt.Sprintf("EmbeddingsConfig{APIKey:%s, Model:%s, Dimension:%d}",
		maskAPIKey(c.APIKey), c.Model, c.Dimension)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ClusterConfig holds label clustering tunables. The threshold and distance
// function are configuration, not per-call arguments, so they can be adjusted
// without code changes.
type ClusterConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	Distance            string  `mapstructure:"distance"`
}

// PipelineConfig holds per-call batch limit defaults and caps.
type PipelineConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// ClampLimit clamps a caller-requested limit into [1, MaxLimit], substituting
// DefaultLimit when the caller passes zero or a negative value.
func (p PipelineConfig) ClampLimit(requested int) int {
	if requested <= 0 {
		requested = p.DefaultLimit
	}
	if requested > p.MaxLimit {
		return p.MaxLimit
	}
	if requested < 1 {
		return 1
	}
	return requested
}

// SchedulerConfig holds backlog sweep settings. AuthToken is the shared
// secret required to trigger a sweep over HTTP.
type SchedulerConfig struct {
	AuthToken              string `mapstructure:"auth_token"`
	MaxIterations          int    `mapstructure:"max_iterations"`
	LocationTimeoutSeconds int    `mapstructure:"location_timeout_seconds"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// BusinessConfig holds the business context injected into extraction prompts.
type BusinessConfig struct {
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	v.SetDefault("embeddings.provider", "openai")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.base_url", "https://api.openai.com/v1/embeddings")
	v.SetDefault("embeddings.dimension", 768)

	v.SetDefault("store.db_path", filepath.Join(homeDir(), ".reviewlens", "reviewlens.db"))

	v.SetDefault("cluster.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("cluster.distance", "cosine")

	v.SetDefault("pipeline.default_limit", DefaultBatchLimit)
	v.SetDefault("pipeline.max_limit", MaxBatchLimit)

	v.SetDefault("scheduler.auth_token", "")
	v.SetDefault("scheduler.max_iterations", 50)
	v.SetDefault("scheduler.location_timeout_seconds", 300)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("business.name", "")
	v.SetDefault("business.category", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".reviewlens"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("REVIEWLENS")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("embeddings.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("store.db_path", "REVIEWLENS_DB_PATH")
	_ = v.BindEnv("scheduler.auth_token", "REVIEWLENS_SCHEDULER_TOKEN")
	_ = v.BindEnv("api.listen_addr", "REVIEWLENS_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "REVIEWLENS_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path must not be empty")
	}
	if c.Embeddings.Provider != "openai" && c.Embeddings.Provider != "ollama" {
		return fmt.Errorf("embeddings.provider must be one of: openai, ollama")
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.base_url must not be empty")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be greater than 0")
	}
	if c.Cluster.SimilarityThreshold <= 0 || c.Cluster.SimilarityThreshold > 1 {
		return fmt.Errorf("cluster.similarity_threshold must be in (0, 1]")
	}
	if c.Cluster.Distance != "cosine" && c.Cluster.Distance != "dot" {
		return fmt.Errorf("cluster.distance must be one of: cosine, dot")
	}
	if c.Pipeline.DefaultLimit <= 0 {
		return fmt.Errorf("pipeline.default_limit must be greater than 0")
	}
	if c.Pipeline.MaxLimit < c.Pipeline.DefaultLimit {
		return fmt.Errorf("pipeline.max_limit (%d) must be >= pipeline.default_limit (%d)",
			c.Pipeline.MaxLimit, c.Pipeline.DefaultLimit)
	}
	if c.Scheduler.MaxIterations <= 0 {
		return fmt.Errorf("scheduler.max_iterations must be greater than 0")
	}
	if c.Scheduler.LocationTimeoutSeconds <= 0 {
		return fmt.Errorf("scheduler.location_timeout_seconds must be greater than 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
