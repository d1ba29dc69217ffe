package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BaseURL:   "https://api.openai.com/v1/embeddings",
			Dimension: 768,
		},
		Store: StoreConfig{DBPath: "/tmp/reviewlens-test.db"},
		Cluster: ClusterConfig{
			SimilarityThreshold: 0.85,
			Distance:            "cosine",
		},
		Pipeline: PipelineConfig{DefaultLimit: 100, MaxLimit: 1000},
		Scheduler: SchedulerConfig{
			MaxIterations:          50,
			LocationTimeoutSeconds: 300,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validCfg().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"empty db path", func(c *Config) { c.Store.DBPath = "" }, "db_path"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "cohere" }, "provider"},
		{"empty base url", func(c *Config) { c.Embeddings.BaseURL = "" }, "base_url"},
		{"zero dimension", func(c *Config) { c.Embeddings.Dimension = 0 }, "dimension"},
		{"threshold too high", func(c *Config) { c.Cluster.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"threshold zero", func(c *Config) { c.Cluster.SimilarityThreshold = 0 }, "similarity_threshold"},
		{"bad distance", func(c *Config) { c.Cluster.Distance = "euclidean" }, "distance"},
		{"zero default limit", func(c *Config) { c.Pipeline.DefaultLimit = 0 }, "default_limit"},
		{"max below default", func(c *Config) { c.Pipeline.MaxLimit = 10 }, "max_limit"},
		{"zero iterations", func(c *Config) { c.Scheduler.MaxIterations = 0 }, "max_iterations"},
		{"zero location timeout", func(c *Config) { c.Scheduler.LocationTimeoutSeconds = 0 }, "location_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCfg()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClampLimit(t *testing.T) {
	p := PipelineConfig{DefaultLimit: 100, MaxLimit: 1000}

	assert.Equal(t, 100, p.ClampLimit(0), "zero selects the default")
	assert.Equal(t, 100, p.ClampLimit(-5), "negative selects the default")
	assert.Equal(t, 42, p.ClampLimit(42))
	assert.Equal(t, 1000, p.ClampLimit(5000), "requests above max are capped")
	assert.Equal(t, 1000, p.ClampLimit(1000))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "***", maskAPIKey("short"))
	assert.Equal(t, "sk-a****wxyz", maskAPIKey("sk-abcdefgwxyz"))
}

func TestConfigStringMasksSecrets(t *testing.T) {
	c := AnthropicConfig{APIKey: "sk-ant-supersecretvalue", Model: "m"}
	s := c.String()
	assert.NotContains(t, s, "supersecret")
}
