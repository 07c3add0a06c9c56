package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohq/silosearch/pkg/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.VectorWeight)
	assert.Equal(t, 0.3, cfg.KeywordWeight)
	assert.Equal(t, 100, cfg.RerankTopK)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, types.DefaultNamespace, cfg.DefaultNamespace)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, "local", cfg.EmbedProvider)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_WEIGHT", "0.5")
	t.Setenv("KEYWORD_WEIGHT", "0.5")
	t.Setenv("RERANK_TOP_K", "25")
	t.Setenv("ENABLE_CACHE", "false")
	t.Setenv("CACHE_TTL", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.VectorWeight)
	assert.Equal(t, 25, cfg.RerankTopK)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RERANK_TOP_K", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RerankTopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.VectorWeight = -1 }},
		{"zero weights", func(c *Config) { c.VectorWeight = 0; c.KeywordWeight = 0 }},
		{"zero topk", func(c *Config) { c.RerankTopK = 0 }},
		{"bad bloom rate", func(c *Config) { c.BloomErrorRate = 1.5 }},
		{"empty default namespace", func(c *Config) { c.DefaultNamespace = "" }},
		{"unknown provider", func(c *Config) { c.EmbedProvider = "cohere" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), types.ErrInvalidArgument)
		})
	}
}
