// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/silohq/silosearch/pkg/types"
)

// Config is the resolved engine configuration.
type Config struct {
	// Storage
	DBPath string

	// Namespaces
	DefaultNamespace string

	// Fusion
	VectorWeight  float64
	KeywordWeight float64
	RerankTopK    int

	// Query cache
	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Existence filter
	BloomCapacity  uint
	BloomErrorRate float64

	// Embedder
	EmbedProvider string // "local" or "ollama"
	EmbedDim      int
	OllamaURL     string
	OllamaModel   string

	// Per-namespace search deadline for fan-out queries
	SearchTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:           getString("SILOSEARCH_DB_PATH", defaultDBPath()),
		DefaultNamespace: getString("DEFAULT_NAMESPACE", types.DefaultNamespace),
		VectorWeight:     getFloat("VECTOR_WEIGHT", 0.7),
		KeywordWeight:    getFloat("KEYWORD_WEIGHT", 0.3),
		RerankTopK:       getInt("RERANK_TOP_K", 100),
		CacheEnabled:     getBool("ENABLE_CACHE", true),
		CacheTTL:         time.Duration(getInt("CACHE_TTL", 3600)) * time.Second,
		CacheMaxEntries:  getInt("CACHE_MAX_ENTRIES", 10000),
		BloomCapacity:    uint(getInt("BLOOM_FILTER_CAPACITY", 1000000)),
		BloomErrorRate:   getFloat("BLOOM_FILTER_ERROR_RATE", 0.1),
		EmbedProvider:    getString("EMBED_PROVIDER", "local"),
		EmbedDim:         getInt("EMBED_DIM", 384),
		OllamaURL:        getString("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:      getString("OLLAMA_MODEL", "nomic-embed-text"),
		SearchTimeout:    time.Duration(getInt("SEARCH_TIMEOUT", 30)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.VectorWeight < 0 || c.KeywordWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be >= 0", types.ErrInvalidArgument)
	}
	if c.VectorWeight+c.KeywordWeight == 0 {
		return fmt.Errorf("%w: fusion weights must not both be zero", types.ErrInvalidArgument)
	}
	if c.RerankTopK < 1 {
		return fmt.Errorf("%w: RERANK_TOP_K must be >= 1", types.ErrInvalidArgument)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("%w: CACHE_MAX_ENTRIES must be >= 1", types.ErrInvalidArgument)
	}
	if c.BloomErrorRate <= 0 || c.BloomErrorRate >= 1 {
		return fmt.Errorf("%w: BLOOM_FILTER_ERROR_RATE must be in (0, 1)", types.ErrInvalidArgument)
	}
	if c.DefaultNamespace == "" {
		return fmt.Errorf("%w: DEFAULT_NAMESPACE must not be empty", types.ErrInvalidArgument)
	}
	switch c.EmbedProvider {
	case "local", "ollama":
	default:
		return fmt.Errorf("%w: unknown EMBED_PROVIDER %q", types.ErrInvalidArgument, c.EmbedProvider)
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "silosearch.db"
	}
	return home + "/.silosearch/silosearch.db"
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
