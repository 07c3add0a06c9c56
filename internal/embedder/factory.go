package embedder

import (
	"fmt"
	"strings"

	"github.com/silohq/silosearch/internal/config"
)

// New creates an embedder from engine configuration.
func New(cfg *config.Config) (Embedder, error) {
	cache := NewCache(10000)

	switch strings.ToLower(cfg.EmbedProvider) {
	case ProviderLocal:
		return NewLocalProvider(cfg.EmbedDim, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.EmbedDim, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.EmbedProvider)
	}
}
