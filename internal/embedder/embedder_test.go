package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p, err := NewLocalProvider(64, nil)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "python coding standards"})
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "python coding standards"})
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.Equal(t, 64, a.Dimension)
}

func TestLocalProviderSharedTokensAreCloser(t *testing.T) {
	p, err := NewLocalProvider(128, nil)
	require.NoError(t, err)
	ctx := context.Background()

	q, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "python style guide"})
	related, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "python style conventions"})
	unrelated, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "quarterly revenue forecast spreadsheet"})

	assert.Greater(t, dot(q.Vector, related.Vector), dot(q.Vector, unrelated.Vector))
}

func TestLocalProviderUnitNorm(t *testing.T) {
	p, err := NewLocalProvider(32, nil)
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello world"})
	require.NoError(t, err)

	var sum float64
	for _, v := range emb.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestLocalProviderEmptyText(t *testing.T) {
	p, _ := NewLocalProvider(32, nil)
	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{})
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProviderBatch(t *testing.T) {
	p, _ := NewLocalProvider(32, nil)
	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"one", "two"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderLocal, resp.Provider)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"ok", ""}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCacheDeepCopy(t *testing.T) {
	c := NewCache(10)
	c.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Hash: "h"})

	got, ok := c.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := c.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: 1, MaxDelay: 5, Multiplier: 2}

	calls := 0
	out, err := retryWithBackoff(ctx, cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, assert.AnError
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = retryWithBackoff(ctx, cfg, func() (int, error) {
		calls++
		return 0, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
