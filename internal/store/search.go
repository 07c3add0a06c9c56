package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/silohq/silosearch/internal/fusion"
	"github.com/silohq/silosearch/pkg/types"
)

// ctxCheckStride bounds how many rows a scan processes between context
// checks.
const ctxCheckStride = 256

// KeywordSearchFunc resolves lowercased query terms to scored chunk IDs,
// higher scores first. The registry binds this to the persistent full-text
// index.
type KeywordSearchFunc func(ctx context.Context, terms []string, limit int) ([]fusion.Scored, error)

// SearchVector scans all vector rows with exact L2 distance and returns the
// top hits as similarities (1 / (1 + distance)), so higher is better like
// every other channel. An empty store returns empty, not an error.
func (s *NamespaceStore) SearchVector(ctx context.Context, query []float32, limit int) ([]fusion.Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, nil
	}
	if s.dim != 0 && len(query) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", types.ErrInvalidArgument, len(query), s.dim)
	}

	hits := make([]fusion.Scored, 0, len(s.chunks))
	for i, vec := range s.vectors {
		if i%ctxCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(vec) != len(query) {
			continue
		}
		var sum float64
		for j := range vec {
			d := float64(vec[j]) - float64(query[j])
			sum += d * d
		}
		dist := math.Sqrt(sum)
		hits = append(hits, fusion.Scored{ID: s.chunks[i].ID, Score: 1 / (1 + dist)})
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchKeyword resolves the query terms through the bound full-text
// searcher. A missing or failing searcher surfaces as ErrUnavailable so the
// caller can fall back to the overlap channel.
func (s *NamespaceStore) SearchKeyword(ctx context.Context, terms []string, limit int) ([]fusion.Scored, error) {
	if s.Len() == 0 || len(terms) == 0 {
		return nil, nil
	}

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		lowered = append(lowered, Tokenize(t)...)
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	if s.keyword == nil {
		return nil, fmt.Errorf("keyword index not attached: %w", types.ErrUnavailable)
	}
	hits, err := s.keyword(ctx, lowered, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("keyword search: %v: %w", err, types.ErrUnavailable)
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchOverlap is the last-resort channel: it counts how many distinct
// query terms appear in each chunk's text.
func (s *NamespaceStore) SearchOverlap(ctx context.Context, terms []string, limit int) ([]fusion.Scored, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var scanErr error
	s.withAux(func() {
		seen := make(map[string]struct{})
		rows := 0
		for _, raw := range terms {
			for _, term := range Tokenize(raw) {
				if _, dup := seen[term]; dup {
					continue
				}
				seen[term] = struct{}{}
				for _, id := range s.keywordIndex[term] {
					if rows%ctxCheckStride == 0 {
						if err := ctx.Err(); err != nil {
							scanErr = err
							return
						}
					}
					rows++
					counts[id]++
				}
			}
		}
	})
	if scanErr != nil {
		return nil, scanErr
	}

	hits := make([]fusion.Scored, 0, len(counts))
	for id, n := range counts {
		hits = append(hits, fusion.Scored{ID: id, Score: float64(n)})
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// sortHits orders by score descending, ties by chunk ID ascending.
func sortHits(hits []fusion.Scored) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
