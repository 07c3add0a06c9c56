package fusion

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/silohq/silosearch/pkg/types"
)

// Default fusion parameters.
const (
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
	DefaultRerankTopK    = 100
)

// Backend is the namespace store surface the engine ranks over. Channel
// methods emit raw scores oriented higher-is-better; FilterIDs reports
// whether the filter map constrained anything at all.
type Backend interface {
	SearchVector(ctx context.Context, query []float32, limit int) ([]Scored, error)
	SearchKeyword(ctx context.Context, terms []string, limit int) ([]Scored, error)
	SearchOverlap(ctx context.Context, terms []string, limit int) ([]Scored, error)
	FilterIDs(filters map[string]interface{}) (ids map[string]struct{}, constrained bool)
	Chunk(id string) (*types.Chunk, bool)
	Touch(id string)
	Namespace() string
}

// Config holds the fusion weights and the per-channel over-fetch depth.
type Config struct {
	VectorWeight  float64
	KeywordWeight float64
	RerankTopK    int
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = DefaultVectorWeight
		c.KeywordWeight = DefaultKeywordWeight
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = DefaultRerankTopK
	}
	return c
}

// Request is one hybrid search over a single namespace. A nil QueryVector
// means the vector channel is unavailable for this request.
type Request struct {
	QueryVector []float32
	Terms       []string
	K           int
	Threshold   float64
	Filters     map[string]interface{}
}

// Engine fuses the two channels of one Backend.
type Engine struct {
	backend Backend
	cfg     Config
}

// NewEngine creates a fusion engine over the given backend.
func NewEngine(backend Backend, cfg Config) *Engine {
	return &Engine{backend: backend, cfg: cfg.withDefaults()}
}

type channelResult struct {
	hits []Scored
	err  error
}

// Search runs the hybrid pipeline: metadata candidates, both channels at
// RerankTopK depth, intersection, per-channel normalization, weighted sum,
// deterministic ordering, threshold cut. Returned chunks are clones with
// their usage counters already bumped.
func (e *Engine) Search(ctx context.Context, req Request) ([]*types.RankedResult, error) {
	if req.K < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1", types.ErrInvalidArgument)
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0, 1]", types.ErrInvalidArgument)
	}

	// Resolve the candidate set first: a constrained filter that matches
	// nothing short-circuits the whole search.
	candidates, constrained := e.backend.FilterIDs(req.Filters)
	if constrained && len(candidates) == 0 {
		return nil, nil
	}

	vecCh := make(chan channelResult, 1)
	kwCh := make(chan channelResult, 1)

	go func() {
		if req.QueryVector == nil {
			vecCh <- channelResult{err: fmt.Errorf("vector channel: %w", types.ErrUnavailable)}
			return
		}
		hits, err := e.backend.SearchVector(ctx, req.QueryVector, e.cfg.RerankTopK)
		vecCh <- channelResult{hits: hits, err: err}
	}()

	go func() {
		hits, err := e.backend.SearchKeyword(ctx, req.Terms, e.cfg.RerankTopK)
		if err != nil {
			// Degrade to plain term overlap over the raw text
			hits, err = e.backend.SearchOverlap(ctx, req.Terms, e.cfg.RerankTopK)
		}
		kwCh <- channelResult{hits: hits, err: err}
	}()

	var vec, kw channelResult
	select {
	case vec = <-vecCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case kw = <-kwCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vecDown := vec.err != nil
	kwDown := kw.err != nil
	if vecDown && kwDown {
		if !errors.Is(vec.err, types.ErrUnavailable) {
			return nil, vec.err
		}
		return nil, fmt.Errorf("all search channels failed: %w", types.ErrUnavailable)
	}
	if vecDown && !errors.Is(vec.err, types.ErrUnavailable) {
		return nil, vec.err
	}

	vecHits := restrict(vec.hits, candidates, constrained)
	kwHits := restrict(kw.hits, candidates, constrained)

	// Re-balance weights over the channels that actually answered
	vw, kwWeight := e.cfg.VectorWeight, e.cfg.KeywordWeight
	if vecDown {
		vw, kwWeight = 0, 1
	} else if kwDown {
		vw, kwWeight = 1, 0
	}

	type merged struct {
		fused  float64
		rawVec float64
		rawKw  float64
	}
	scores := make(map[string]*merged)
	for _, s := range vecHits {
		scores[s.ID] = &merged{rawVec: s.Score}
	}
	for _, s := range kwHits {
		if m, ok := scores[s.ID]; ok {
			m.rawKw = s.Score
		} else {
			scores[s.ID] = &merged{rawKw: s.Score}
		}
	}

	for _, s := range Normalize(vecHits) {
		scores[s.ID].fused += vw * s.Score
	}
	for _, s := range Normalize(kwHits) {
		scores[s.ID].fused += kwWeight * s.Score
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := scores[ids[i]].fused, scores[ids[j]].fused
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})

	if len(ids) > req.K {
		ids = ids[:req.K]
	}

	ns := e.backend.Namespace()
	results := make([]*types.RankedResult, 0, len(ids))
	for _, id := range ids {
		m := scores[id]
		if m.fused < req.Threshold {
			continue
		}
		e.backend.Touch(id)
		chunk, ok := e.backend.Chunk(id)
		if !ok {
			continue
		}
		results = append(results, &types.RankedResult{
			Chunk:        chunk,
			Score:        m.fused,
			VectorScore:  m.rawVec,
			KeywordScore: m.rawKw,
			Namespace:    ns,
		})
	}
	return results, nil
}

// restrict drops hits outside the candidate set when a filter constrained it.
func restrict(hits []Scored, candidates map[string]struct{}, constrained bool) []Scored {
	if !constrained {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if _, ok := candidates[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}
