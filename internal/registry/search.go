package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/silohq/silosearch/internal/cache"
	"github.com/silohq/silosearch/internal/embedder"
	"github.com/silohq/silosearch/internal/fusion"
	"github.com/silohq/silosearch/internal/store"
	"github.com/silohq/silosearch/pkg/types"
)

// DefaultTopK is applied when a request leaves TopK unset.
const DefaultTopK = 5

// QueryRequest is one logical search, before namespace resolution.
type QueryRequest struct {
	Text      string
	TopK      int
	Threshold float64
	Filters   map[string]interface{}
	// UseCache opts a single request out of the cache without disabling it
	UseCache bool
}

func (q QueryRequest) normalized() QueryRequest {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	return q
}

// MultiResponse is the fan-out result: one slot per requested namespace.
// A namespace that failed or timed out keeps an empty slot and an entry in
// Errors; siblings are unaffected.
type MultiResponse struct {
	Results map[string][]*types.RankedResult `json:"results"`
	Errors  map[string]string                `json:"errors,omitempty"`
}

// Query searches one namespace, consulting the cache first.
func (r *Registry) Query(ctx context.Context, namespace string, req QueryRequest) ([]*types.RankedResult, error) {
	req = req.normalized()
	if req.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", types.ErrInvalidArgument)
	}

	compute := func(ctx context.Context) ([]byte, error) {
		results, err := r.searchNamespace(ctx, namespace, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(results)
	}

	payload, err := r.cached(ctx, req, []string{namespace}, compute)
	if err != nil {
		return nil, err
	}

	var results []*types.RankedResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("decoding cached results: %w", err)
	}
	return results, nil
}

// QueryMulti fans the query out across namespaces concurrently. Each
// namespace gets its own deadline; one slot's failure never fails the rest.
func (r *Registry) QueryMulti(ctx context.Context, namespaces []string, req QueryRequest) (*MultiResponse, error) {
	req = req.normalized()
	if req.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", types.ErrInvalidArgument)
	}
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("%w: at least one namespace is required", types.ErrInvalidArgument)
	}

	compute := func(ctx context.Context) ([]byte, error) {
		resp := r.fanOut(ctx, namespaces, req)
		return json.Marshal(resp)
	}

	payload, err := r.cached(ctx, req, namespaces, compute)
	if err != nil {
		return nil, err
	}

	resp := &MultiResponse{}
	if err := json.Unmarshal(payload, resp); err != nil {
		return nil, fmt.Errorf("decoding cached results: %w", err)
	}
	return resp, nil
}

// QueryBest pools an over-fetched candidate set from every namespace and
// re-ranks globally: 2k per namespace in, top k overall out. A nil
// namespace list means all namespaces.
func (r *Registry) QueryBest(ctx context.Context, namespaces []string, req QueryRequest) ([]*types.RankedResult, error) {
	req = req.normalized()
	if req.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", types.ErrInvalidArgument)
	}

	if len(namespaces) == 0 {
		all, err := r.List(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, ns := range all {
			namespaces = append(namespaces, ns.ID)
		}
	}

	compute := func(ctx context.Context) ([]byte, error) {
		perNS := req
		perNS.TopK = req.TopK * 2

		resp := r.fanOut(ctx, namespaces, perNS)

		var pooled []*types.RankedResult
		for _, results := range resp.Results {
			pooled = append(pooled, results...)
		}
		// Cloned namespaces can pool the same chunk ID at the same score,
		// so the namespace is the final tie-break
		sort.SliceStable(pooled, func(i, j int) bool {
			if pooled[i].Score != pooled[j].Score {
				return pooled[i].Score > pooled[j].Score
			}
			if pooled[i].Chunk.ID != pooled[j].Chunk.ID {
				return pooled[i].Chunk.ID < pooled[j].Chunk.ID
			}
			return pooled[i].Namespace < pooled[j].Namespace
		})
		if len(pooled) > req.TopK {
			pooled = pooled[:req.TopK]
		}
		return json.Marshal(pooled)
	}

	payload, err := r.cached(ctx, req, namespaces, compute)
	if err != nil {
		return nil, err
	}

	var results []*types.RankedResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("decoding cached results: %w", err)
	}
	return results, nil
}

// cached routes the compute through the query cache when it applies. Cache
// trouble is a miss, never a failure.
func (r *Registry) cached(ctx context.Context, req QueryRequest, scope []string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if r.cache == nil || !req.UseCache {
		return compute(ctx)
	}

	key := cache.ComputeKey(req.Text, scope, req.Filters, req.TopK, req.Threshold)
	payload, _, err := r.cache.Queries.GetOrCompute(ctx, key, scope, compute)
	return payload, err
}

// fanOut runs the per-namespace searches concurrently, one slot each.
func (r *Registry) fanOut(ctx context.Context, namespaces []string, req QueryRequest) *MultiResponse {
	resp := &MultiResponse{
		Results: make(map[string][]*types.RankedResult, len(namespaces)),
		Errors:  make(map[string]string),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	for _, ns := range namespaces {
		g.Go(func() error {
			nsCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
			defer cancel()

			results, err := r.searchNamespace(nsCtx, ns, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				resp.Results[ns] = nil
				resp.Errors[ns] = err.Error()
				return nil // a failed slot never fails siblings
			}
			resp.Results[ns] = results
			return nil
		})
	}
	_ = g.Wait()

	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}
	return resp
}

// searchNamespace runs the fusion pipeline over one namespace.
func (r *Registry) searchNamespace(ctx context.Context, namespace string, req QueryRequest) ([]*types.RankedResult, error) {
	e, err := r.handle(ctx, namespace, false)
	if err != nil {
		return nil, err
	}

	terms := store.Tokenize(req.Text)

	// If every query term is definitely absent from the namespace, skip
	// the search outright. Only the local token-hash embedder derives its
	// vectors from the same tokens the filter tracks; a semantic provider
	// can match chunks that share no terms with the query, so the skip
	// would suppress its hits.
	if r.cache != nil && r.embedder.Provider() == embedder.ProviderLocal && len(terms) > 0 && e.store.Len() > 0 {
		any := false
		for _, term := range terms {
			if r.cache.MightContain(namespace, term) {
				any = true
				break
			}
		}
		if !any {
			return []*types.RankedResult{}, nil
		}
	}

	// An embedder failure downgrades the vector channel, it does not fail
	// the query
	var queryVector []float32
	if emb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Text}); err == nil {
		queryVector = emb.Vector
	}

	results, err := e.engine.Search(ctx, fusion.Request{
		QueryVector: queryVector,
		Terms:       terms,
		K:           req.TopK,
		Threshold:   req.Threshold,
		Filters:     req.Filters,
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []*types.RankedResult{}
	}
	return results, nil
}
