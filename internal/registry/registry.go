// Package registry coordinates the namespace lifecycle and the query paths
// over it. It owns the per-namespace stores and fusion engines, lazily
// materializing them from persistent storage, and fronts every read with
// the query cache and existence filter when caching is enabled.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/silohq/silosearch/internal/cache"
	"github.com/silohq/silosearch/internal/embedder"
	"github.com/silohq/silosearch/internal/fusion"
	"github.com/silohq/silosearch/internal/storage"
	"github.com/silohq/silosearch/internal/store"
	"github.com/silohq/silosearch/pkg/types"
)

// Config holds the registry's tunables.
type Config struct {
	DefaultNamespace string
	Fusion           fusion.Config
	// SearchTimeout bounds each namespace's slot in fan-out queries
	SearchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultNamespace == "" {
		c.DefaultNamespace = types.DefaultNamespace
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 30 * time.Second
	}
	return c
}

type entry struct {
	store  *store.NamespaceStore
	engine *fusion.Engine
}

// Registry is the engine's top-level coordinator.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*entry

	storage  storage.Store
	embedder embedder.Embedder
	cache    *cache.Manager // nil when caching is disabled
	cfg      Config
}

// New creates a registry and guarantees the fallback namespace exists.
func New(ctx context.Context, st storage.Store, emb embedder.Embedder, cm *cache.Manager, cfg Config) (*Registry, error) {
	r := &Registry{
		stores:   make(map[string]*entry),
		storage:  st,
		embedder: emb,
		cache:    cm,
		cfg:      cfg.withDefaults(),
	}

	_, err := st.GetNamespace(ctx, r.cfg.DefaultNamespace)
	if errors.Is(err, types.ErrNotFound) {
		err = st.CreateNamespace(ctx, &types.Namespace{
			ID:          r.cfg.DefaultNamespace,
			Description: "fallback namespace",
		})
		if errors.Is(err, types.ErrConflict) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ensuring default namespace: %w", err)
	}
	return r, nil
}

// Create registers a new namespace. Duplicate IDs conflict.
func (r *Registry) Create(ctx context.Context, ns *types.Namespace) error {
	if ns == nil || ns.ID == "" {
		return fmt.Errorf("%w: namespace ID is required", types.ErrInvalidArgument)
	}
	return r.storage.CreateNamespace(ctx, ns)
}

// Get returns one namespace record.
func (r *Registry) Get(ctx context.Context, id string) (*types.Namespace, error) {
	return r.storage.GetNamespace(ctx, id)
}

// List returns namespace records, optionally restricted to a department.
func (r *Registry) List(ctx context.Context, department string) ([]*types.Namespace, error) {
	return r.storage.ListNamespaces(ctx, department)
}

// Delete removes a namespace, its chunks, and its cached queries. The
// fallback namespace is only deleted with force.
func (r *Registry) Delete(ctx context.Context, id string, force bool) error {
	if id == r.cfg.DefaultNamespace && !force {
		return fmt.Errorf("%w: deleting namespace %q requires force", types.ErrInvalidArgument, id)
	}

	if err := r.storage.DeleteNamespace(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.stores, id)
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.InvalidateNamespace(id)
	}
	return nil
}

// handle returns the namespace's live store and engine, materializing them
// from storage on first use. With createIfMissing, an unknown namespace is
// created implicitly, which is the write-path behavior.
func (r *Registry) handle(ctx context.Context, id string, createIfMissing bool) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.stores[id]; ok {
		return e, nil
	}

	_, err := r.storage.GetNamespace(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		if !createIfMissing {
			return nil, err
		}
		if err := r.storage.CreateNamespace(ctx, &types.Namespace{ID: id}); err != nil && !errors.Is(err, types.ErrConflict) {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	st := store.New(id, r.keywordSearcher(id))
	chunks, vectors, err := r.storage.LoadChunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading namespace %q: %w", id, err)
	}
	if len(chunks) > 0 {
		if err := st.Restore(chunks, vectors); err != nil {
			return nil, fmt.Errorf("restoring namespace %q: %w", id, err)
		}
	}

	e := &entry{
		store:  st,
		engine: fusion.NewEngine(st, r.cfg.Fusion),
	}
	r.stores[id] = e
	return e, nil
}

// keywordSearcher binds a namespace's keyword channel to the persistent
// full-text index.
func (r *Registry) keywordSearcher(namespace string) store.KeywordSearchFunc {
	return func(ctx context.Context, terms []string, limit int) ([]fusion.Scored, error) {
		hits, err := r.storage.SearchKeyword(ctx, namespace, terms, limit)
		if err != nil {
			return nil, err
		}
		out := make([]fusion.Scored, len(hits))
		for i, h := range hits {
			out[i] = fusion.Scored{ID: h.ChunkID, Score: h.Score}
		}
		return out, nil
	}
}

// AddChunks indexes pre-embedded chunks into a namespace, creating it on
// first write, and persists the namespace as a unit.
func (r *Registry) AddChunks(ctx context.Context, namespace string, chunks []*types.Chunk, vectors [][]float32) error {
	e, err := r.handle(ctx, namespace, true)
	if err != nil {
		return err
	}

	if err := e.store.Add(vectors, chunks); err != nil {
		return err
	}

	if err := r.persist(ctx, namespace, e.store); err != nil {
		return err
	}

	r.noteMutation(namespace, e.store)
	return nil
}

// Ingest embeds chunk texts and indexes them.
func (r *Registry) Ingest(ctx context.Context, namespace string, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to ingest", types.ErrInvalidArgument)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	resp, err := r.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Vector
	}
	return r.AddChunks(ctx, namespace, chunks, vectors)
}

// Clear empties a namespace without deleting its record.
func (r *Registry) Clear(ctx context.Context, namespace string) error {
	e, err := r.handle(ctx, namespace, false)
	if err != nil {
		return err
	}

	e.store.Clear()
	if err := r.persist(ctx, namespace, e.store); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.InvalidateNamespace(namespace)
	}
	return nil
}

// Stats reports one namespace's store sizes.
func (r *Registry) Stats(ctx context.Context, namespace string) (types.NamespaceStats, error) {
	e, err := r.handle(ctx, namespace, false)
	if err != nil {
		return types.NamespaceStats{}, err
	}
	return e.store.Stats(), nil
}

// Analytics reports one namespace's usage breakdown.
func (r *Registry) Analytics(ctx context.Context, namespace string, topN int) (types.Analytics, error) {
	e, err := r.handle(ctx, namespace, false)
	if err != nil {
		return types.Analytics{}, err
	}
	return e.store.Analytics(topN), nil
}

// CacheStats reports the query-cache counters, or a disabled report when
// caching is off.
func (r *Registry) CacheStats() types.CacheStats {
	if r.cache == nil {
		return types.CacheStats{Enabled: false}
	}
	return r.cache.Stats()
}

// Close releases the embedder and storage.
func (r *Registry) Close() error {
	var firstErr error
	if err := r.embedder.Close(); err != nil {
		firstErr = err
	}
	if err := r.storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// persist writes the namespace's current table and refreshed counts.
func (r *Registry) persist(ctx context.Context, namespace string, st *store.NamespaceStore) error {
	chunks, vectors := st.Snapshot()
	if err := r.storage.SaveChunks(ctx, namespace, chunks, vectors); err != nil {
		return fmt.Errorf("persisting namespace %q: %w", namespace, err)
	}
	if err := r.storage.UpdateNamespaceCounts(ctx, namespace, st.DocumentCount(), st.Len()); err != nil {
		return fmt.Errorf("updating counts for %q: %w", namespace, err)
	}
	return nil
}

// noteMutation invalidates cached queries and refreshes the existence
// filter after the namespace's content changed.
func (r *Registry) noteMutation(namespace string, st *store.NamespaceStore) {
	if r.cache == nil {
		return
	}
	r.cache.InvalidateNamespace(namespace)

	chunks, _ := st.Snapshot()
	var terms []string
	for _, c := range chunks {
		terms = append(terms, store.Tokenize(c.Text)...)
		terms = append(terms, c.Tags...)
		if c.SourceID != "" {
			terms = append(terms, c.SourceID)
		}
	}
	r.cache.Existence.Add(namespace, terms)
}
