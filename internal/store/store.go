// Package store holds one namespace's in-memory retrieval state: the chunk
// table, its parallel vector rows, and the auxiliary lookup indexes. Keyword
// relevance is delegated to an attached full-text searcher. Reads take the
// shared lock; mutations take the exclusive lock. Auxiliary indexes are a
// pure cache of the chunk table and are rebuilt in full, lazily, after any
// bulk change.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/silohq/silosearch/pkg/types"
)

// NamespaceStore is the per-namespace chunk table plus everything derived
// from it. Chunk row order and vector row order always match.
type NamespaceStore struct {
	mu        sync.RWMutex
	namespace string
	keyword   KeywordSearchFunc

	chunks  []*types.Chunk
	vectors [][]float32
	byID    map[string]int
	dim     int

	auxDirty     bool
	keywordIndex map[string][]string
	tagIndex     map[string][]string
	authorIndex  map[string][]string
	deptIndex    map[string][]string
}

// New creates an empty store for the given namespace. keyword backs the
// keyword search channel and may be nil, which leaves that channel
// unavailable.
func New(namespace string, keyword KeywordSearchFunc) *NamespaceStore {
	return &NamespaceStore{
		namespace: namespace,
		keyword:   keyword,
		byID:      make(map[string]int),
	}
}

// Namespace returns the namespace this store belongs to.
func (s *NamespaceStore) Namespace() string {
	return s.namespace
}

// Add appends vectors and their chunks. When chunks are supplied their
// length must match the vectors; when omitted, empty namespace-tagged
// records are synthesized so every vector row has a chunk row. The batch is
// all-or-nothing: every row is validated and checked for ID conflicts before
// anything is appended, so a failed Add leaves the store unchanged.
// Auxiliary indexes are marked dirty, not patched.
func (s *NamespaceStore) Add(vectors [][]float32, chunks []*types.Chunk) error {
	if chunks != nil && len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d vectors but %d chunks", types.ErrInvalidArgument, len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]*types.Chunk, 0, len(vectors))
	stagedVecs := make([][]float32, 0, len(vectors))
	batchIDs := make(map[string]struct{}, len(vectors))

	for i, vec := range vectors {
		var c *types.Chunk
		if chunks != nil {
			c = chunks[i].Clone()
		} else {
			c = &types.Chunk{ID: uuid.NewString()}
		}
		c.Namespace = s.namespace
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return err
		}
		if _, exists := s.byID[c.ID]; exists {
			return fmt.Errorf("chunk %q: %w", c.ID, types.ErrConflict)
		}
		if _, dup := batchIDs[c.ID]; dup {
			return fmt.Errorf("chunk %q: %w", c.ID, types.ErrConflict)
		}
		batchIDs[c.ID] = struct{}{}

		vecCopy := make([]float32, len(vec))
		copy(vecCopy, vec)
		staged = append(staged, c)
		stagedVecs = append(stagedVecs, vecCopy)
	}

	for i, c := range staged {
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, stagedVecs[i])
		if s.dim == 0 {
			s.dim = len(stagedVecs[i])
		}
	}

	s.auxDirty = true
	return nil
}

// Clear drops every chunk, vector, and derived index.
func (s *NamespaceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = nil
	s.vectors = nil
	s.byID = make(map[string]int)
	s.dim = 0
	s.auxDirty = false
	s.keywordIndex = nil
	s.tagIndex = nil
	s.authorIndex = nil
	s.deptIndex = nil
}

// Len returns the chunk count.
func (s *NamespaceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// DocumentCount returns the number of distinct source documents.
func (s *NamespaceStore) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentCountLocked()
}

func (s *NamespaceStore) documentCountLocked() int {
	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		if c.SourceID != "" {
			seen[c.SourceID] = struct{}{}
		}
	}
	return len(seen)
}

// Chunk returns a clone of the chunk, or false if absent.
func (s *NamespaceStore) Chunk(id string) (*types.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.chunks[idx].Clone(), true
}

// Touch bumps the chunk's usage counters. Missing IDs are ignored.
func (s *NamespaceStore) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byID[id]; ok {
		s.chunks[idx].AccessCount++
		s.chunks[idx].LastAccessed = time.Now()
	}
}

// Snapshot returns cloned chunk and vector tables in row order, for
// persistence and migration.
func (s *NamespaceStore) Snapshot() ([]*types.Chunk, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]*types.Chunk, len(s.chunks))
	vectors := make([][]float32, len(s.vectors))
	for i, c := range s.chunks {
		chunks[i] = c.Clone()
		vec := make([]float32, len(s.vectors[i]))
		copy(vec, s.vectors[i])
		vectors[i] = vec
	}
	return chunks, vectors
}

// Restore replaces the store contents with a previously snapshotted or
// loaded table.
func (s *NamespaceStore) Restore(chunks []*types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", types.ErrInvalidArgument, len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make([]*types.Chunk, 0, len(chunks))
	s.vectors = make([][]float32, 0, len(vectors))
	s.byID = make(map[string]int, len(chunks))
	s.dim = 0

	for i, c := range chunks {
		cp := c.Clone()
		cp.Namespace = s.namespace
		cp.ApplyDefaults()
		s.byID[cp.ID] = len(s.chunks)
		s.chunks = append(s.chunks, cp)
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.vectors = append(s.vectors, vec)
		if s.dim == 0 {
			s.dim = len(vec)
		}
	}

	s.auxDirty = true
	return nil
}

// Stats reports the store's sizes.
func (s *NamespaceStore) Stats() types.NamespaceStats {
	var stats types.NamespaceStats
	s.withAux(func() {
		stats = types.NamespaceStats{
			Namespace:     s.namespace,
			DocumentCount: s.documentCountLocked(),
			ChunkCount:    len(s.chunks),
			VectorCount:   len(s.vectors),
			Dimension:     s.dim,
			KeywordTerms:  len(s.keywordIndex),
		}
	})
	return stats
}

// Analytics builds the namespace usage report: totals, the most accessed
// chunks, and document-type / department distributions.
func (s *NamespaceStore) Analytics(topN int) types.Analytics {
	if topN <= 0 {
		topN = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a := types.Analytics{
		Namespace:       s.namespace,
		TotalChunks:     len(s.chunks),
		DocumentTypes:   make(map[string]int),
		Departments:     make(map[string]int),
		VectorSearch:    true,
		KeywordSearch:   true,
		MetadataFilters: true,
	}

	usage := make([]types.ChunkUsage, 0, len(s.chunks))
	for _, c := range s.chunks {
		a.TotalAccesses += c.AccessCount
		if c.DocumentType != "" {
			a.DocumentTypes[c.DocumentType]++
		}
		if c.Department != "" {
			a.Departments[c.Department]++
		}
		if c.AccessCount > 0 {
			usage = append(usage, types.ChunkUsage{
				ChunkID:     c.ID,
				SourceID:    c.SourceID,
				Title:       c.Title,
				AccessCount: c.AccessCount,
			})
		}
	}

	sort.Slice(usage, func(i, j int) bool {
		if usage[i].AccessCount != usage[j].AccessCount {
			return usage[i].AccessCount > usage[j].AccessCount
		}
		return usage[i].ChunkID < usage[j].ChunkID
	})
	if len(usage) > topN {
		usage = usage[:topN]
	}
	a.TopChunks = usage
	return a
}
