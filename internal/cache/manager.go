package cache

import (
	"sync/atomic"
	"time"

	"github.com/silohq/silosearch/pkg/types"
)

// Manager bundles the query cache and the existence filter behind one
// handle with combined stats.
type Manager struct {
	Queries   *QueryCache
	Existence *ExistenceFilter

	bloomHits   atomic.Int64
	bloomMisses atomic.Int64
}

// NewManager wires a query cache and existence filter from configuration.
func NewManager(ttl time.Duration, maxEntries int, bloomCapacity uint, bloomErrorRate float64) *Manager {
	return &Manager{
		Queries:   NewQueryCache(ttl, maxEntries),
		Existence: NewExistenceFilter(bloomCapacity, bloomErrorRate),
	}
}

// MightContain consults the existence filter and counts the outcome. A
// false answer means the namespace can be skipped for this term.
func (m *Manager) MightContain(namespace, term string) bool {
	if m.Existence.MightContain(namespace, term) {
		m.bloomHits.Add(1)
		return true
	}
	m.bloomMisses.Add(1)
	return false
}

// InvalidateNamespace drops the namespace's cached queries and its
// existence filter.
func (m *Manager) InvalidateNamespace(ns string) {
	m.Queries.InvalidateNamespace(ns)
	m.Existence.Reset(ns)
}

// Stats reports the combined cache counters.
func (m *Manager) Stats() types.CacheStats {
	hits, misses := m.Queries.Counters()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return types.CacheStats{
		Enabled:     true,
		Entries:     m.Queries.Len(),
		MaxEntries:  m.Queries.MaxEntries(),
		TTLSeconds:  int(m.Queries.TTL() / time.Second),
		Hits:        hits,
		Misses:      misses,
		HitRate:     hitRate,
		BloomHits:   m.bloomHits.Load(),
		BloomMisses: m.bloomMisses.Load(),
	}
}
