// Package cache fronts the registry's query paths with a TTL result cache
// keyed by content hash, plus a per-namespace bloom existence filter that
// lets cheap lookups skip namespaces that definitely hold nothing relevant.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Key is the content-addressed cache key: a sha256 over the canonical form
// of the logical query.
type Key [32]byte

// ComputeKey hashes the logical query: normalized query text, the sorted
// namespace scope, the canonically-ordered filter map, and the result-shape
// parameters. Two requests that differ only in filter map order or in query
// whitespace/case hash identically.
func ComputeKey(query string, scope []string, filters map[string]interface{}, topK int, threshold float64) Key {
	var b strings.Builder

	b.WriteString(normalizeQuery(query))
	b.WriteString("|")

	sortedScope := append([]string(nil), scope...)
	sort.Strings(sortedScope)
	b.WriteString(strings.Join(sortedScope, ","))
	b.WriteString("|")

	b.WriteString(canonicalFilters(filters))
	b.WriteString("|")

	fmt.Fprintf(&b, "%d|%g", topK, threshold)

	return sha256.Sum256([]byte(b.String()))
}

// normalizeQuery lowercases and collapses runs of whitespace.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// canonicalFilters renders a filter map in sorted-key order with set values
// themselves sorted.
func canonicalFilters(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteString(k)
		b.WriteString("=")
		switch v := filters[k].(type) {
		case []interface{}:
			vals := make([]string, 0, len(v))
			for _, item := range v {
				vals = append(vals, fmt.Sprintf("%v", item))
			}
			sort.Strings(vals)
			b.WriteString(strings.Join(vals, ","))
		case []string:
			vals := append([]string(nil), v...)
			sort.Strings(vals)
			b.WriteString(strings.Join(vals, ","))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

type entry struct {
	payload   []byte
	scope     []string
	createdAt time.Time
	expiresAt time.Time
}

// QueryCache is an in-process TTL cache of serialized query responses.
// Expiry is absolute; an expired entry behaves exactly like an absent one.
// At capacity, the oldest-created tenth of entries is evicted.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	ttl        time.Duration
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64

	// now is swapped in tests to control the clock
	now func() time.Time
}

// NewQueryCache creates a cache with the given TTL and capacity.
func NewQueryCache(ttl time.Duration, maxEntries int) *QueryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &QueryCache{
		entries:    make(map[Key]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached payload, or false on miss. Expired entries are
// misses and are removed on the way out.
func (c *QueryCache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	payload := make([]byte, len(e.payload))
	copy(payload, e.payload)
	return payload, true
}

// Put stores a payload under the key with the namespace scope it answers
// for. If the cache is full, the oldest-created ~10% is evicted first.
func (c *QueryCache) Put(key Key, scope []string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	now := c.now()
	c.entries[key] = &entry{
		payload:   stored,
		scope:     append([]string(nil), scope...),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// evictOldestLocked drops the oldest-created tenth of the cache, at least
// one entry. Caller holds the lock.
func (c *QueryCache) evictOldestLocked() {
	n := len(c.entries) / 10
	if n < 1 {
		n = 1
	}

	type aged struct {
		key       Key
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, createdAt: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

// GetOrCompute returns the cached payload on hit; on miss it runs compute,
// stores the result, and returns it. A compute error is returned without
// caching anything.
func (c *QueryCache) GetOrCompute(ctx context.Context, key Key, scope []string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if payload, ok := c.Get(key); ok {
		return payload, true, nil
	}

	payload, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	c.Put(key, scope, payload)
	return payload, false, nil
}

// InvalidateNamespace removes every entry whose scope includes the
// namespace. Returns the number of entries dropped.
func (c *QueryCache) InvalidateNamespace(ns string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for k, e := range c.entries {
		for _, s := range e.scope {
			if s == ns {
				delete(c.entries, k)
				dropped++
				break
			}
		}
	}
	return dropped
}

// Purge drops everything.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry)
}

// Len returns the live entry count, expired entries included until touched.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counters returns the hit and miss totals.
func (c *QueryCache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// TTL returns the configured entry lifetime.
func (c *QueryCache) TTL() time.Duration {
	return c.ttl
}

// MaxEntries returns the configured capacity.
func (c *QueryCache) MaxEntries() int {
	return c.maxEntries
}
