package cache

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// ExistenceFilter keeps one bloom filter per namespace over indexed terms.
// MightContain answering false means the namespace definitely holds no
// chunk with that term; true means it might.
type ExistenceFilter struct {
	mu        sync.RWMutex
	filters   map[string]*bloom.BloomFilter
	capacity  uint
	errorRate float64
}

// NewExistenceFilter sizes each per-namespace filter for the expected term
// capacity and false-positive rate.
func NewExistenceFilter(capacity uint, errorRate float64) *ExistenceFilter {
	if capacity == 0 {
		capacity = 1000000
	}
	if errorRate <= 0 || errorRate >= 1 {
		errorRate = 0.1
	}
	return &ExistenceFilter{
		filters:   make(map[string]*bloom.BloomFilter),
		capacity:  capacity,
		errorRate: errorRate,
	}
}

// Add records terms for the namespace, creating its filter on first use.
func (f *ExistenceFilter) Add(namespace string, terms []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bf, ok := f.filters[namespace]
	if !ok {
		bf = bloom.NewWithEstimates(f.capacity, f.errorRate)
		f.filters[namespace] = bf
	}
	for _, term := range terms {
		bf.AddString(strings.ToLower(term))
	}
}

// MightContain reports whether the namespace might hold the term. A
// namespace without a filter answers true: nothing has been ruled out.
func (f *ExistenceFilter) MightContain(namespace, term string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bf, ok := f.filters[namespace]
	if !ok {
		return true
	}
	return bf.TestString(strings.ToLower(term))
}

// Reset drops the namespace's filter.
func (f *ExistenceFilter) Reset(namespace string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.filters, namespace)
}
