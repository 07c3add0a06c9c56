package store

import (
	"strings"
)

// Tokenize lowercases and splits on whitespace. Both indexing and querying
// go through here so the two sides always agree.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// rebuildAux reconstructs every derived index from the chunk table. Caller
// must hold the write lock.
func (s *NamespaceStore) rebuildAux() {
	s.keywordIndex = make(map[string][]string)
	s.tagIndex = make(map[string][]string)
	s.authorIndex = make(map[string][]string)
	s.deptIndex = make(map[string][]string)

	for _, c := range s.chunks {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(c.Text) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			s.keywordIndex[tok] = append(s.keywordIndex[tok], c.ID)
		}
		for _, tag := range c.Tags {
			s.tagIndex[strings.ToLower(tag)] = append(s.tagIndex[strings.ToLower(tag)], c.ID)
		}
		if c.Author != "" {
			s.authorIndex[strings.ToLower(c.Author)] = append(s.authorIndex[strings.ToLower(c.Author)], c.ID)
		}
		if c.Department != "" {
			s.deptIndex[strings.ToLower(c.Department)] = append(s.deptIndex[strings.ToLower(c.Department)], c.ID)
		}
	}

	s.auxDirty = false
}

// withAux runs fn with the derived indexes valid and the lock held for the
// whole of fn, so a concurrent mutation cannot invalidate the indexes
// between the rebuild check and the read. fn must not lock or mutate the
// store.
func (s *NamespaceStore) withAux(fn func()) {
	s.mu.RLock()
	if !s.auxDirty && s.keywordIndex != nil {
		fn()
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if s.auxDirty || s.keywordIndex == nil {
		s.rebuildAux()
	}
	fn()
	s.mu.Unlock()
}
