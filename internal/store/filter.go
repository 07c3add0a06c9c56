package store

import "strings"

// FilterIDs resolves a metadata filter map to the set of matching chunk IDs.
// Within a field, multiple values are OR'd; across fields, results are
// AND'd. Unknown fields are ignored. The result does not depend on map
// iteration order: every recognized field constrains independently and an
// empty intermediate set stays empty.
//
// The second return reports whether any recognized filter was applied.
// A false return means the caller should skip filtering entirely; a true
// return with an empty set means the filters matched nothing.
func (s *NamespaceStore) FilterIDs(filters map[string]interface{}) (map[string]struct{}, bool) {
	if len(filters) == 0 {
		return nil, false
	}

	var result map[string]struct{}
	constrained := false

	s.withAux(func() {
		apply := func(matches map[string]struct{}) {
			constrained = true
			if result == nil {
				result = matches
				return
			}
			for id := range result {
				if _, ok := matches[id]; !ok {
					delete(result, id)
				}
			}
		}

		if vals, ok := filterValues(filters, "author"); ok {
			apply(s.fromIndex(s.authorIndex, vals))
		}
		if vals, ok := filterValues(filters, "department"); ok {
			apply(s.fromIndex(s.deptIndex, vals))
		}
		if vals, ok := filterValues(filters, "tags"); ok {
			apply(s.fromIndex(s.tagIndex, vals))
		}
		if vals, ok := filterValues(filters, "document_type"); ok {
			apply(s.scanField(vals, func(c fieldView) string { return c.documentType }))
		}
		if vals, ok := filterValues(filters, "security_level"); ok {
			apply(s.scanField(vals, func(c fieldView) string { return c.securityLevel }))
		}
		if vals, ok := filterValues(filters, "created_after"); ok && len(vals) > 0 {
			// Lexicographic >= on the date string; multiple values take the
			// loosest bound
			bound := vals[0]
			for _, v := range vals[1:] {
				if v < bound {
					bound = v
				}
			}
			matches := make(map[string]struct{})
			for _, c := range s.chunks {
				if c.CreatedDate != "" && c.CreatedDate >= bound {
					matches[c.ID] = struct{}{}
				}
			}
			apply(matches)
		}
	})

	if !constrained {
		return nil, false
	}
	if result == nil {
		result = map[string]struct{}{}
	}
	return result, true
}

// fieldView narrows the scan closure to the fields it may match on.
type fieldView struct {
	documentType  string
	securityLevel string
}

// fromIndex unions the index postings for each wanted value.
func (s *NamespaceStore) fromIndex(index map[string][]string, vals []string) map[string]struct{} {
	matches := make(map[string]struct{})
	for _, v := range vals {
		for _, id := range index[strings.ToLower(v)] {
			matches[id] = struct{}{}
		}
	}
	return matches
}

// scanField matches chunks whose extracted field equals any wanted value,
// case-insensitively.
func (s *NamespaceStore) scanField(vals []string, extract func(fieldView) string) map[string]struct{} {
	wanted := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		wanted[strings.ToLower(v)] = struct{}{}
	}
	matches := make(map[string]struct{})
	for _, c := range s.chunks {
		field := extract(fieldView{documentType: c.DocumentType, securityLevel: c.SecurityLevel})
		if _, ok := wanted[strings.ToLower(field)]; ok && field != "" {
			matches[c.ID] = struct{}{}
		}
	}
	return matches
}

// filterValues extracts a filter field as a value list; scalars become a
// one-element list. Absent or unusable values report !ok.
func filterValues(filters map[string]interface{}, key string) ([]string, bool) {
	raw, ok := filters[key]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
