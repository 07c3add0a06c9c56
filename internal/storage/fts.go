package storage

import (
	"context"
	"fmt"
	"strings"
)

// KeywordHit is one full-text match. Score is the negated FTS5 bm25 rank,
// so higher means a better match.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// SearchKeyword runs a full-text query over the namespace's chunk content
// using the chunks_fts index. Terms are OR-ed; results come back ordered by
// relevance, at most limit rows. An empty term list matches nothing.
func (s *SQLiteStore) SearchKeyword(ctx context.Context, namespace string, terms []string, limit int) ([]KeywordHit, error) {
	match := buildMatchQuery(terms)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		INNER JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.namespace = ?
		ORDER BY rank
		LIMIT ?
	`, match, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan keyword hit: %w", err)
		}
		// bm25() ranks best matches most negative
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildMatchQuery turns plain terms into an FTS5 MATCH expression. Each term
// is double-quoted so punctuation and FTS operators are taken literally.
func buildMatchQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}
