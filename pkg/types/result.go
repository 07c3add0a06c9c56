package types

// RankedResult is one search hit: the chunk plus its fused score and the raw
// per-channel scores that produced it. Results are ephemeral; the chunk is a
// clone and safe for the caller to keep.
//
// Score is the weighted fusion of the normalized channel scores and lies in
// [0, 1]. VectorScore and KeywordScore are the raw channel values before
// normalization (similarity and BM25 respectively); a channel that did not
// contribute reports 0.
type RankedResult struct {
	Chunk        *Chunk  `json:"chunk"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	Namespace    string  `json:"namespace"`
}

// NamespaceStats summarizes one namespace's store.
type NamespaceStats struct {
	Namespace     string `json:"namespace"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	VectorCount   int    `json:"vector_count"`
	Dimension     int    `json:"dimension"`
	KeywordTerms  int    `json:"keyword_terms"`
}

// ChunkUsage is one entry in the top-accessed list of Analytics.
type ChunkUsage struct {
	ChunkID     string `json:"chunk_id"`
	SourceID    string `json:"source_id"`
	Title       string `json:"title,omitempty"`
	AccessCount int64  `json:"access_count"`
}

// Analytics is the per-namespace usage report.
type Analytics struct {
	Namespace       string         `json:"namespace"`
	TotalChunks     int            `json:"total_chunks"`
	TotalAccesses   int64          `json:"total_accesses"`
	TopChunks       []ChunkUsage   `json:"top_chunks,omitempty"`
	DocumentTypes   map[string]int `json:"document_types,omitempty"`
	Departments     map[string]int `json:"departments,omitempty"`
	VectorSearch    bool           `json:"vector_search"`
	KeywordSearch   bool           `json:"keyword_search"`
	MetadataFilters bool           `json:"metadata_filters"`
}

// CacheStats is the hit/miss report for the query cache and the existence
// filter.
type CacheStats struct {
	Enabled     bool    `json:"enabled"`
	Entries     int     `json:"entries"`
	MaxEntries  int     `json:"max_entries"`
	TTLSeconds  int     `json:"ttl_seconds"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	BloomHits   int64   `json:"bloom_hits"`
	BloomMisses int64   `json:"bloom_misses"`
}
