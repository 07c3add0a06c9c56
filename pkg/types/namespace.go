package types

import "time"

// DefaultNamespace is the reserved fallback namespace. It always exists and
// can only be deleted with force.
const DefaultNamespace = "default"

// Namespace is the metadata record for one organizational partition.
// The ID is immutable once created.
type Namespace struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Department  string    `json:"department,omitempty"`
	Contact     string    `json:"contact,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Denormalized counts, refreshed on ingest and migration
	DocumentCount int `json:"document_count"`
	ChunkCount    int `json:"chunk_count"`
}

// Clone returns a deep copy of the namespace record.
func (n *Namespace) Clone() *Namespace {
	cp := *n
	if n.Tags != nil {
		cp.Tags = make([]string, len(n.Tags))
		copy(cp.Tags, n.Tags)
	}
	return &cp
}
