package types

import (
	"fmt"
	"time"
)

// Default enrichment values applied to chunks that omit them.
const (
	DefaultLanguage      = "en"
	DefaultSecurityLevel = "public"
)

// Chunk is a retrievable unit of document text with its enrichment metadata.
// A chunk belongs to exactly one namespace for its whole life; after ingest
// the only mutable fields are the usage counters.
type Chunk struct {
	// Identification
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	SourceID  string `json:"source_id"`
	Position  int    `json:"position"`

	// Content
	Text          string `json:"text"`
	ContentLength int    `json:"content_length"`

	// Enrichment metadata
	Title        string   `json:"title,omitempty"`
	Author       string   `json:"author,omitempty"`
	Department   string   `json:"department,omitempty"`
	DocumentType string   `json:"document_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	// Date strings are compared lexicographically (ISO-8601 order), never parsed.
	CreatedDate   string `json:"created_date,omitempty"`
	ModifiedDate  string `json:"modified_date,omitempty"`
	Language      string `json:"language,omitempty"`
	SecurityLevel string `json:"security_level,omitempty"`

	// Usage counters, bumped when the chunk is returned from a search
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed,omitzero"`

	// Migration provenance
	MigratedFrom string    `json:"migrated_from,omitempty"`
	MigratedAt   time.Time `json:"migrated_at,omitzero"`
}

// ApplyDefaults fills derived and defaulted fields in place.
func (c *Chunk) ApplyDefaults() {
	if c.ContentLength == 0 {
		c.ContentLength = len(c.Text)
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = DefaultSecurityLevel
	}
}

// Validate checks the fields a store requires before accepting the chunk.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: chunk ID is required", ErrInvalidArgument)
	}
	if c.Namespace == "" {
		return fmt.Errorf("%w: chunk namespace is required", ErrInvalidArgument)
	}
	if c.Position < 0 {
		return fmt.Errorf("%w: chunk position must be >= 0", ErrInvalidArgument)
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate indexed state.
func (c *Chunk) Clone() *Chunk {
	cp := *c
	if c.Tags != nil {
		cp.Tags = make([]string, len(c.Tags))
		copy(cp.Tags, c.Tags)
	}
	return &cp
}
