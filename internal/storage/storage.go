// Package storage persists namespace records and their chunk tables in
// SQLite. A namespace's chunks and vectors are saved and loaded as a unit;
// callers treat the on-disk format as opaque.
//
// Two drivers are supported via build tags: mattn/go-sqlite3 for cgo builds
// and modernc.org/sqlite for pure-Go builds.
package storage

import (
	"context"

	"github.com/silohq/silosearch/pkg/types"
)

// Store is the persistence contract the registry depends on.
type Store interface {
	// Namespace records
	CreateNamespace(ctx context.Context, ns *types.Namespace) error
	GetNamespace(ctx context.Context, id string) (*types.Namespace, error)
	ListNamespaces(ctx context.Context, department string) ([]*types.Namespace, error)
	UpdateNamespaceCounts(ctx context.Context, id string, documents, chunks int) error
	DeleteNamespace(ctx context.Context, id string) error

	// Chunk tables; SaveChunks replaces the namespace's rows atomically
	SaveChunks(ctx context.Context, namespace string, chunks []*types.Chunk, vectors [][]float32) error
	LoadChunks(ctx context.Context, namespace string) ([]*types.Chunk, [][]float32, error)

	// Full-text search over persisted chunk content
	SearchKeyword(ctx context.Context, namespace string, terms []string, limit int) ([]KeywordHit, error)

	Close() error
}
