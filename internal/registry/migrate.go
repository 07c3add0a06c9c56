package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/silohq/silosearch/pkg/types"
)

// MigrationResult reports what a migration actually did.
type MigrationResult struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	ChunksCopied  int    `json:"chunks_copied"`
	SourceDeleted bool   `json:"source_deleted"`
}

// Migrate copies a namespace's chunks into another namespace and then, when
// keepSource is false, deletes the source. The copy is all-or-nothing: a
// conflict or persistence failure leaves both namespaces as they were, and
// the source is only deleted after the target is verified and persisted.
// Copied chunks carry provenance: the origin namespace and the migration
// time.
func (r *Registry) Migrate(ctx context.Context, source, target string, keepSource bool) (*MigrationResult, error) {
	if source == target {
		return nil, fmt.Errorf("%w: source and target are the same namespace", types.ErrInvalidArgument)
	}

	srcEntry, err := r.handle(ctx, source, false)
	if err != nil {
		return nil, err
	}

	chunks, vectors := srcEntry.store.Snapshot()
	expected := len(chunks)

	dstEntry, err := r.handle(ctx, target, true)
	if err != nil {
		return nil, err
	}
	dstPre := dstEntry.store.Len()
	preChunks, preVectors := dstEntry.store.Snapshot()

	now := time.Now()
	for _, c := range chunks {
		c.MigratedFrom = source
		c.MigratedAt = now
	}

	result := &MigrationResult{Source: source, Target: target}

	// Add is all-or-nothing, so a conflict anywhere in the batch leaves the
	// target exactly as it was
	if addErr := dstEntry.store.Add(vectors, chunks); addErr != nil {
		return result, fmt.Errorf("migration %s -> %s failed (source and target untouched): %w",
			source, target, addErr)
	}
	copied := dstEntry.store.Len() - dstPre
	result.ChunksCopied = copied
	if copied != expected {
		return result, fmt.Errorf("migration %s -> %s incomplete: expected %d chunks, copied %d (source untouched)",
			source, target, expected, copied)
	}

	if err := r.persist(ctx, target, dstEntry.store); err != nil {
		// Roll the live target back to its pre-copy table so memory and
		// disk stay in agreement
		if restoreErr := dstEntry.store.Restore(preChunks, preVectors); restoreErr == nil {
			result.ChunksCopied = 0
		}
		if r.cache != nil {
			r.cache.InvalidateNamespace(target)
		}
		return result, fmt.Errorf("migration %s -> %s not persisted (source untouched): %w", source, target, err)
	}
	r.noteMutation(target, dstEntry.store)

	if !keepSource {
		if err := r.Delete(ctx, source, true); err != nil {
			return result, fmt.Errorf("migration copied %d chunks but source delete failed: %w", copied, err)
		}
		result.SourceDeleted = true
	}
	return result, nil
}

// Clone copies a namespace without touching the source.
func (r *Registry) Clone(ctx context.Context, source, target string) (*MigrationResult, error) {
	return r.Migrate(ctx, source, target, true)
}
