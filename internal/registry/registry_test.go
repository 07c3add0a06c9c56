package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohq/silosearch/internal/cache"
	"github.com/silohq/silosearch/internal/embedder"
	"github.com/silohq/silosearch/internal/storage"
	"github.com/silohq/silosearch/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return newTestRegistryAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func newTestRegistryAt(t *testing.T, dbPath string) *Registry {
	t.Helper()

	st, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	emb, err := embedder.NewLocalProvider(64, nil)
	require.NoError(t, err)

	cm := cache.NewManager(time.Minute, 100, 10000, 0.01)

	r, err := New(context.Background(), st, emb, cm, Config{SearchTimeout: 5 * time.Second})
	require.NoError(t, err)
	return r
}

func ingestDocs(t *testing.T, r *Registry, namespace string, chunks ...*types.Chunk) {
	t.Helper()
	require.NoError(t, r.Ingest(context.Background(), namespace, chunks))
}

func engineeringDocs() []*types.Chunk {
	return []*types.Chunk{
		{ID: "eng-1", SourceID: "doc-py", Text: "python coding standards and style guide for services", Author: "alice", Department: "engineering", DocumentType: "guide", Tags: []string{"python", "style"}, CreatedDate: "2026-01-15"},
		{ID: "eng-2", SourceID: "doc-test", Text: "python testing practices with fixtures", Author: "bob", Department: "engineering", DocumentType: "guide", Tags: []string{"python", "testing"}, CreatedDate: "2025-06-01"},
		{ID: "eng-3", SourceID: "doc-ops", Text: "incident response runbook for the platform team", Author: "alice", Department: "platform", DocumentType: "runbook", Tags: []string{"ops"}, CreatedDate: "2026-03-10"},
	}
}

func TestNewEnsuresDefaultNamespace(t *testing.T) {
	r := newTestRegistry(t)
	ns, err := r.Get(context.Background(), types.DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultNamespace, ns.ID)
}

func TestCreateAndConflict(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &types.Namespace{ID: "eng", Department: "engineering"}))
	require.ErrorIs(t, r.Create(ctx, &types.Namespace{ID: "eng"}), types.ErrConflict)
	require.ErrorIs(t, r.Create(ctx, &types.Namespace{}), types.ErrInvalidArgument)
}

func TestDeleteDefaultRequiresForce(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.ErrorIs(t, r.Delete(ctx, types.DefaultNamespace, false), types.ErrInvalidArgument)
	require.NoError(t, r.Delete(ctx, types.DefaultNamespace, true))
}

func TestImplicitCreateOnFirstWrite(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "brand-new", &types.Chunk{ID: "c1", Text: "hello world"})

	ns, err := r.Get(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, 1, ns.ChunkCount)
}

func TestQueryFindsRelevantChunks(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	results, err := r.Query(ctx, "eng", QueryRequest{Text: "python", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The top hit is a python doc and both python docs are returned
	assert.Contains(t, results[0].Chunk.Tags, "python")
	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.Chunk.ID)
	}
	assert.Contains(t, ids, "eng-1")
	assert.Contains(t, ids, "eng-2")

	// Scores strictly descend, fused into [0, 1]
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestQueryWithMetadataFilters(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	results, err := r.Query(ctx, "eng", QueryRequest{
		Text:    "python",
		TopK:    10,
		Filters: map[string]interface{}{"department": "engineering"},
	})
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, "engineering", res.Chunk.Department)
	}

	// Filters that match nothing return empty, not an error
	results, err = r.Query(ctx, "eng", QueryRequest{
		Text:    "python",
		TopK:    10,
		Filters: map[string]interface{}{"department": "marketing"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryUnknownNamespace(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Query(context.Background(), "nope", QueryRequest{Text: "q"})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestQueryBumpsUsageCountersButCacheHitsDoNot(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	req := QueryRequest{Text: "python style", TopK: 1, UseCache: true}

	first, err := r.Query(ctx, "eng", req)
	require.NoError(t, err)
	require.Len(t, first, 1)
	countAfterFirst := first[0].Chunk.AccessCount
	assert.Equal(t, int64(1), countAfterFirst)

	// Identical query served from cache: same payload, no counter bump
	second, err := r.Query(ctx, "eng", req)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, countAfterFirst, second[0].Chunk.AccessCount)

	stats := r.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestIngestInvalidatesCache(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	req := QueryRequest{Text: "kubernetes deployment", TopK: 5, UseCache: true}
	empty, err := r.Query(ctx, "eng", req)
	require.NoError(t, err)
	require.Empty(t, empty)

	ingestDocs(t, r, "eng", &types.Chunk{ID: "eng-4", Text: "kubernetes deployment checklist"})

	results, err := r.Query(ctx, "eng", req)
	require.NoError(t, err)
	require.NotEmpty(t, results) // stale empty answer was invalidated
}

func TestQueryMulti(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)
	ingestDocs(t, r, "hr", &types.Chunk{ID: "hr-1", Text: "vacation policy for employees"})

	resp, err := r.QueryMulti(ctx, []string{"eng", "hr", "ghost"}, QueryRequest{Text: "python policy", TopK: 5})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Results["eng"])
	assert.NotEmpty(t, resp.Results["hr"])

	// The unknown namespace failed alone, with an empty slot
	assert.Empty(t, resp.Results["ghost"])
	require.Contains(t, resp.Errors, "ghost")
	assert.NotContains(t, resp.Errors, "eng")

	// Namespace isolation: hr results never leak engineering chunks
	for _, res := range resp.Results["hr"] {
		assert.Equal(t, "hr", res.Namespace)
	}
}

func TestQueryBestGlobalOrdering(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)
	ingestDocs(t, r, "docs",
		&types.Chunk{ID: "docs-1", Text: "python style guide for documentation authors"},
		&types.Chunk{ID: "docs-2", Text: "release calendar overview"},
	)

	results, err := r.QueryBest(ctx, nil, QueryRequest{Text: "python style guide", TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)

	// Globally sorted regardless of source namespace
	for i := 1; i < len(results); i++ {
		if results[i-1].Score == results[i].Score {
			assert.Less(t, results[i-1].Chunk.ID, results[i].Chunk.ID)
		} else {
			assert.Greater(t, results[i-1].Score, results[i].Score)
		}
	}

	namespaces := make(map[string]bool)
	for _, res := range results {
		namespaces[res.Namespace] = true
	}
	assert.True(t, namespaces["eng"] || namespaces["docs"])
}

func TestMigrate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "old-team", engineeringDocs()...)

	res, err := r.Migrate(ctx, "old-team", "new-team", false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCopied)
	assert.True(t, res.SourceDeleted)

	_, err = r.Get(ctx, "old-team")
	require.ErrorIs(t, err, types.ErrNotFound)

	results, err := r.Query(ctx, "new-team", QueryRequest{Text: "python", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Provenance survives the move
	assert.Equal(t, "old-team", results[0].Chunk.MigratedFrom)
	assert.False(t, results[0].Chunk.MigratedAt.IsZero())
	assert.Equal(t, "new-team", results[0].Chunk.Namespace)
}

func TestCloneKeepsSource(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "src", engineeringDocs()...)

	res, err := r.Clone(ctx, "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCopied)
	assert.False(t, res.SourceDeleted)

	srcStats, err := r.Stats(ctx, "src")
	require.NoError(t, err)
	dstStats, err := r.Stats(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, srcStats.ChunkCount, dstStats.ChunkCount)
}

func TestMigrateUnknownSource(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Migrate(context.Background(), "ghost", "dst", false)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestMigrateSameNamespace(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Migrate(context.Background(), "a", "a", false)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestMigrateIDCollisionLeavesSourceIntact(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	shared := &types.Chunk{ID: "shared", Text: "duplicate chunk id"}
	ingestDocs(t, r, "src", shared, &types.Chunk{ID: "src-only", Text: "unique"})
	ingestDocs(t, r, "dst", &types.Chunk{ID: "shared", Text: "already here"})

	_, err := r.Migrate(ctx, "src", "dst", false)
	require.Error(t, err)

	// Source must survive a failed migration
	stats, statErr := r.Stats(ctx, "src")
	require.NoError(t, statErr)
	assert.Equal(t, 2, stats.ChunkCount)
}

func TestMigrateIDCollisionLeavesTargetConsistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	r := newTestRegistryAt(t, dbPath)
	ctx := context.Background()

	ingestDocs(t, r, "src",
		&types.Chunk{ID: "src-only", Text: "falconry inventory notes"},
		&types.Chunk{ID: "shared", Text: "duplicate chunk id"})
	ingestDocs(t, r, "dst", &types.Chunk{ID: "shared", Text: "shared inventory ledger"})

	_, err := r.Migrate(ctx, "src", "dst", false)
	require.Error(t, err)

	// Nothing from the failed copy is queryable in the target
	results, err := r.Query(ctx, "dst", QueryRequest{Text: "inventory", TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "shared", results[0].Chunk.ID)
	assert.Equal(t, "shared inventory ledger", results[0].Chunk.Text)

	// The live view and the persisted view agree
	stats, err := r.Stats(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunkCount)

	r2 := newTestRegistryAt(t, dbPath)
	stats2, err := r2.Stats(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, stats.ChunkCount, stats2.ChunkCount)
}

func TestQueryBestStableAcrossClonedNamespaces(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "ns-b", engineeringDocs()...)
	_, err := r.Clone(ctx, "ns-b", "ns-a")
	require.NoError(t, err)

	req := QueryRequest{Text: "python style", TopK: 4}
	first, err := r.QueryBest(ctx, []string{"ns-a", "ns-b"}, req)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// The clone pools the same chunk IDs at the same scores; equal
	// (score, id) pairs order by namespace
	for i := 1; i < len(first); i++ {
		if first[i-1].Score == first[i].Score && first[i-1].Chunk.ID == first[i].Chunk.ID {
			assert.Less(t, first[i-1].Namespace, first[i].Namespace)
		}
	}

	// Re-running, with the namespaces listed in the other order, yields
	// the identical ranking
	again, err := r.QueryBest(ctx, []string{"ns-b", "ns-a"}, req)
	require.NoError(t, err)
	require.Len(t, again, len(first))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, again[i].Chunk.ID)
		assert.Equal(t, first[i].Namespace, again[i].Namespace)
	}
}

// semanticStub reports a remote provider name while embedding locally.
type semanticStub struct {
	embedder.Embedder
}

func (semanticStub) Provider() string { return embedder.ProviderOllama }

func TestQueryTermFilterOnlyGatesLocalProvider(t *testing.T) {
	st, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	local, err := embedder.NewLocalProvider(64, nil)
	require.NoError(t, err)
	cm := cache.NewManager(time.Minute, 100, 10000, 0.01)

	r, err := New(context.Background(), st, semanticStub{local}, cm, Config{SearchTimeout: 5 * time.Second})
	require.NoError(t, err)

	ingestDocs(t, r, "eng", engineeringDocs()...)

	// No query term appears anywhere in the namespace, but a semantic
	// provider can still surface vector matches, so the search must run
	results, err := r.Query(context.Background(), "eng", QueryRequest{Text: "serpent wrangling", TopK: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	// The local token-hash provider shares the filter's view of the terms,
	// so the same query short-circuits to empty
	rLocal := newTestRegistry(t)
	ingestDocs(t, rLocal, "eng", engineeringDocs()...)
	results, err = rLocal.Query(context.Background(), "eng", QueryRequest{Text: "serpent wrangling", TopK: 3})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	dir := t.TempDir()
	path, err := r.Backup(ctx, "eng", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eng.json"), path)

	res, err := r.RestoreBackup(ctx, path, "eng-restored")
	require.NoError(t, err)
	assert.Equal(t, "eng-restored", res.Namespace)
	assert.Equal(t, 3, res.ChunksRestored)

	results, err := r.Query(ctx, "eng-restored", QueryRequest{Text: "python", TopK: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRestoreBackupReplacesContents(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)
	path, err := r.Backup(ctx, "eng", t.TempDir())
	require.NoError(t, err)

	ingestDocs(t, r, "eng", &types.Chunk{ID: "late", Text: "added after the backup"})

	res, err := r.RestoreBackup(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, "eng", res.Namespace)
	assert.Equal(t, 3, res.ChunksRestored)

	stats, err := r.Stats(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunkCount)
}

func TestRestoreBackupUnknownFile(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RestoreBackup(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "")
	require.Error(t, err)
}

func TestOverlap(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "a", engineeringDocs()...)
	_, err := r.Clone(ctx, "a", "b")
	require.NoError(t, err)
	ingestDocs(t, r, "c", &types.Chunk{ID: "c-1", Text: "greenhouse irrigation schedule for tomato seedlings"})

	identical, err := r.Overlap(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 3, identical.SampleSize)
	assert.InDelta(t, 1.0, identical.AverageSimilarity, 1e-6)
	assert.Equal(t, 3, identical.HighOverlapCount)
	assert.InDelta(t, 100.0, identical.HighOverlapPercent, 1e-6)

	disjoint, err := r.Overlap(ctx, "a", "c")
	require.NoError(t, err)
	assert.Less(t, disjoint.AverageSimilarity, identical.AverageSimilarity)

	_, err = r.Overlap(ctx, "a", "a")
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	// An empty side yields an empty report, not an error
	empty, err := r.Overlap(ctx, "a", types.DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.SampleSize)
}

func TestOverview(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &types.Namespace{ID: "eng", Department: "engineering"}))
	ingestDocs(t, r, "eng", engineeringDocs()...)
	require.NoError(t, r.Create(ctx, &types.Namespace{ID: "hr", Department: "people"}))
	ingestDocs(t, r, "hr", &types.Chunk{ID: "hr-1", Text: "vacation policy"})

	ov, err := r.Overview(ctx)
	require.NoError(t, err)

	// The fallback namespace counts too
	assert.Equal(t, 3, ov.TotalNamespaces)
	assert.Equal(t, 4, ov.TotalChunks)
	assert.Equal(t, 3, ov.TotalDocuments)
	assert.Equal(t, []string{"engineering", "people"}, ov.Departments)
	assert.True(t, ov.Cache.Enabled)
	require.Len(t, ov.Namespaces, 3)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	r1 := newTestRegistryAt(t, dbPath)
	ingestDocs(t, r1, "eng", engineeringDocs()...)

	// Fresh registry over the same database lazily reloads the namespace
	r2 := newTestRegistryAt(t, dbPath)
	results, err := r2.Query(ctx, "eng", QueryRequest{Text: "python", TopK: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	stats, err := r2.Stats(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunkCount)
}

func TestStatsAndAnalytics(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)

	stats, err := r.Stats(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, 3, stats.DocumentCount)

	_, err = r.Query(ctx, "eng", QueryRequest{Text: "python", TopK: 2})
	require.NoError(t, err)

	analytics, err := r.Analytics(ctx, "eng", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, analytics.TotalChunks)
	assert.Greater(t, analytics.TotalAccesses, int64(0))
	assert.NotEmpty(t, analytics.TopChunks)
	assert.Equal(t, 2, analytics.DocumentTypes["guide"])
}

func TestClearEmptiesNamespace(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ingestDocs(t, r, "eng", engineeringDocs()...)
	require.NoError(t, r.Clear(ctx, "eng"))

	stats, err := r.Stats(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)

	results, err := r.Query(ctx, "eng", QueryRequest{Text: "python", TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}
