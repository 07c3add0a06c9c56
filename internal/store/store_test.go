package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silohq/silosearch/pkg/types"
)

func TestAddAndLen(t *testing.T) {
	s := New("eng", nil)
	require.Equal(t, 0, s.Len())

	err := s.Add([][]float32{{1, 0}, {0, 1}}, []*types.Chunk{
		{ID: "c1", SourceID: "doc-1", Text: "first"},
		{ID: "c2", SourceID: "doc-2", Text: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.DocumentCount())

	// Chunks adopt the store's namespace
	c, ok := s.Chunk("c1")
	require.True(t, ok)
	assert.Equal(t, "eng", c.Namespace)
	assert.Equal(t, types.DefaultLanguage, c.Language)
}

func TestAddLengthMismatch(t *testing.T) {
	s := New("eng", nil)
	err := s.Add([][]float32{{1}}, []*types.Chunk{{ID: "a"}, {ID: "b"}})
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestAddSynthesizesChunks(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1, 0}, {0, 1}}, nil))
	assert.Equal(t, 2, s.Len())

	chunks, _ := s.Snapshot()
	for _, c := range chunks {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "eng", c.Namespace)
	}
}

func TestAddDuplicateID(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}}, []*types.Chunk{{ID: "c1", Text: "x"}}))
	err := s.Add([][]float32{{2}}, []*types.Chunk{{ID: "c1", Text: "y"}})
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestAddConflictLeavesStoreUnchanged(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}}, []*types.Chunk{{ID: "c1", Text: "x"}}))

	// The conflict sits at the end of the batch; the rows before it must
	// not land either
	err := s.Add([][]float32{{2}, {3}}, []*types.Chunk{
		{ID: "c2", Text: "y"},
		{ID: "c1", Text: "z"},
	})
	require.ErrorIs(t, err, types.ErrConflict)

	assert.Equal(t, 1, s.Len())
	_, ok := s.Chunk("c2")
	assert.False(t, ok)

	c, _ := s.Chunk("c1")
	assert.Equal(t, "x", c.Text)
}

func TestAddRejectsDuplicateWithinBatch(t *testing.T) {
	s := New("eng", nil)
	err := s.Add([][]float32{{1}, {2}}, []*types.Chunk{
		{ID: "dup", Text: "a"},
		{ID: "dup", Text: "b"},
	})
	require.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentReadsAndMutations(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1, 0, 0}}, []*types.Chunk{
		{ID: "seed", Text: "python deployment runbook", Tags: []string{"python"}},
	}))

	ctx := context.Background()
	stop := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				s.Clear()
			} else {
				_ = s.Add([][]float32{{1, 0, 0}}, []*types.Chunk{
					{ID: fmt.Sprintf("w-%d", i), Text: "python deployment runbook", Tags: []string{"python"}},
				})
			}
		}
	}()

	var readers sync.WaitGroup
	for g := 0; g < 4; g++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 300; i++ {
				_, _ = s.SearchOverlap(ctx, []string{"python", "runbook"}, 10)
				_, _ = s.FilterIDs(map[string]interface{}{"tags": "python"})
				_ = s.Stats()
			}
		}()
	}

	readers.Wait()
	close(stop)
	writer.Wait()
}

func TestClear(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}}, []*types.Chunk{{ID: "c1", Text: "x"}}))
	s.Clear()
	assert.Equal(t, 0, s.Len())

	_, ok := s.Chunk("c1")
	assert.False(t, ok)
}

func TestChunkReturnsClone(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}}, []*types.Chunk{{ID: "c1", Text: "x", Tags: []string{"a"}}}))

	c, ok := s.Chunk("c1")
	require.True(t, ok)
	c.Tags[0] = "mutated"
	c.Text = "mutated"

	again, _ := s.Chunk("c1")
	assert.Equal(t, "a", again.Tags[0])
	assert.Equal(t, "x", again.Text)
}

func TestTouch(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}}, []*types.Chunk{{ID: "c1", Text: "x"}}))

	s.Touch("c1")
	s.Touch("c1")
	s.Touch("missing") // ignored

	c, _ := s.Chunk("c1")
	assert.Equal(t, int64(2), c.AccessCount)
	assert.False(t, c.LastAccessed.IsZero())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1, 2}, {3, 4}}, []*types.Chunk{
		{ID: "c1", Text: "alpha"},
		{ID: "c2", Text: "beta"},
	}))

	chunks, vectors := s.Snapshot()

	s2 := New("eng-copy", nil)
	require.NoError(t, s2.Restore(chunks, vectors))
	assert.Equal(t, 2, s2.Len())

	c, ok := s2.Chunk("c1")
	require.True(t, ok)
	assert.Equal(t, "eng-copy", c.Namespace)

	// Snapshot is detached from the source store
	chunks[0].Text = "mutated"
	orig, _ := s.Chunk("c1")
	assert.Equal(t, "alpha", orig.Text)
}

func TestRestoreLengthMismatch(t *testing.T) {
	s := New("eng", nil)
	err := s.Restore([]*types.Chunk{{ID: "c1"}}, nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestStats(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1, 0}, {0, 1}}, []*types.Chunk{
		{ID: "c1", SourceID: "doc-1", Text: "hello world"},
		{ID: "c2", SourceID: "doc-1", Text: "hello again"},
	}))

	stats := s.Stats()
	assert.Equal(t, "eng", stats.Namespace)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 2, stats.VectorCount)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, 3, stats.KeywordTerms) // hello, world, again
}

func TestAnalytics(t *testing.T) {
	s := New("eng", nil)
	require.NoError(t, s.Add([][]float32{{1}, {2}, {3}}, []*types.Chunk{
		{ID: "c1", Text: "a", DocumentType: "guide", Department: "engineering"},
		{ID: "c2", Text: "b", DocumentType: "guide", Department: "people"},
		{ID: "c3", Text: "c", DocumentType: "memo", Department: "engineering"},
	}))

	s.Touch("c2")
	s.Touch("c2")
	s.Touch("c3")

	a := s.Analytics(2)
	assert.Equal(t, 3, a.TotalChunks)
	assert.Equal(t, int64(3), a.TotalAccesses)
	require.Len(t, a.TopChunks, 2)
	assert.Equal(t, "c2", a.TopChunks[0].ChunkID)
	assert.Equal(t, "c3", a.TopChunks[1].ChunkID)
	assert.Equal(t, 2, a.DocumentTypes["guide"])
	assert.Equal(t, 2, a.Departments["engineering"])
}
