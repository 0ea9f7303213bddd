package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReader struct {
	CaseReader
	cases []Case
}

func (r staticReader) ListOpen(ctx context.Context) ([]Case, error) {
	return r.cases, nil
}

func testCase(id string, emb ...float32) Case {
	return Case{ID: id, OwnerID: "owner", Embedding: emb, State: StateOpen}
}

func TestCaseIndex_AddRemove(t *testing.T) {
	idx := NewCaseIndex(2)

	c1 := testCase("a", 1, 0)
	c2 := testCase("b", 0, 1)
	require.NoError(t, idx.Add(&c1))
	require.NoError(t, idx.Add(&c2))
	require.NoError(t, idx.Add(&c1)) // duplicate is ignored
	assert.Equal(t, 2, idx.Len())

	got, ok := idx.Get("b")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got.Embedding)

	idx.Remove("a")
	idx.Remove("missing")
	assert.Equal(t, 1, idx.Len())
	_, ok = idx.Get("a")
	assert.False(t, ok)
}

func TestCaseIndex_RejectsDimensionMismatch(t *testing.T) {
	idx := NewCaseIndex(3)
	c := testCase("a", 1, 0)
	assert.ErrorIs(t, idx.Add(&c), ErrDimensionMismatch)

	empty := testCase("b")
	assert.ErrorIs(t, idx.Add(&empty), ErrDimensionMismatch)
}

func TestCaseIndex_LearnsDimension(t *testing.T) {
	idx := NewCaseIndex(0)
	c1 := testCase("a", 1, 0, 0)
	require.NoError(t, idx.Add(&c1))
	assert.Equal(t, 3, idx.Dim())

	c2 := testCase("b", 1, 0)
	assert.ErrorIs(t, idx.Add(&c2), ErrDimensionMismatch)
}

func TestCaseIndex_AddCopiesEmbedding(t *testing.T) {
	idx := NewCaseIndex(2)
	c := testCase("a", 1, 0)
	require.NoError(t, idx.Add(&c))

	c.Embedding[0] = 42

	got, _ := idx.Get("a")
	assert.Equal(t, float32(1), got.Embedding[0])
}

func TestCaseIndex_ScanSeesConsistentSnapshot(t *testing.T) {
	idx := NewCaseIndex(4)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			c := testCase(fmt.Sprintf("case-%03d", i), 1, 2, 3, 4)
			_ = idx.Add(&c)
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			idx.Scan(func(c *Case) {
				if len(c.Embedding) != 4 {
					t.Errorf("torn embedding for %s: %v", c.ID, c.Embedding)
				}
			})
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, idx.Len())
}

func TestCaseIndex_Nearest(t *testing.T) {
	idx := NewCaseIndex(2)
	require.NoError(t, idx.Reset([]Case{
		testCase("east", 1, 0),
		testCase("north", 0, 1),
		testCase("northeast", 1, 1),
	}))

	ids := idx.Nearest([]float32{1, 0.05}, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "east", ids[0])

	idx.Remove("east")
	ids = idx.Nearest([]float32{1, 0.05}, 1)
	require.Len(t, ids, 1)
	assert.NotEqual(t, "east", ids[0])
}

func TestCaseIndex_GraphPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.hnsw")
	cases := []Case{
		testCase("a", 1, 0),
		testCase("b", 0, 1),
	}

	idx := NewCaseIndex(2)
	require.NoError(t, idx.Reset(cases))
	require.NoError(t, idx.SaveGraph(path))

	restored := NewCaseIndex(2)
	loaded, err := restored.Rebuild(context.Background(), staticReader{cases: cases}, path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 2, restored.Len())

	ids := restored.Nearest([]float32{0, 1}, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "b", ids[0])

	// A different case count makes the saved graph stale.
	stale := NewCaseIndex(2)
	loaded, err = stale.Rebuild(context.Background(), staticReader{cases: cases[:1]}, path)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 1, stale.Len())
}

func TestCaseIndex_GraphStaleWithSameCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.hnsw")

	idx := NewCaseIndex(2)
	require.NoError(t, idx.Reset([]Case{testCase("a", 1, 0), testCase("b", 0, 1)}))
	require.NoError(t, idx.SaveGraph(path))

	// b resolved and c registered while the graph sat on disk.
	current := []Case{testCase("a", 1, 0), testCase("c", -1, 0)}
	restored := NewCaseIndex(2)
	loaded, err := restored.Rebuild(context.Background(), staticReader{cases: current}, path)
	require.NoError(t, err)
	assert.False(t, loaded)

	ids := restored.Nearest([]float32{-1, 0}, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "c", ids[0])
}

func TestCaseIndex_SaveAfterRemoveLoadsLiveSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.hnsw")
	cases := []Case{testCase("a", 1, 0), testCase("b", 0, 1), testCase("c", -1, 0)}

	idx := NewCaseIndex(2)
	require.NoError(t, idx.Reset(cases))
	idx.Remove("c")
	require.NoError(t, idx.SaveGraph(path))

	restored := NewCaseIndex(2)
	loaded, err := restored.Rebuild(context.Background(), staticReader{cases: cases[:2]}, path)
	require.NoError(t, err)
	assert.True(t, loaded)
	for _, id := range restored.Nearest([]float32{-1, 0}, 3) {
		assert.NotEqual(t, "c", id)
	}
}

func TestCaseIndex_NearestAfterRemovals(t *testing.T) {
	idx := NewCaseIndex(2)
	var cases []Case
	for i := range 50 {
		cases = append(cases, testCase(fmt.Sprintf("n%02d", i), 1, float32(i)/100))
	}
	cases = append(cases, testCase("far", -1, 0))
	require.NoError(t, idx.Reset(cases))

	for i := range 50 {
		idx.Remove(fmt.Sprintf("n%02d", i))
		ids := idx.Nearest([]float32{1, 0}, 1)
		require.Len(t, ids, 1)
		if i == 49 {
			assert.Equal(t, "far", ids[0])
		}
	}
	assert.LessOrEqual(t, idx.graph.Tombstones(), 1)
}

func TestCaseIndex_NearestWrongLength(t *testing.T) {
	idx := NewCaseIndex(2)
	require.NoError(t, idx.Reset([]Case{testCase("a", 1, 0)}))
	assert.Empty(t, idx.Nearest([]float32{1, 0, 0}, 1))
	assert.Empty(t, idx.Nearest(nil, 1))
}

func TestCaseSetDigest_OrderIndependent(t *testing.T) {
	assert.Equal(t, CaseSetDigest([]string{"a", "b", "c"}), CaseSetDigest([]string{"c", "a", "b"}))
	assert.NotEqual(t, CaseSetDigest([]string{"a", "b"}), CaseSetDigest([]string{"a", "c"}))
	assert.NotEqual(t, CaseSetDigest([]string{"ab"}), CaseSetDigest([]string{"a", "b"}))
}

func TestCaseIndex_RebuildCorruptGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.hnsw")
	require.NoError(t, os.WriteFile(path, []byte("not a graph"), 0o644))
	meta, err := json.Marshal(HNSWIndexMetadata{
		CaseCount:  2,
		CaseDigest: CaseSetDigest([]string{"b", "a"}),
		Version:    hnswMetadataVersion,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+".meta", meta, 0o644))

	cases := []Case{testCase("a", 1, 0), testCase("b", 0, 1)}
	idx := NewCaseIndex(2)
	loaded, err := idx.Rebuild(context.Background(), staticReader{cases: cases}, path)
	require.ErrorIs(t, err, ErrGraphLoad)
	assert.False(t, loaded)
	assert.Equal(t, 2, idx.Len())
	assert.Len(t, idx.Nearest([]float32{1, 0}, 1), 1)
}
