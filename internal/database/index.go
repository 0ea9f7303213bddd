package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// indexSnapshot is an immutable view of the open cases. Snapshots are
// never modified after publication; writers build a new one.
type indexSnapshot struct {
	cases []*Case
	byID  map[string]int
}

func (s *indexSnapshot) digest() string {
	ids := make([]string, len(s.cases))
	for i, c := range s.cases {
		ids[i] = c.ID
	}
	return CaseSetDigest(ids)
}

// CaseIndex is the in-memory embedding index backing similarity search.
// Readers load the current snapshot without locking, so a scan never sees a
// partially written case and never blocks ingestion.
type CaseIndex struct {
	snap    atomic.Pointer[indexSnapshot]
	writeMu sync.Mutex
	dim     int
	graph   *HNSWGraph
}

// NewCaseIndex creates an empty index for embeddings of length dim.
// A dim of 0 accepts the first inserted length and enforces it afterwards.
func NewCaseIndex(dim int) *CaseIndex {
	idx := &CaseIndex{dim: dim, graph: NewHNSWGraph()}
	idx.snap.Store(&indexSnapshot{byID: map[string]int{}})
	return idx
}

// Rebuild replaces the index content with the open cases from reader.
// When graphPath holds a graph saved for the same set of cases it is loaded
// instead of rebuilding the HNSW graph; loaded reports which happened. A
// graph load error wraps ErrGraphLoad and is returned after the graph has
// been rebuilt from cases.
func (idx *CaseIndex) Rebuild(ctx context.Context, reader CaseReader, graphPath string) (loaded bool, err error) {
	cases, err := reader.ListOpen(ctx)
	if err != nil {
		return false, fmt.Errorf("list open cases: %w", err)
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if err := idx.publish(cases); err != nil {
		return false, err
	}
	snap := idx.snap.Load()
	loaded, err = idx.graph.Load(graphPath, len(snap.cases), snap.digest())
	if err != nil || !loaded {
		idx.graph.Build(snap.cases)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrGraphLoad, err)
		}
		return false, nil
	}
	return true, nil
}

// Reset replaces the index content with cases.
func (idx *CaseIndex) Reset(cases []Case) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if err := idx.publish(cases); err != nil {
		return err
	}
	idx.graph.Build(idx.snap.Load().cases)
	return nil
}

func (idx *CaseIndex) publish(cases []Case) error {
	snap := &indexSnapshot{
		cases: make([]*Case, 0, len(cases)),
		byID:  make(map[string]int, len(cases)),
	}
	for i := range cases {
		if err := idx.checkDim(cases[i].Embedding); err != nil {
			return fmt.Errorf("case %s: %w", cases[i].ID, err)
		}
		snap.byID[cases[i].ID] = len(snap.cases)
		snap.cases = append(snap.cases, cases[i].Clone())
	}
	idx.snap.Store(snap)
	return nil
}

func (idx *CaseIndex) checkDim(embedding []float32) error {
	if len(embedding) == 0 {
		return ErrDimensionMismatch
	}
	if idx.dim == 0 {
		idx.dim = len(embedding)
		return nil
	}
	if len(embedding) != idx.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), idx.dim)
	}
	return nil
}

// Add publishes a new open case.
func (idx *CaseIndex) Add(c *Case) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if err := idx.checkDim(c.Embedding); err != nil {
		return err
	}

	old := idx.snap.Load()
	if _, exists := old.byID[c.ID]; exists {
		return nil
	}

	snap := &indexSnapshot{
		cases: make([]*Case, len(old.cases), len(old.cases)+1),
		byID:  make(map[string]int, len(old.byID)+1),
	}
	copy(snap.cases, old.cases)
	for k, v := range old.byID {
		snap.byID[k] = v
	}
	stored := c.Clone()
	snap.byID[c.ID] = len(snap.cases)
	snap.cases = append(snap.cases, stored)

	idx.snap.Store(snap)
	idx.graph.Add(c.ID, stored.Embedding)
	return nil
}

// Remove unpublishes a case. Removing an unknown ID is a no-op.
func (idx *CaseIndex) Remove(id string) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old := idx.snap.Load()
	if _, exists := old.byID[id]; !exists {
		return
	}

	snap := &indexSnapshot{
		cases: make([]*Case, 0, len(old.cases)-1),
		byID:  make(map[string]int, len(old.byID)-1),
	}
	for _, c := range old.cases {
		if c.ID == id {
			continue
		}
		snap.byID[c.ID] = len(snap.cases)
		snap.cases = append(snap.cases, c)
	}

	idx.snap.Store(snap)
	idx.graph.Delete(id)
	if tomb := idx.graph.Tombstones(); float64(tomb) > HNSWCompactRatio*float64(tomb+len(snap.cases)) {
		idx.graph.Build(snap.cases)
	}
}

// Scan calls fn for every open case in the current snapshot. The case
// passed to fn is shared and must not be modified.
func (idx *CaseIndex) Scan(fn func(c *Case)) {
	snap := idx.snap.Load()
	for _, c := range snap.cases {
		fn(c)
	}
}

// Get returns the indexed case with the given ID.
func (idx *CaseIndex) Get(id string) (*Case, bool) {
	snap := idx.snap.Load()
	i, ok := snap.byID[id]
	if !ok {
		return nil, false
	}
	return snap.cases[i], true
}

// Nearest returns up to k open case IDs approximately closest to query.
// A query of the wrong length matches nothing.
func (idx *CaseIndex) Nearest(query []float32, k int) []string {
	snap := idx.snap.Load()
	if len(snap.cases) == 0 || len(query) != len(snap.cases[0].Embedding) {
		return nil
	}
	ids := idx.graph.Search(query, k)
	live := ids[:0]
	for _, id := range ids {
		if _, ok := snap.byID[id]; ok {
			live = append(live, id)
		}
	}
	return live
}

// Len returns the number of indexed open cases.
func (idx *CaseIndex) Len() int {
	return len(idx.snap.Load().cases)
}

// Dim returns the enforced embedding length (0 until known).
func (idx *CaseIndex) Dim() int {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	return idx.dim
}

// SaveGraph compacts and persists the HNSW graph.
func (idx *CaseIndex) SaveGraph(path string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	snap := idx.snap.Load()
	if idx.graph.Tombstones() > 0 {
		idx.graph.Build(snap.cases)
	}
	return idx.graph.Save(path, snap.digest())
}
