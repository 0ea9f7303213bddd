package database

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW graphs.
type HNSWIndexMetadata struct {
	CaseCount  int       `json:"case_count"`
	CaseDigest string    `json:"case_digest"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

const hnswMetadataVersion = 2

// CaseSetDigest identifies a set of case IDs independent of their order.
func CaseSetDigest(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HNSWGraph wraps an HNSW graph keyed by case ID for approximate
// nearest-neighbour lookups over open case embeddings.
//
// Nodes are never deleted from the underlying graph; removed IDs are
// tombstoned and skipped by Search until the next Build.
type HNSWGraph struct {
	graph      *hnsw.Graph[string]
	tombstones map[string]struct{}
	mu         sync.RWMutex
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// NewHNSWGraph creates a new empty graph.
func NewHNSWGraph() *HNSWGraph {
	return &HNSWGraph{graph: newGraph(), tombstones: map[string]struct{}{}}
}

// Build replaces the graph with one built from the given cases and clears
// all tombstones.
func (h *HNSWGraph) Build(cases []*Case) {
	g := newGraph()
	for _, c := range cases {
		if len(c.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(c.ID, c.Embedding))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.tombstones = map[string]struct{}{}
}

// Add inserts a single case. Re-adding a tombstoned ID revives its node.
func (h *HNSWGraph) Add(id string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dead := h.tombstones[id]; dead {
		delete(h.tombstones, id)
		return
	}
	h.graph.Add(hnsw.MakeNode(id, embedding))
}

// Delete tombstones a case. The node stays in the graph because coder/hnsw
// deletion can leave layers with dangling entry points.
func (h *HNSWGraph) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tombstones[id] = struct{}{}
}

// Search returns up to k live case IDs closest to the query.
func (h *HNSWGraph) Search(query []float32, k int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 || k <= 0 {
		return nil
	}
	neighbors := h.graph.Search(query, k+len(h.tombstones))
	ids := make([]string, 0, k)
	for _, n := range neighbors {
		if _, dead := h.tombstones[n.Key]; dead {
			continue
		}
		ids = append(ids, n.Key)
		if len(ids) == k {
			break
		}
	}
	return ids
}

// Len returns the number of live nodes in the graph.
func (h *HNSWGraph) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Len() - len(h.tombstones)
}

// Tombstones returns the number of removed nodes still held by the graph.
func (h *HNSWGraph) Tombstones() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tombstones)
}

// Save persists the graph to disk along with metadata for staleness
// detection. digest must identify the live case set (see CaseSetDigest);
// callers compact tombstones before saving.
func (h *HNSWGraph) Save(path, digest string) error {
	if path == "" {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metaData, err := json.Marshal(HNSWIndexMetadata{
		CaseCount:  h.graph.Len(),
		CaseDigest: digest,
		BuildTime:  time.Now(),
		Version:    hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a graph saved by Save. It reports false when no usable file
// exists or when the saved graph was built over a different case set, in
// which case the caller should Build from the store instead.
func (h *HNSWGraph) Load(path string, expectedCount int, expectedDigest string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil || meta.Version != hnswMetadataVersion ||
		meta.CaseCount != expectedCount || meta.CaseDigest != expectedDigest {
		return false, nil //nolint:nilerr // stale or missing metadata means rebuild
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.graph.EfSearch = HNSWEfSearch
	h.tombstones = map[string]struct{}{}
	return true, nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
