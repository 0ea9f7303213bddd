package database

// HNSW parameters of the case graph
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so exact re-scoring still has k results after filtering.
	HNSWSearchMultiplier = 3

	// HNSWCompactRatio is the share of tombstoned nodes above which the
	// graph is rebuilt from the open cases.
	HNSWCompactRatio = 0.25
)
