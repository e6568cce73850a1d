package database

// FaceEmbeddingDim is the fixed dimension for face embeddings (512 for buffalo_l/ResNet100)
const FaceEmbeddingDim = 512

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search queue size, used for both the in-memory
	// graph and pgvector's hnsw.ef_search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after filtering deleted references.
	HNSWSearchMultiplier = 3
)

// Ledger slot keys stored on time entries.
const (
	SlotDay   = "day"
	SlotShift = "shift"
	SlotExtra = "extra"
)
