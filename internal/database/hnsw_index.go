package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps the HNSW graph for 1:N search over facial reference embeddings.
type HNSWIndex struct {
	graph   *hnsw.Graph[int64]
	idToRef map[int64]*FacialReference // Maps HNSW node ID to reference
	mu      sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToRef: make(map[int64]*FacialReference),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	g.EfSearch = HNSWEfSearch
	return g
}

// BuildFromReferences builds the index from a slice of references.
func (h *HNSWIndex) BuildFromReferences(refs []FacialReference) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToRef = make(map[int64]*FacialReference, len(refs))
	if len(refs) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range refs {
		ref := &refs[i]
		if len(ref.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(ref.ID, ref.Embedding))
		h.idToRef[ref.ID] = ref
	}
	h.graph = g
}

// Search finds the k nearest references to the query embedding.
// Returns references and their cosine distances, closest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]FacialReference, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k*HNSWSearchMultiplier)

	refs := make([]FacialReference, 0, k)
	distances := make([]float64, 0, k)
	for _, n := range neighbors {
		ref, ok := h.idToRef[n.Key]
		if !ok {
			continue // deleted
		}
		refs = append(refs, *ref)
		distances = append(distances, CosineDistance(query, n.Value))
		if len(refs) == k {
			break
		}
	}
	return refs, distances, nil
}

// Add adds a single reference to the index.
func (h *HNSWIndex) Add(ref FacialReference) {
	if len(ref.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(ref.ID, ref.Embedding))
	h.idToRef[ref.ID] = &ref
}

// Delete removes a reference from search results.
// HNSW doesn't support true deletion, so the node stays in the graph but is filtered out.
func (h *HNSWIndex) Delete(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToRef, id)
}

// Count returns the number of indexed references.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRef)
}
