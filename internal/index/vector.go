package index

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorResult is one nearest-neighbor hit.
type VectorResult struct {
	ID    string
	Score float64
}

// VectorIndex wraps coder/hnsw for cosine nearest-neighbor search over
// concept embeddings. Keys are mapped string<->uint64 because the graph
// wants integer keys; deletion is lazy (mappings dropped, node
// orphaned) since removing graph nodes is unreliable.
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewVectorIndex creates an empty vector index for dims-wide vectors.
func NewVectorIndex(dims int) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add upserts vectors by id.
func (v *VectorIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, id := range ids {
		if len(vectors[i]) != v.dims {
			return fmt.Errorf("vector width %d does not match index width %d", len(vectors[i]), v.dims)
		}
		if oldKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, oldKey)
			delete(v.idMap, id)
		}
		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}
	return nil
}

// Search returns the k nearest concepts by cosine similarity.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dims {
		return nil, fmt.Errorf("query width %d does not match index width %d", len(query), v.dims)
	}
	if v.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Overfetch to compensate for lazily deleted orphans.
	orphans := v.graph.Len() - len(v.keyMap)
	if orphans < 0 {
		orphans = 0
	}
	nodes := v.graph.Search(q, k+orphans)

	results := make([]VectorResult, 0, k)
	for _, node := range nodes {
		id, live := v.keyMap[node.Key]
		if !live {
			continue
		}
		dist := v.graph.Distance(q, node.Value)
		results = append(results, VectorResult{ID: id, Score: 1 - float64(dist)})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Clear drops all vectors and mappings.
func (v *VectorIndex) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	v.graph = graph
	v.idMap = make(map[string]uint64)
	v.keyMap = make(map[uint64]string)
	v.nextKey = 0
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
