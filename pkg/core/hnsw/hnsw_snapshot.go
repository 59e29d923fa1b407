package hnsw

import (
	"fmt"
	"slices"
)

// State is the minimal data needed to rebuild an index without replaying
// insertions. It is what an external persistence layer saves and loads.
type State[V any] struct {
	M              int
	Mmax0          int
	EfConstruction int
	ML             float64
	Vectors        []V
	EntryPoint     []uint32
	Layers         []map[uint32][]Neighbor
}

// Config returns the construction parameters recorded in the state.
func (s *State[V]) Config() Config {
	return Config{M: s.M, Mmax0: s.Mmax0, EfConstruction: s.EfConstruction, ML: s.ML}
}

// Snapshot exports a deep copy of the index state. Vectors are copied by value.
func (h *Index[Q, V]) Snapshot() State[V] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	layers := make([]map[uint32][]Neighbor, len(h.graph.layers))
	for i, layer := range h.graph.layers {
		cp := make(map[uint32][]Neighbor, len(layer))
		for id, links := range layer {
			cp[id] = slices.Clone(links)
		}
		layers[i] = cp
	}

	return State[V]{
		M:              h.m,
		Mmax0:          h.mMax0,
		EfConstruction: h.efConstruction,
		ML:             h.ml,
		Vectors:        slices.Clone(h.store.vectors),
		EntryPoint:     slices.Clone(h.entryPoint),
		Layers:         layers,
	}
}

// FromState builds a new index from a snapshot.
func FromState[Q, V any](state State[V], dist DistanceFunc[Q, V], toStorage ToStorageFunc[Q, V], optFns ...Option) (*Index[Q, V], error) {
	h, err := New(state.Config(), dist, toStorage, optFns...)
	if err != nil {
		return nil, err
	}
	if err := h.Restore(state); err != nil {
		return nil, err
	}
	return h, nil
}

// Restore replaces the whole content and configuration of the index with state.
// Counters are reset.
func (h *Index[Q, V]) Restore(state State[V]) error {
	cfg := state.Config().withDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	layers, err := buildLayers(len(state.Vectors), state.Layers, state.EntryPoint, cfg.M, cfg.Mmax0)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.m = cfg.M
	h.mMax0 = cfg.Mmax0
	h.efConstruction = cfg.EfConstruction
	h.ml = cfg.ML
	h.store.reset(slices.Clone(state.Vectors))
	h.graph.layers = layers
	h.entryPoint = slices.Clone(state.EntryPoint)
	h.stats.reset()

	return nil
}

// BulkImport replaces the vectors, layers and entry point of the index with
// externally computed data, for example a graph migrated from another HNSW
// implementation. The configuration of the index is kept and the imported
// degrees must respect it. Neighbor lists are sorted on import. The imported
// vectors are counted as insertions.
func (h *Index[Q, V]) BulkImport(vectors []V, layers []map[uint32][]Neighbor, entryPoint []uint32) error {
	h.mu.RLock()
	m, mMax0 := h.m, h.mMax0
	h.mu.RUnlock()

	built, err := buildLayers(len(vectors), layers, entryPoint, m, mMax0)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.store.reset(slices.Clone(vectors))
	h.graph.layers = built
	h.entryPoint = slices.Clone(entryPoint)
	h.stats.insertions.Add(int64(len(vectors)))

	h.logger.Info("bulk import", "vectors", len(vectors), "layers", len(built))
	return nil
}

// buildLayers validates layer data against the index invariants and returns
// an owned copy with bounded, sorted neighbor lists. Membership gaps are
// filled with empty lists: a node present at layer k is added to layers
// below k, every node is added to layer 0 and entry points are added to every
// layer, which is what an incremental build would have produced.
func buildLayers(n int, src []map[uint32][]Neighbor, entryPoint []uint32, m, mMax0 int) ([]Layer, error) {
	if n == 0 {
		if len(entryPoint) > 0 {
			return nil, invalidStatef("entry point set on an empty index")
		}
		for lc, layer := range src {
			if len(layer) > 0 {
				return nil, invalidStatef("layer %d holds nodes but no vectors exist", lc)
			}
		}
		return nil, nil
	}
	if len(entryPoint) == 0 {
		return nil, invalidStatef("missing entry point for %d vectors", n)
	}
	if len(src) == 0 {
		src = []map[uint32][]Neighbor{{}}
	}

	layers := make([]Layer, len(src))
	for lc, layer := range src {
		maxDegree := m
		if lc == 0 {
			maxDegree = mMax0
		}
		out := make(Layer, len(layer))
		for id, links := range layer {
			if int(id) >= n {
				return nil, invalidStatef("layer %d: node %d out of range (%d vectors)", lc, id, n)
			}
			if len(links) > maxDegree {
				return nil, invalidStatef("layer %d: node %d has %d neighbors, max %d", lc, id, len(links), maxDegree)
			}
			for _, nb := range links {
				if int(nb.ID) >= n {
					return nil, invalidStatef("layer %d: node %d links to %d out of range", lc, id, nb.ID)
				}
			}
			list := newNeighborList(links, maxDegree)
			slices.SortFunc(list, func(a, b Neighbor) int {
				if closer(a, b) {
					return -1
				}
				if closer(b, a) {
					return 1
				}
				return 0
			})
			out[id] = list
		}
		layers[lc] = out
	}

	top := len(layers) - 1
	for _, ep := range entryPoint {
		if int(ep) >= n {
			return nil, invalidStatef("entry point %d out of range (%d vectors)", ep, n)
		}
		if _, ok := layers[top][ep]; !ok {
			layers[top][ep] = newNeighborList(nil, maxDegreeAt(top, m, mMax0))
		}
	}

	for lc := top; lc > 0; lc-- {
		for id := range layers[lc] {
			if _, ok := layers[lc-1][id]; !ok {
				layers[lc-1][id] = newNeighborList(nil, maxDegreeAt(lc-1, m, mMax0))
			}
		}
	}
	for id := 0; id < n; id++ {
		if _, ok := layers[0][uint32(id)]; !ok {
			layers[0][uint32(id)] = newNeighborList(nil, mMax0)
		}
	}

	return layers, nil
}

func maxDegreeAt(level, m, mMax0 int) int {
	if level == 0 {
		return mMax0
	}
	return m
}
