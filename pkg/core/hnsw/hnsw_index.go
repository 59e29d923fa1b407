// Package hnsw provides the implementation of the Hierarchical Navigable Small World
// (HNSW) graph algorithm for approximate nearest neighbor search.
//
// The Index is generic over a query type Q and a stored vector type V. It only
// knows them through two injected functions: a distance from a query to a
// stored vector, and a conversion from a query to the vector that is stored.
// This lets a query carry extra data (for example precomputed rotations of a
// biometric template) while the store keeps a compact canonical form.
package hnsw

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// DistanceFunc computes the distance from a query to a stored vector.
// It must be non-negative and reproducible; it need not be symmetric.
type DistanceFunc[Q, V any] func(q Q, v V) (float64, error)

// ToStorageFunc converts a query into the vector that is stored for it.
type ToStorageFunc[Q, V any] func(q Q) (V, error)

// Identity is a ToStorageFunc for indexes whose queries are stored as-is.
func Identity[T any](q T) (T, error) { return q, nil }

// Index represents the hierarchical graph structure.
type Index[Q, V any] struct {
	// mu serializes every structural mutation. Searches share the read lock.
	mu sync.RWMutex

	m              int // max neighbors per node on layers > 0
	mMax0          int // max neighbors per node on layer 0
	efConstruction int
	ml             float64

	distance  DistanceFunc[Q, V]
	toStorage ToStorageFunc[Q, V]

	store      VectorStore[V]
	graph      graph
	entryPoint []uint32

	rng    *rand.Rand // guarded by mu (write)
	logger *slog.Logger
	tracer Tracer

	visitedPool sync.Pool
	stats       counters
}

// New creates an empty index.
func New[Q, V any](cfg Config, dist DistanceFunc[Q, V], toStorage ToStorageFunc[Q, V], optFns ...Option) (*Index[Q, V], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dist == nil {
		return nil, &InvalidParameterError{Name: "distance", Value: nil}
	}
	if toStorage == nil {
		return nil, &InvalidParameterError{Name: "toStorage", Value: nil}
	}

	o := buildOptions(optFns)

	h := &Index[Q, V]{
		m:              cfg.M,
		mMax0:          cfg.Mmax0,
		efConstruction: cfg.EfConstruction,
		ml:             cfg.ML,
		distance:       dist,
		toStorage:      toStorage,
		entryPoint:     make([]uint32, 0, 1),
		rng:            o.rng,
		logger:         o.logger,
		tracer:         o.tracer,
	}
	h.visitedPool = sync.Pool{
		New: func() any {
			return bitset.New(1024)
		},
	}
	h.stats.reset()

	return h, nil
}

// Config returns the construction parameters.
func (h *Index[Q, V]) Config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Config{M: h.m, Mmax0: h.mMax0, EfConstruction: h.efConstruction, ML: h.ml}
}

// Len returns the number of stored vectors.
func (h *Index[Q, V]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.Len()
}

// NumLayers returns the number of materialized layers.
func (h *Index[Q, V]) NumLayers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.graph.layers)
}

// EntryPoint returns a copy of the current entry point set.
func (h *Index[Q, V]) EntryPoint() []uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]uint32(nil), h.entryPoint...)
}

// Vector returns the stored vector with the given id.
func (h *Index[Q, V]) Vector(id uint32) (V, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.Get(id)
}

// Neighbors returns a copy of the neighbor list of id at level.
func (h *Index[Q, V]) Neighbors(id uint32, level int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(id) >= h.store.Len() {
		return nil, &OutOfRangeError{ID: id, Len: h.store.Len()}
	}
	return append([]Neighbor(nil), h.graph.neighborsOf(id, level)...), nil
}

// LayerSizes returns the number of nodes present at each layer.
func (h *Index[Q, V]) LayerSizes() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sizes := make([]int, len(h.graph.layers))
	for i, layer := range h.graph.layers {
		sizes[i] = len(layer)
	}
	return sizes
}

// distanceTo computes the distance from q to a stored node and counts it.
func (h *Index[Q, V]) distanceTo(q Q, id uint32) (float64, error) {
	h.stats.distances.Add(1)
	v, err := h.store.Get(id)
	if err != nil {
		return 0, err
	}
	d, err := h.distance(q, v)
	if err != nil {
		return 0, fmt.Errorf("distance to node %d: %w", id, err)
	}
	return d, nil
}

func (h *Index[Q, V]) recordBisect(n int) {
	h.stats.comparisons.Add(bisectCost(n))
}

// randomLevel draws floor(-ln(U) * mL) with U uniform on (0, 1].
func (h *Index[Q, V]) randomLevel() int {
	u := 1 - h.rng.Float64()
	return int(math.Floor(-math.Log(u) * h.ml))
}

// Insert adds a vector to the index and returns its id.
//
// The search phase runs before any state changes, so an error from the
// distance or conversion function leaves the index untouched.
func (h *Index[Q, V]) Insert(q Q) (uint32, error) {
	vec, err := h.toStorage(q)
	if err != nil {
		return 0, fmt.Errorf("failed to convert query: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tr := newTrace(h.tracer)

	w, err := h.searchInit(q, tr)
	if err != nil {
		return 0, err
	}

	top := h.graph.topLevel()
	level := h.randomLevel()

	// Greedy descent from the top layer down to the new node's level, exclusive.
	for lc := top; lc > level; lc-- {
		if err := h.searchLayer(q, w, 1, lc, tr); err != nil {
			return 0, err
		}
		w.TrimToKNearest(1)
	}

	// Collect the neighbors for every level first so a failure leaves no half-linked node.
	start := min(top, level)
	plan := make([][]Neighbor, start+1)
	for lc := start; lc >= 0; lc-- {
		if err := h.searchLayer(q, w, h.efConstruction, lc, tr); err != nil {
			return 0, err
		}
		plan[lc] = append([]Neighbor(nil), w.KNearest(min(h.m, h.maxDegree(lc)))...)
	}

	id := h.store.Append(vec)
	h.stats.insertions.Add(1)

	for lc := start; lc >= 0; lc-- {
		if err := h.graph.connectBidirectional(id, plan[lc], lc, h.maxDegree(lc), h.recordBisect); err != nil {
			h.logger.Error("connect failed", "id", id, "level", lc, "error", err)
			return id, err
		}
	}

	if level > top {
		// The new node reaches higher than any other: it gets the new layers
		// and becomes the sole entry point.
		for lc := max(top+1, 0); lc <= level; lc++ {
			h.graph.register(id, lc, h.maxDegree(lc))
		}
		h.entryPoint = append(h.entryPoint[:0], id)
		h.logger.Debug("graph grew", "id", id, "layers", len(h.graph.layers))
	}

	return id, nil
}

func (h *Index[Q, V]) maxDegree(level int) int {
	return maxDegreeAt(level, h.m, h.mMax0)
}

// Search returns the k nearest stored vectors to q, ascending by distance,
// using efConstruction as the beam width.
func (h *Index[Q, V]) Search(q Q, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, &InvalidParameterError{Name: "k", Value: k}
	}
	return h.search(q, k, 0)
}

// SearchWithEf is Search with an explicit beam width. ef is raised to k when smaller.
func (h *Index[Q, V]) SearchWithEf(q Q, k, ef int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, &InvalidParameterError{Name: "k", Value: k}
	}
	if ef <= 0 {
		return nil, &InvalidParameterError{Name: "ef", Value: ef}
	}
	return h.search(q, k, ef)
}

// search runs a query with beam width ef; ef 0 means efConstruction.
func (h *Index[Q, V]) search(q Q, k, ef int) ([]Neighbor, error) {
	h.stats.searches.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if ef == 0 {
		ef = h.efConstruction
	}
	if ef < k {
		ef = k
	}

	if len(h.entryPoint) == 0 {
		return []Neighbor{}, nil
	}

	tr := newTrace(h.tracer)

	w, err := h.searchInit(q, tr)
	if err != nil {
		return nil, err
	}

	for lc := h.graph.topLevel(); lc > 0; lc-- {
		if err := h.searchLayer(q, w, 1, lc, tr); err != nil {
			return nil, err
		}
		w.TrimToKNearest(1)
	}

	if err := h.searchLayer(q, w, ef, 0, tr); err != nil {
		return nil, err
	}
	w.TrimToKNearest(k)

	return append(make([]Neighbor, 0, w.Len()), w.Items()...), nil
}

// searchInit builds the initial frontier from the entry point set.
func (h *Index[Q, V]) searchInit(q Q, tr *trace) (*FurthestQueue, error) {
	w := NewFurthestQueue(h.efConstruction + 1)
	for _, ep := range h.entryPoint {
		d, err := h.distanceTo(q, ep)
		if err != nil {
			return nil, err
		}
		h.recordBisect(w.Len())
		w.Add(d, ep)
		tr.discover(ep, h.graph.topLevel(), 0, d, d)
	}
	return w, nil
}

// searchLayer expands the frontier w within one layer until no candidate can
// improve the ef nearest results. w is updated in place.
func (h *Index[Q, V]) searchLayer(q Q, w *FurthestQueue, ef, level int, tr *trace) error {
	if w.Len() == 0 {
		return nil
	}
	layer := h.graph.layerAt(level)

	visited := h.visitedPool.Get().(*bitset.BitSet)
	defer func() {
		visited.ClearAll()
		h.visitedPool.Put(visited)
	}()

	for _, n := range w.Items() {
		visited.Set(uint(n.ID))
	}

	candidates := NearestQueueFrom(w)
	bound := w.Furthest().Distance

	for candidates.Len() > 0 {
		c := candidates.TakeNearest()
		if c.Distance > bound {
			// Every remaining candidate is further than the worst accepted result.
			break
		}
		depth := tr.depth(c.ID) + 1

		for _, e := range layer[c.ID] {
			if visited.Test(uint(e.ID)) {
				continue
			}
			visited.Set(uint(e.ID))

			d, err := h.distanceTo(q, e.ID)
			if err != nil {
				return err
			}
			tr.discover(e.ID, level, depth, d, bound)

			if w.Len() >= ef {
				h.stats.comparisons.Add(1)
				if d >= bound {
					continue
				}
				w.TakeFurthest()
			}

			h.stats.improvements.Add(1)
			h.recordBisect(candidates.Len())
			h.recordBisect(w.Len())
			candidates.Add(d, e.ID)
			w.Add(d, e.ID)
			bound = w.Furthest().Distance
		}
	}
	return nil
}
