package hnsw

// This file defines the layered graph: one sparse adjacency map per layer,
// each mapping a node id to its neighbor list sorted ascending by distance.

import "sort"

// Layer maps a node id to its neighbor list. The list distances are cached
// distances between the node and each neighbor.
type Layer map[uint32][]Neighbor

// graph is the ordered list of layers. Layer 0 holds every node.
type graph struct {
	layers []Layer
}

// layerAt returns the layer at level, or nil if it has not been materialized.
// Reading from a nil Layer is safe.
func (g *graph) layerAt(level int) Layer {
	if level < len(g.layers) {
		return g.layers[level]
	}
	return nil
}

// ensureLayer grows the layer list until level exists and returns that layer.
func (g *graph) ensureLayer(level int) Layer {
	for level >= len(g.layers) {
		g.layers = append(g.layers, make(Layer))
	}
	return g.layers[level]
}

// topLevel returns the index of the top layer, -1 when the graph is empty.
func (g *graph) topLevel() int { return len(g.layers) - 1 }

// neighborsOf returns the neighbor list of node at level (nil if absent).
func (g *graph) neighborsOf(node uint32, level int) []Neighbor {
	return g.layerAt(level)[node]
}

// newNeighborList allocates a list that can absorb one overflow entry
// before trimming, so a node never holds more than maxDegree+1 slots.
func newNeighborList(src []Neighbor, maxDegree int) []Neighbor {
	list := make([]Neighbor, len(src), max(maxDegree, len(src))+1)
	copy(list, src)
	return list
}

// insertSorted inserts n into the ascending list, reusing its capacity.
func insertSorted(list []Neighbor, n Neighbor) []Neighbor {
	i := sort.Search(len(list), func(i int) bool { return closer(n, list[i]) })
	list = append(list, Neighbor{})
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}

// connectBidirectional links q to candidates at level and adds the back-edge
// from every candidate to q. candidates must be sorted ascending and hold at
// most maxDegree entries. A candidate list that overflows is truncated to its
// maxDegree nearest entries. onBisect receives the length of each list a
// back-edge is inserted into.
func (g *graph) connectBidirectional(q uint32, candidates []Neighbor, level, maxDegree int, onBisect func(n int)) error {
	layer := g.ensureLayer(level)

	if _, exists := layer[q]; exists {
		return &DuplicateNodeError{ID: q, Level: level}
	}
	layer[q] = newNeighborList(candidates, maxDegree)

	for _, c := range candidates {
		links, ok := layer[c.ID]
		if !ok {
			links = newNeighborList(nil, maxDegree)
		}
		if onBisect != nil {
			onBisect(len(links))
		}
		links = insertSorted(links, Neighbor{Distance: c.Distance, ID: q})
		if len(links) > maxDegree {
			// Plain distance truncation, not the diversity heuristic of the HNSW paper.
			links = links[:maxDegree]
		}
		layer[c.ID] = links
	}
	return nil
}

// register adds q with an empty neighbor list at level if it is not present yet.
func (g *graph) register(q uint32, level, maxDegree int) {
	layer := g.ensureLayer(level)
	if _, ok := layer[q]; !ok {
		layer[q] = newNeighborList(nil, maxDegree)
	}
}
