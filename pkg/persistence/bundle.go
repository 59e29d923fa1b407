package persistence

import (
	"fmt"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
)

// Link is one adjacency list of an externally built graph, in the flat
// row form an exporter produces: the neighbors of Source at Layer.
type Link struct {
	Layer     int
	Source    uint32
	Neighbors []hnsw.Neighbor
}

// ImportBundle is a graph built elsewhere, ready for hnsw.Index.BulkImport.
type ImportBundle[V any] struct {
	Vectors     []V
	Links       []Link
	EntryPoints []uint32
}

// ToLayers groups the flat links by layer. Duplicate (layer, source) rows are rejected.
func (b *ImportBundle[V]) ToLayers() ([]map[uint32][]hnsw.Neighbor, error) {
	var layers []map[uint32][]hnsw.Neighbor
	for _, l := range b.Links {
		if l.Layer < 0 {
			return nil, fmt.Errorf("link for node %d has negative layer %d", l.Source, l.Layer)
		}
		for len(layers) <= l.Layer {
			layers = append(layers, make(map[uint32][]hnsw.Neighbor))
		}
		if _, dup := layers[l.Layer][l.Source]; dup {
			return nil, fmt.Errorf("duplicate links for node %d at layer %d", l.Source, l.Layer)
		}
		layers[l.Layer][l.Source] = l.Neighbors
	}
	return layers, nil
}

// ImportInto replaces the content of idx with the bundle.
func ImportInto[Q, V any](idx *hnsw.Index[Q, V], b *ImportBundle[V]) error {
	layers, err := b.ToLayers()
	if err != nil {
		return err
	}
	return idx.BulkImport(b.Vectors, layers, b.EntryPoints)
}

// BundleFromState flattens a snapshot state into bundle form.
func BundleFromState[V any](s hnsw.State[V]) ImportBundle[V] {
	b := ImportBundle[V]{Vectors: s.Vectors, EntryPoints: s.EntryPoint}
	for lc, layer := range s.Layers {
		for id, links := range layer {
			b.Links = append(b.Links, Link{Layer: lc, Source: id, Neighbors: links})
		}
	}
	return b
}
