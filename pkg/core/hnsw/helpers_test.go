package hnsw

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/sanonone/irishnsw/pkg/core/distance"
	"github.com/stretchr/testify/require"
)

type bitIndex = Index[[]uint64, []uint64]

func newBitIndex(t testing.TB, cfg Config, opts ...Option) *bitIndex {
	t.Helper()
	h, err := New(cfg, distance.HammingWords, Identity[[]uint64], opts...)
	require.NoError(t, err)
	return h
}

func randomBits(rng *rand.Rand, n, words int) [][]uint64 {
	out := make([][]uint64, n)
	for i := range out {
		v := make([]uint64, words)
		for j := range v {
			v[j] = rng.Uint64()
		}
		out[i] = v
	}
	return out
}

func fill(t testing.TB, h *bitIndex, vectors [][]uint64) {
	t.Helper()
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		require.Equal(t, uint32(i), id)
	}
}

// exact returns the k nearest stored vectors by exhaustive scan.
func exact(vectors [][]uint64, q []uint64, k int) []Neighbor {
	all := make([]Neighbor, len(vectors))
	for i, v := range vectors {
		d, _ := distance.HammingWords(q, v)
		all[i] = Neighbor{Distance: d, ID: uint32(i)}
	}
	slices.SortFunc(all, func(a, b Neighbor) int {
		if closer(a, b) {
			return -1
		}
		if closer(b, a) {
			return 1
		}
		return 0
	})
	return all[:min(k, len(all))]
}

func smallConfig() Config {
	return Config{M: 16, EfConstruction: 64, ML: NormalizedML(16)}
}
