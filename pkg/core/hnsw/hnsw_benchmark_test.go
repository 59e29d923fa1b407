package hnsw

import (
	"math/rand"
	"testing"
)

const benchWords = 200 // 12,800 bits

func BenchmarkInsert(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	vectors := randomBits(rng, b.N, benchWords)
	h := newBitIndex(b, Config{M: 32, EfConstruction: 64, ML: NormalizedML(32)}, WithSeed(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Insert(vectors[i]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParallelSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	h := newBitIndex(b, Config{M: 32, EfConstruction: 64, ML: NormalizedML(32)}, WithSeed(2))
	fill(b, h, randomBits(rng, 5000, benchWords))
	queries := randomBits(rng, 256, benchWords)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := h.SearchWithEf(queries[i%len(queries)], 10, 64); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

func BenchmarkMixedReadWrite(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	h := newBitIndex(b, Config{M: 16, EfConstruction: 64, ML: NormalizedML(16)}, WithSeed(3))
	fill(b, h, randomBits(rng, 2000, benchWords))
	pool := randomBits(rng, 512, benchWords)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			v := pool[i%len(pool)]
			if i%10 == 0 {
				_, _ = h.Insert(v)
			} else {
				_, _ = h.Search(v, 10)
			}
			i++
		}
	})
}
