package hnsw

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentInsertAndSearch hammers the index from several goroutines.
// Run with -race.
func TestConcurrentInsertAndSearch(t *testing.T) {
	const (
		writers   = 4
		readers   = 8
		perWriter = 150
		words     = 2
	)

	h := newBitIndex(t, smallConfig(), WithTracer(&SearchLog{}))
	fill(t, h, randomBits(rand.New(rand.NewSource(0)), 20, words))

	var wg sync.WaitGroup
	errs := make(chan error, writers+readers)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for _, v := range randomBits(rng, perWriter, words) {
				if _, err := h.Insert(v); err != nil {
					errs <- err
					return
				}
			}
		}(int64(w + 1))
	}

	stop := make(chan struct{})
	var rwg sync.WaitGroup
	for r := 0; r < readers; r++ {
		rwg.Add(1)
		go func(seed int64) {
			defer rwg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
				}
				q := randomBits(rng, 1, words)[0]
				res, err := h.SearchWithEf(q, 5, 20)
				if err != nil {
					errs <- err
					return
				}
				if len(res) != 5 {
					t.Errorf("got %d results", len(res))
					return
				}
				_ = h.Stats()
			}
		}(int64(100 + r))
	}

	wg.Wait()
	close(stop)
	rwg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 20+writers*perWriter, h.Len())
	s := h.ResetStats()
	assert.Equal(t, int64(20+writers*perWriter), s.Insertions)
	assert.Positive(t, s.Searches)
}

// TestConcurrentRestoreAndSearch swaps the whole index while readers search
// and read its configuration. Run with -race.
func TestConcurrentRestoreAndSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	h := newBitIndex(t, smallConfig())
	vectors := randomBits(rng, 60, 2)
	fill(t, h, vectors)
	st := h.Snapshot()
	st.EfConstruction = 32

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := h.Restore(st); err != nil {
				errs <- err
				return
			}
		}
	}()

	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				res, err := h.Search(vectors[i%len(vectors)], 1)
				if err != nil {
					errs <- err
					return
				}
				if len(res) != 1 {
					errs <- assert.AnError
					return
				}
				_ = h.Config()
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 32, h.Config().EfConstruction)
}
