package hnsw

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of the index counters.
type Stats struct {
	DBSize       int           `json:"db_size"`
	Layers       int           `json:"n_layers"`
	Insertions   int64         `json:"n_insertions"`
	Searches     int64         `json:"n_searches"`
	Distances    int64         `json:"n_distances"`
	Comparisons  int64         `json:"n_comparisons"`
	Improvements int64         `json:"n_improve"`
	Elapsed      time.Duration `json:"duration"`
}

// counters are updated by concurrent searches, hence atomics.
type counters struct {
	insertions   atomic.Int64
	searches     atomic.Int64
	distances    atomic.Int64
	comparisons  atomic.Int64
	improvements atomic.Int64
	since        atomic.Int64 // unix nanos of the last reset
}

func (c *counters) reset() {
	c.insertions.Store(0)
	c.searches.Store(0)
	c.distances.Store(0)
	c.comparisons.Store(0)
	c.improvements.Store(0)
	c.since.Store(time.Now().UnixNano())
}

func (c *counters) load() Stats {
	return Stats{
		Insertions:   c.insertions.Load(),
		Searches:     c.searches.Load(),
		Distances:    c.distances.Load(),
		Comparisons:  c.comparisons.Load(),
		Improvements: c.improvements.Load(),
		Elapsed:      time.Duration(time.Now().UnixNano() - c.since.Load()),
	}
}

// swap reads every counter and clears it in the same step.
func (c *counters) swap() Stats {
	now := time.Now().UnixNano()
	return Stats{
		Insertions:   c.insertions.Swap(0),
		Searches:     c.searches.Swap(0),
		Distances:    c.distances.Swap(0),
		Comparisons:  c.comparisons.Swap(0),
		Improvements: c.improvements.Swap(0),
		Elapsed:      time.Duration(now - c.since.Swap(now)),
	}
}

// Stats returns the current counters without clearing them.
func (h *Index[Q, V]) Stats() Stats {
	s := h.stats.load()
	h.fillSizes(&s)
	return s
}

// ResetStats returns the current counters and clears them.
func (h *Index[Q, V]) ResetStats() Stats {
	s := h.stats.swap()
	h.fillSizes(&s)
	return s
}

func (h *Index[Q, V]) fillSizes(s *Stats) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s.DBSize = h.store.Len()
	s.Layers = len(h.graph.layers)
}
