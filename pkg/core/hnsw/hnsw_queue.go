// Package hnsw provides the implementation of the Hierarchical Navigable Small World
// graph algorithm for approximate nearest neighbor search.
//
// This file defines the two candidate queues used by every graph traversal.
// Both are slices kept sorted by distance: ef is small and fixed, so an O(n)
// shift on insert is cheap, while trimming to the k nearest is a reslice and
// both ends are reachable in O(1).
package hnsw

import (
	"math/bits"
	"sort"
)

// Neighbor is a (distance, node id) pair. Neighbor lists and search results
// are sequences of Neighbor sorted ascending by distance.
type Neighbor struct {
	Distance float64
	ID       uint32
}

// closer orders by distance, breaking ties by id so the order is total.
func closer(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// bisectCost is the number of comparisons of a binary search over n elements.
func bisectCost(n int) int64 {
	return int64(bits.Len(uint(n)))
}

// FurthestQueue keeps its items in ascending order, so the furthest element
// sits at the tail. It holds the running best-k result set of a search.
type FurthestQueue struct {
	items []Neighbor
}

// NewFurthestQueue returns an empty queue with room for capacity items.
func NewFurthestQueue(capacity int) *FurthestQueue {
	return &FurthestQueue{items: make([]Neighbor, 0, capacity)}
}

// Len returns the number of queued items.
func (q *FurthestQueue) Len() int { return len(q.items) }

// Add inserts (dist, id) at its sorted position.
func (q *FurthestQueue) Add(dist float64, id uint32) {
	n := Neighbor{Distance: dist, ID: id}
	i := sort.Search(len(q.items), func(i int) bool { return closer(n, q.items[i]) })
	q.items = append(q.items, Neighbor{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = n
}

// Furthest returns the furthest item. The queue must not be empty.
func (q *FurthestQueue) Furthest() Neighbor {
	return q.items[len(q.items)-1]
}

// TakeFurthest removes and returns the furthest item. The queue must not be empty.
func (q *FurthestQueue) TakeFurthest() Neighbor {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}

// KNearest returns a view of the k nearest items (fewer if the queue is shorter).
// The view is invalidated by the next mutation.
func (q *FurthestQueue) KNearest(k int) []Neighbor {
	if k < len(q.items) {
		return q.items[:k]
	}
	return q.items
}

// TrimToKNearest drops everything but the k nearest items.
func (q *FurthestQueue) TrimToKNearest(k int) {
	if k < len(q.items) {
		q.items = q.items[:k]
	}
}

// Items returns the queued items in ascending order. The slice is shared with the queue.
func (q *FurthestQueue) Items() []Neighbor { return q.items }

// NearestQueue keeps its items in descending order, so the nearest element
// sits at the tail. It is the exploration frontier of a search.
type NearestQueue struct {
	items []Neighbor
}

// NearestQueueFrom builds a frontier holding the same items as w, in O(n).
func NearestQueueFrom(w *FurthestQueue) *NearestQueue {
	items := make([]Neighbor, len(w.items), cap(w.items))
	for i, n := range w.items {
		items[len(w.items)-1-i] = n
	}
	return &NearestQueue{items: items}
}

// Len returns the number of queued items.
func (q *NearestQueue) Len() int { return len(q.items) }

// Add inserts (dist, id) at its sorted position.
func (q *NearestQueue) Add(dist float64, id uint32) {
	n := Neighbor{Distance: dist, ID: id}
	i := sort.Search(len(q.items), func(i int) bool { return closer(q.items[i], n) })
	q.items = append(q.items, Neighbor{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = n
}

// Nearest returns the nearest item. The queue must not be empty.
func (q *NearestQueue) Nearest() Neighbor {
	return q.items[len(q.items)-1]
}

// TakeNearest removes and returns the nearest item. The queue must not be empty.
func (q *NearestQueue) TakeNearest() Neighbor {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}
