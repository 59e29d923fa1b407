package hnsw

import "sync"

// DiscoverEvent describes the first time a node is reached during one
// insertion or search.
type DiscoverEvent struct {
	Node     uint32
	Level    int
	Order    int     // discovery rank within the operation, starting at 0
	Depth    int     // hops from the entry point
	Distance float64 // distance from the query to Node
	Bound    float64 // furthest accepted distance when Node was reached
}

// Tracer observes graph traversals. Begin is called at the start of every
// insertion and search, OnDiscover for each newly reached node.
// Implementations must be safe for concurrent use when searches run in parallel.
type Tracer interface {
	Begin()
	OnDiscover(ev DiscoverEvent)
}

// trace is the per-operation tracing state. A nil *trace disables tracing.
type trace struct {
	tracer Tracer
	depths map[uint32]int
}

func newTrace(t Tracer) *trace {
	if t == nil {
		return nil
	}
	t.Begin()
	return &trace{tracer: t, depths: make(map[uint32]int)}
}

func (t *trace) depth(node uint32) int {
	if t == nil {
		return 0
	}
	return t.depths[node]
}

func (t *trace) discover(node uint32, level, depth int, dist, bound float64) {
	if t == nil {
		return
	}
	if _, seen := t.depths[node]; seen {
		return
	}
	t.depths[node] = depth
	t.tracer.OnDiscover(DiscoverEvent{
		Node:     node,
		Level:    level,
		Order:    len(t.depths) - 1,
		Depth:    depth,
		Distance: dist,
		Bound:    bound,
	})
}

// SearchLog records the discovery events of the latest operation.
type SearchLog struct {
	mu     sync.Mutex
	events []DiscoverEvent
}

// Begin clears the log.
func (l *SearchLog) Begin() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

// OnDiscover appends ev to the log.
func (l *SearchLog) OnDiscover(ev DiscoverEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events in discovery order.
func (l *SearchLog) Events() []DiscoverEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DiscoverEvent, len(l.events))
	copy(out, l.events)
	return out
}
