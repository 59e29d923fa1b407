package hnsw

// VectorStore is the append-only collection of stored vectors.
// The id of a vector is its insertion position.
type VectorStore[V any] struct {
	vectors []V
}

// Append stores v and returns its id.
func (s *VectorStore[V]) Append(v V) uint32 {
	id := uint32(len(s.vectors))
	s.vectors = append(s.vectors, v)
	return id
}

// Get returns the vector stored under id.
func (s *VectorStore[V]) Get(id uint32) (V, error) {
	if int(id) >= len(s.vectors) {
		var zero V
		return zero, &OutOfRangeError{ID: id, Len: len(s.vectors)}
	}
	return s.vectors[id], nil
}

// Len returns the number of stored vectors, which is also the next id.
func (s *VectorStore[V]) Len() int { return len(s.vectors) }

func (s *VectorStore[V]) reset(vectors []V) {
	s.vectors = vectors
}
