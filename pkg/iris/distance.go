package iris

import (
	"fmt"
	"math"

	"github.com/sanonone/irishnsw/pkg/core/distance"
)

// Vector is the stored form of a template: its unrotated code and mask.
type Vector struct {
	Code []uint64
	Mask []uint64
}

// Query holds every rotation of a template, from -MaxRotation to +MaxRotation.
// The middle entry is the unrotated template.
type Query []Vector

// MakeQuery precomputes the rotations of t.
func MakeQuery(t Template, maxRotation int) Query {
	q := make(Query, 0, 2*maxRotation+1)
	for rot := -maxRotation; rot <= maxRotation; rot++ {
		q = append(q, t.Rotated(rot).Vector())
	}
	return q
}

// MaxRotation returns the rotation range covered by q.
func (q Query) MaxRotation() int { return len(q) / 2 }

// QueryToVector returns the unrotated entry of q, which is what gets stored.
func QueryToVector(q Query) (Vector, error) {
	if len(q) == 0 || len(q)%2 == 0 {
		return Vector{}, fmt.Errorf("%w: %d rotations", ErrEmptyQuery, len(q))
	}
	return q[len(q)/2], nil
}

// Distance is the smallest masked fractional Hamming distance between any
// rotation of q and v: popcount((x ^ y) & mx & my) / popcount(mx & my).
func Distance(q Query, v Vector) (float64, error) {
	if len(q) == 0 {
		return 0, ErrEmptyQuery
	}
	best := math.Inf(1)
	for _, x := range q {
		d, err := VectorDistance(x, v)
		if err != nil {
			return 0, err
		}
		if d < best {
			best = d
		}
	}
	return best, nil
}

// VectorDistance is the masked fractional Hamming distance between two vectors.
func VectorDistance(x, y Vector) (float64, error) {
	diff, common, err := distance.MaskedCounts(x.Code, x.Mask, y.Code, y.Mask)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	if common == 0 {
		return 0, ErrEmptyMask
	}
	return float64(diff) / float64(common), nil
}
