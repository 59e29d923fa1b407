// Package iris models iris templates and the rotation-tolerant masked Hamming
// distance used to match them.
//
// A template is a stack of binary code planes, each Rows x Cols, with a mask of
// the same shape marking the valid bits. Bits are packed row-major into uint64
// words, plane after plane. Eye rotation shows up as a circular shift of the
// columns, so matching compares a query against every shift in
// [-MaxRotation, +MaxRotation] and keeps the best score.
package iris

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrDimensionMismatch is returned when two templates or vectors differ in size.
	ErrDimensionMismatch = errors.New("iris: dimension mismatch")
	// ErrEmptyMask is returned when two vectors share no valid bit.
	ErrEmptyMask = errors.New("iris: no common mask bits")
	// ErrEmptyQuery is returned for a query without rotations.
	ErrEmptyQuery = errors.New("iris: empty query")
)

// Dim is the shape of a template.
type Dim struct {
	Codes int `yaml:"codes" json:"codes"`
	Rows  int `yaml:"rows" json:"rows"`
	Cols  int `yaml:"cols" json:"cols"`
}

// DefaultDim is the full resolution shape: 12,800 bits.
func DefaultDim() Dim { return Dim{Codes: 2, Rows: 32, Cols: 200} }

// FastDim is a reduced shape for quick experiments: 1,600 bits.
func FastDim() Dim { return Dim{Codes: 2, Rows: 16, Cols: 50} }

const (
	// DefaultMaxRotation goes with DefaultDim.
	DefaultMaxRotation = 15
	// FastMaxRotation goes with FastDim.
	FastMaxRotation = 4
)

// Bits returns the number of code bits.
func (d Dim) Bits() int { return d.Codes * d.Rows * d.Cols }

// Words returns the number of uint64 words holding Bits bits.
func (d Dim) Words() int { return (d.Bits() + 63) / 64 }

// Validate rejects non-positive sizes.
func (d Dim) Validate() error {
	if d.Codes < 1 || d.Rows < 1 || d.Cols < 1 {
		return fmt.Errorf("invalid template dimension %dx%dx%d", d.Codes, d.Rows, d.Cols)
	}
	return nil
}

func (d Dim) String() string { return fmt.Sprintf("%dx%dx%d", d.Codes, d.Rows, d.Cols) }

// Template is an iris code with its mask.
type Template struct {
	Dim  Dim
	Code []uint64
	Mask []uint64
}

// NewTemplate returns an all-zero template with a full mask.
func NewTemplate(dim Dim) Template {
	t := Template{
		Dim:  dim,
		Code: make([]uint64, dim.Words()),
		Mask: make([]uint64, dim.Words()),
	}
	for i := 0; i < dim.Bits(); i++ {
		setBit(t.Mask, i, true)
	}
	return t
}

// Random returns a template with uniformly random code bits and a full mask.
func Random(rng *rand.Rand, dim Dim) Template {
	t := NewTemplate(dim)
	for i := range t.Code {
		t.Code[i] = rng.Uint64()
	}
	clearTail(t.Code, dim.Bits())
	return t
}

// WithNoise returns a copy of t where each code bit is flipped with probability level.
// The mask is shared with t.
func WithNoise(rng *rand.Rand, t Template, level float64) Template {
	out := Template{Dim: t.Dim, Code: make([]uint64, len(t.Code)), Mask: t.Mask}
	copy(out.Code, t.Code)
	for i := 0; i < t.Dim.Bits(); i++ {
		if rng.Float64() < level {
			out.Code[i/64] ^= 1 << (i % 64)
		}
	}
	return out
}

// Bit reports the code bit at (plane, row, col).
func (t Template) Bit(plane, row, col int) bool {
	return getBit(t.Code, t.index(plane, row, col))
}

// Valid reports the mask bit at (plane, row, col).
func (t Template) Valid(plane, row, col int) bool {
	return getBit(t.Mask, t.index(plane, row, col))
}

// SetBit sets the code bit at (plane, row, col).
func (t Template) SetBit(plane, row, col int, v bool) {
	setBit(t.Code, t.index(plane, row, col), v)
}

// SetValid sets the mask bit at (plane, row, col).
func (t Template) SetValid(plane, row, col int, v bool) {
	setBit(t.Mask, t.index(plane, row, col), v)
}

func (t Template) index(plane, row, col int) int {
	return (plane*t.Dim.Rows+row)*t.Dim.Cols + col
}

// Rotated rolls the columns of every row by rot positions, wrapping around.
// A positive rot moves bits to higher columns.
func (t Template) Rotated(rot int) Template {
	cols := t.Dim.Cols
	shift := ((rot % cols) + cols) % cols
	out := Template{
		Dim:  t.Dim,
		Code: make([]uint64, len(t.Code)),
		Mask: make([]uint64, len(t.Mask)),
	}
	for row := 0; row < t.Dim.Codes*t.Dim.Rows; row++ {
		base := row * cols
		for c := 0; c < cols; c++ {
			src, dst := base+c, base+(c+shift)%cols
			setBit(out.Code, dst, getBit(t.Code, src))
			setBit(out.Mask, dst, getBit(t.Mask, src))
		}
	}
	return out
}

// Vector returns the storage form of t.
func (t Template) Vector() Vector {
	return Vector{Code: t.Code, Mask: t.Mask}
}

// FromVector rebuilds a template of shape dim from a stored vector.
func FromVector(dim Dim, v Vector) (Template, error) {
	if len(v.Code) != dim.Words() || len(v.Mask) != dim.Words() {
		return Template{}, fmt.Errorf("%w: vector has %d/%d words, %s needs %d",
			ErrDimensionMismatch, len(v.Code), len(v.Mask), dim, dim.Words())
	}
	return Template{Dim: dim, Code: v.Code, Mask: v.Mask}, nil
}

func getBit(words []uint64, i int) bool {
	return words[i/64]&(1<<(i%64)) != 0
}

func setBit(words []uint64, i int, v bool) {
	if v {
		words[i/64] |= 1 << (i % 64)
	} else {
		words[i/64] &^= 1 << (i % 64)
	}
}

func clearTail(words []uint64, bits int) {
	if r := bits % 64; r != 0 {
		words[len(words)-1] &= (1 << r) - 1
	}
}
