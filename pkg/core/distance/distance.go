// Package distance provides distance functions over bit-packed vectors.
//
// Vectors are slices of uint64 words. Every function returns the distance as a
// float64 together with an error, which matches the distance contract of the
// hnsw package.
package distance

import (
	"errors"
	"fmt"
	"math/bits"
)

// Metric names a distance function.
type Metric string

const (
	// Hamming counts differing bits.
	Hamming Metric = "hamming"
	// FractionalHamming is Hamming divided by the number of bits compared.
	FractionalHamming Metric = "fractional_hamming"
)

// ErrLengthMismatch is returned when two vectors have different word counts.
var ErrLengthMismatch = errors.New("vector length mismatch")

// WordsFunc is a distance over two word slices.
type WordsFunc func(x, y []uint64) (float64, error)

var wordsFuncs = map[Metric]WordsFunc{
	Hamming:           HammingWords,
	FractionalHamming: FractionalHammingWords,
}

// GetWordsFunc returns the implementation of metric.
func GetWordsFunc(metric Metric) (WordsFunc, error) {
	fn, ok := wordsFuncs[metric]
	if !ok {
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
	return fn, nil
}

// PopcountXOR is the Hamming distance between two 64-bit vectors.
func PopcountXOR(x, y uint64) (float64, error) {
	return float64(bits.OnesCount64(x ^ y)), nil
}

// HammingWords is the number of differing bits between x and y.
func HammingWords(x, y []uint64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(x), len(y))
	}
	n := 0
	for i := range x {
		n += bits.OnesCount64(x[i] ^ y[i])
	}
	return float64(n), nil
}

// FractionalHammingWords is HammingWords divided by the bit length of x.
// Two empty vectors are at distance 0.
func FractionalHammingWords(x, y []uint64) (float64, error) {
	d, err := HammingWords(x, y)
	if err != nil || len(x) == 0 {
		return 0, err
	}
	return d / float64(64*len(x)), nil
}

// MaskedCounts returns the number of differing bits of x and y restricted to
// the bits set in both masks, and the number of bits set in both masks.
// All four slices must have the same length.
func MaskedCounts(x, xMask, y, yMask []uint64) (diff, common int, err error) {
	n := len(x)
	if len(xMask) != n || len(y) != n || len(yMask) != n {
		return 0, 0, fmt.Errorf("%w: code %d/%d, mask %d/%d", ErrLengthMismatch, len(x), len(y), len(xMask), len(yMask))
	}
	for i := 0; i < n; i++ {
		m := xMask[i] & yMask[i]
		common += bits.OnesCount64(m)
		diff += bits.OnesCount64((x[i] ^ y[i]) & m)
	}
	return diff, common, nil
}

// ToBinaryFloats expands the bits of words into a 0/1 float32 vector of
// length 64*len(words). The squared Euclidean distance between two expanded
// vectors equals the Hamming distance between the bit vectors.
func ToBinaryFloats(words []uint64) []float32 {
	out := make([]float32, 64*len(words))
	for i, w := range words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out[64*i+b] = 1
			w &= w - 1
		}
	}
	return out
}

// SquaredEuclidean returns the squared Euclidean distance between two float32 vectors.
func SquaredEuclidean(x, y []float32) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(x), len(y))
	}
	var sum float32
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return float64(sum), nil
}
