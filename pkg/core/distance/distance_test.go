package distance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopcountXOR(t *testing.T) {
	d, err := PopcountXOR(0b1011, 0b0110)
	require.NoError(t, err)
	assert.Equal(t, 3.0, d)

	d, _ = PopcountXOR(^uint64(0), 0)
	assert.Equal(t, 64.0, d)
}

func TestHammingWords(t *testing.T) {
	d, err := HammingWords([]uint64{1, 0xff}, []uint64{0, 0x0f})
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)

	_, err = HammingWords([]uint64{1}, []uint64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	f, err := FractionalHammingWords([]uint64{^uint64(0), 0}, []uint64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	f, err = FractionalHammingWords(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, f)
}

func TestMaskedCounts(t *testing.T) {
	diff, common, err := MaskedCounts(
		[]uint64{0b1111}, []uint64{0b0011},
		[]uint64{0b0000}, []uint64{0b0110},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, common)
	assert.Equal(t, 1, diff)

	_, _, err = MaskedCounts([]uint64{0}, []uint64{0, 0}, []uint64{0}, []uint64{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestBinaryFloatsMatchHamming(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		x := []uint64{rng.Uint64(), rng.Uint64()}
		y := []uint64{rng.Uint64(), rng.Uint64()}

		h, err := HammingWords(x, y)
		require.NoError(t, err)
		e, err := SquaredEuclidean(ToBinaryFloats(x), ToBinaryFloats(y))
		require.NoError(t, err)
		assert.Equal(t, h, e)
	}
}

func TestGetWordsFunc(t *testing.T) {
	fn, err := GetWordsFunc(Hamming)
	require.NoError(t, err)
	d, err := fn([]uint64{1}, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	_, err = GetWordsFunc("cosine")
	assert.Error(t, err)
}

func BenchmarkHammingWords(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	x := make([]uint64, 200)
	y := make([]uint64, 200)
	for i := range x {
		x[i], y[i] = rng.Uint64(), rng.Uint64()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = HammingWords(x, y)
	}
}
