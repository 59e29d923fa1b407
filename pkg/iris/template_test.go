package iris

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDim(t *testing.T) {
	assert.Equal(t, 12800, DefaultDim().Bits())
	assert.Equal(t, 200, DefaultDim().Words())
	assert.Equal(t, 1600, FastDim().Bits())
	assert.Equal(t, 25, FastDim().Words())
	assert.Equal(t, 1, Dim{Codes: 1, Rows: 1, Cols: 3}.Words())
	assert.Error(t, Dim{Codes: 0, Rows: 1, Cols: 1}.Validate())
	assert.Equal(t, "2x16x50", FastDim().String())
}

func TestRandomTemplateHasFullMask(t *testing.T) {
	dim := Dim{Codes: 2, Rows: 3, Cols: 5}
	tpl := Random(rand.New(rand.NewSource(1)), dim)

	for p := 0; p < dim.Codes; p++ {
		for r := 0; r < dim.Rows; r++ {
			for c := 0; c < dim.Cols; c++ {
				assert.True(t, tpl.Valid(p, r, c))
			}
		}
	}
	assert.Zero(t, tpl.Code[0]>>30, "bits past the shape stay clear")
	assert.Zero(t, tpl.Mask[0]>>30)
}

func TestRotatedRollsColumnsPerRow(t *testing.T) {
	dim := Dim{Codes: 1, Rows: 2, Cols: 4}
	tpl := NewTemplate(dim)
	tpl.SetBit(0, 0, 0, true)
	tpl.SetBit(0, 1, 3, true)
	tpl.SetValid(0, 1, 2, false)

	r := tpl.Rotated(1)
	assert.True(t, r.Bit(0, 0, 1))
	assert.False(t, r.Bit(0, 0, 0))
	assert.True(t, r.Bit(0, 1, 0), "wraps within the row")
	assert.False(t, r.Valid(0, 1, 3))
	assert.True(t, r.Valid(0, 1, 2))

	back := r.Rotated(-1)
	assert.Equal(t, tpl.Code, back.Code)
	assert.Equal(t, tpl.Mask, back.Mask)
	assert.Equal(t, tpl.Code, tpl.Rotated(4).Code)
}

func TestWithNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tpl := Random(rng, DefaultDim())

	same := WithNoise(rng, tpl, 0)
	assert.Equal(t, tpl.Code, same.Code)

	noisy := WithNoise(rng, tpl, 0.3)
	d, err := VectorDistance(tpl.Vector(), noisy.Vector())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, d, 0.03)
	assert.NotEqual(t, tpl.Code, noisy.Code)
}

func TestFromVector(t *testing.T) {
	tpl := Random(rand.New(rand.NewSource(3)), FastDim())
	back, err := FromVector(FastDim(), tpl.Vector())
	require.NoError(t, err)
	assert.Equal(t, tpl, back)

	_, err = FromVector(DefaultDim(), tpl.Vector())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
