package iris

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactMatchIsZero(t *testing.T) {
	tpl := Random(rand.New(rand.NewSource(1)), FastDim())
	q := MakeQuery(tpl, FastMaxRotation)
	require.Len(t, q, 2*FastMaxRotation+1)
	assert.Equal(t, FastMaxRotation, q.MaxRotation())

	v, err := QueryToVector(q)
	require.NoError(t, err)
	assert.Equal(t, tpl.Vector(), v)

	d, err := Distance(q, v)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDistanceToleratesRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tpl := Random(rng, FastDim())
	stored := tpl.Vector()

	within := MakeQuery(tpl.Rotated(3), FastMaxRotation)
	d, err := Distance(within, stored)
	require.NoError(t, err)
	assert.Zero(t, d)

	beyond := MakeQuery(tpl.Rotated(FastMaxRotation+3), FastMaxRotation)
	d, err = Distance(beyond, stored)
	require.NoError(t, err)
	assert.Greater(t, d, 0.3)
}

func TestNoisyQueryDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tpl := Random(rng, DefaultDim())
	noisy := WithNoise(rng, tpl, 0.25)

	d, err := Distance(MakeQuery(noisy, DefaultMaxRotation), tpl.Vector())
	require.NoError(t, err)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 0.5)

	other := Random(rng, DefaultDim())
	d2, err := Distance(MakeQuery(other, DefaultMaxRotation), tpl.Vector())
	require.NoError(t, err)
	assert.Greater(t, d2, d)
}

func TestDistanceHonorsMask(t *testing.T) {
	dim := Dim{Codes: 1, Rows: 1, Cols: 4}
	x := NewTemplate(dim)
	y := NewTemplate(dim)
	x.SetBit(0, 0, 0, true)
	x.SetBit(0, 0, 1, true)
	y.SetValid(0, 0, 0, false)

	d, err := VectorDistance(x.Vector(), y.Vector())
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, d, 1e-12)
}

func TestDistanceErrors(t *testing.T) {
	dim := Dim{Codes: 1, Rows: 1, Cols: 4}
	x := NewTemplate(dim)
	empty := Template{Dim: dim, Code: make([]uint64, 1), Mask: make([]uint64, 1)}

	_, err := VectorDistance(x.Vector(), empty.Vector())
	assert.ErrorIs(t, err, ErrEmptyMask)

	_, err = VectorDistance(x.Vector(), NewTemplate(FastDim()).Vector())
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Distance(nil, x.Vector())
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = QueryToVector(Query{x.Vector(), x.Vector()})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
