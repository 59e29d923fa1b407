package iris

import (
	"math/rand"
	"testing"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	idx, err := NewIndex(hnsw.Config{M: 16, EfConstruction: 32, ML: 0.3}, hnsw.WithSeed(1))
	require.NoError(t, err)
	m, err := NewMatcher(idx, FastDim(), FastMaxRotation)
	require.NoError(t, err)
	return m
}

func TestMatcherIdentify(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := newTestMatcher(t)

	enrolled := make([]Template, 60)
	for i := range enrolled {
		enrolled[i] = Random(rng, FastDim())
		id, err := m.Enroll(enrolled[i])
		require.NoError(t, err)
		require.Equal(t, uint32(i), id)
	}

	probe := WithNoise(rng, enrolled[17].Rotated(2), 0.2)
	match, found, err := m.Identify(probe, 32, 0.36)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint32(17), match.ID)

	stranger := Random(rng, FastDim())
	_, found, err = m.Identify(stranger, 32, 0.36)
	require.NoError(t, err)
	assert.False(t, found)

	top, err := m.TopK(probe, 5, 32)
	require.NoError(t, err)
	require.Len(t, top, 5)
	assert.Equal(t, uint32(17), top[0].ID)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i-1].Distance, top[i].Distance)
	}

	back, err := m.Template(17)
	require.NoError(t, err)
	assert.Equal(t, enrolled[17].Code, back.Code)
}

func TestMatcherRejectsForeignShape(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.Enroll(Random(rand.New(rand.NewSource(1)), DefaultDim()))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, found, err := m.Identify(Random(rand.New(rand.NewSource(1)), FastDim()), 8, 0.3)
	require.NoError(t, err)
	assert.False(t, found, "empty index")

	_, err = NewMatcher(m.Index(), FastDim(), FastDim().Cols)
	assert.Error(t, err)
}
