package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeBasics(t *testing.T) {
	s := Make(dtypes.Float32, 3, 5)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 15, s.Size())
	assert.Equal(t, 5, s.Dim(1))
	assert.Equal(t, 5, s.Dim(-1))
	assert.Equal(t, "(Float32)[3 5]", s.String())
	assert.True(t, s.Ok())
	assert.False(t, Invalid().Ok())

	scalar := Make(dtypes.Int32)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 1, scalar.Size())

	require.Panics(t, func() { Make(dtypes.Float32, 3, 0) })
	require.Panics(t, func() { s.Dim(2) })
}

func TestShapeEqual(t *testing.T) {
	s := Make(dtypes.Float32, 3, 5)
	assert.True(t, s.Equal(Make(dtypes.Float32, 3, 5)))
	assert.False(t, s.Equal(Make(dtypes.Float64, 3, 5)))
	assert.False(t, s.Equal(Make(dtypes.Float32, 5, 3)))
	assert.True(t, s.EqualDimensions(Make(dtypes.Int8, 3, 5)))

	s2 := s.Clone()
	s2.Dimensions[0] = 7
	assert.Equal(t, 3, s.Dimensions[0])
}

func TestSliceAndPrepend(t *testing.T) {
	s := Make(dtypes.Float32, 4, 3, 2)
	item := s.Slice()
	assert.Equal(t, []int{3, 2}, item.Dimensions)
	assert.Equal(t, dtypes.Float32, item.DType)
	back := item.Prepend(4)
	assert.True(t, s.Equal(back))

	scalar := Make(dtypes.Int32)
	require.Panics(t, func() { scalar.Slice() })
	require.Panics(t, func() { item.Prepend(0) })

	// Slice of a rank-1 shape is a scalar.
	assert.True(t, Make(dtypes.Int8, 7).Slice().IsScalar())
}
