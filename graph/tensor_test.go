package graph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorViews(t *testing.T) {
	g := New("views", 16)
	v := g.AddVariable(shapes.Make(dtypes.Float32, 4, 3), "x")
	assert.Equal(t, 12, v.Size())

	row := v.Index(1)
	assert.Equal(t, []int{3}, row.Shape().Dimensions)
	require.Len(t, row.Regions(), 1)
	assert.Equal(t, 3, row.Regions()[0].Start)
	assert.Equal(t, 6, row.Regions()[0].End)

	flat := v.Flatten()
	assert.Equal(t, []int{12}, flat.Shape().Dimensions)
	assert.True(t, flat.SameStorage(v))
	assert.True(t, row.Aliases(v))
	assert.False(t, v.Index(0).Aliases(v.Index(1)))

	require.Panics(t, func() { v.Index(4) })
	require.Panics(t, func() { v.Index(0).Index(0).Index(0) })
}

func TestTensorBroadcast(t *testing.T) {
	g := New("broadcast", 16)
	v := g.AddVariable(shapes.Make(dtypes.Int32, 2), "x")
	b := v.ExpandDims().Broadcast(3)
	assert.Equal(t, []int{3, 2}, b.Shape().Dimensions)
	// All repetitions alias the same storage.
	for i := range 3 {
		assert.True(t, b.Index(i).SameStorage(v))
	}
	require.Panics(t, func() { v.Broadcast(3) }) // Leading axis is not 1.
}

func TestTensorConcat(t *testing.T) {
	g := New("concat", 16)
	a := g.AddVariable(shapes.Make(dtypes.Float32, 2, 3), "a")
	b := g.AddVariable(shapes.Make(dtypes.Float32, 1, 3), "b")
	c := Concat([]*Tensor{a, b})
	assert.Equal(t, []int{3, 3}, c.Shape().Dimensions)
	assert.True(t, c.Index(0).SameStorage(a.Index(0)))
	assert.True(t, c.Index(2).SameStorage(b.Index(0)))

	mismatched := g.AddVariable(shapes.Make(dtypes.Float32, 2, 4), "m")
	require.Panics(t, func() { Concat([]*Tensor{a, mismatched}) })
}

func TestTensorReinterpret(t *testing.T) {
	g := New("reinterpret", 16)
	v := g.AddVariable(shapes.Make(dtypes.Float32, 4), "x")
	u := v.Reinterpret(dtypes.Uint32)
	assert.Equal(t, dtypes.Uint32, u.DType())
	assert.True(t, u.SameStorage(v))
	require.Panics(t, func() { v.Reinterpret(dtypes.Uint16) })
}

func TestTileMapping(t *testing.T) {
	g := New("mapping", 8)
	v := g.AddVariable(shapes.Make(dtypes.Float32, 2, 3), "x")
	v.Index(0).SetTileMapping(3)
	v.Index(1).SetTileMapping(5)
	assert.Equal(t, 3, v.Index(0).TileMapping())
	assert.Equal(t, 5, v.Index(1).TileMapping())
	assert.Equal(t, -1, v.TileMapping()) // Spans two tiles.

	unmapped := g.AddVariable(shapes.Make(dtypes.Float32, 2), "u")
	assert.Equal(t, -1, unmapped.TileMapping())

	// Remapping already mapped elements is a programming error.
	require.Panics(t, func() { v.Index(0).SetTileMapping(0) })
	// Out of range for an 8-tile device.
	require.Panics(t, func() { unmapped.SetTileMapping(8) })
}

func TestInitialValue(t *testing.T) {
	g := New("initial", 4)
	v := g.AddVariable(shapes.Make(dtypes.Int32, 3), "x")
	v.SetTileMapping(0)
	v.SetInitialValue([]int32{1, 7, 3})
	assert.Equal(t, []int32{1, 7, 3}, v.InitialValue())
	assert.Equal(t, []int32{1, 7, 3}, v.Flatten().InitialValue())

	require.Panics(t, func() { v.SetInitialValue([]int64{1, 2, 3}) })
	require.Panics(t, func() { v.SetInitialValue([]int32{1, 2}) })
	require.Panics(t, func() { v.Index(0).SetInitialValue([]int32{1}) })

	// Float16 variables accept []float32, converted on the spot.
	h := g.AddVariable(shapes.Make(dtypes.Float16, 2), "h")
	h.SetInitialValue([]float32{1.5, -2})
	require.NotNil(t, h.InitialValue())
}
