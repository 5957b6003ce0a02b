package graph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphNew(t *testing.T) {
	g := New("test", 1472)
	assert.Equal(t, "test", g.Name())
	assert.Equal(t, 1472, g.NumTiles())
	assert.NotEmpty(t, g.ID())
	assert.NotEqual(t, g.ID(), New("test", 1472).ID())
	require.Panics(t, func() { New("bad", 0) })
}

func TestComputeSetAndVertices(t *testing.T) {
	g := New("cs", 8)
	cs := g.AddComputeSet("barrier")
	assert.Equal(t, "barrier", cs.Name())

	v := cs.AddVertex("TileDataBarrierVertex")
	assert.Equal(t, -1, v.TileMapping())
	v.SetTileMapping(5)
	assert.Equal(t, 5, v.TileMapping())
	v.SetPerfEstimate(14)
	assert.Equal(t, uint64(14), v.PerfEstimate())

	x := g.AddVariable(shapes.Make(dtypes.Uint32, 2), "x")
	v.Connect("data", x)
	require.NotNil(t, v.Connection("data"))
	assert.Len(t, v.Connection("data").Tensors, 1)
	assert.Nil(t, v.Connection("other"))

	// Ports connect exactly once.
	require.Panics(t, func() { v.Connect("data", x) })
	require.Panics(t, func() { v.SetInitialValue("data", uint32(3)) })

	v.SetInitialValue("scale", float32(0.5))
	assert.Len(t, v.InitialValues(), 1)

	// Tensors from another graph are rejected.
	other := New("other", 8).AddVariable(shapes.Make(dtypes.Uint32, 2), "y")
	require.Panics(t, func() { v.Connect("data2", other) })
}

func TestProgram(t *testing.T) {
	g := New("prog", 8)
	src := g.AddVariable(shapes.Make(dtypes.Float32, 2, 3), "src")
	dst := g.AddVariable(shapes.Make(dtypes.Float32, 2, 3), "dst")

	cs := g.AddComputeSet("work")
	v := cs.AddVertex("Worker")
	v.SetTileMapping(0)

	prog := NewProgram().Add(NewCopy(src, dst), NewExecute(cs))
	require.Len(t, prog.Statements(), 2)
	assert.Contains(t, prog.String(), "Copy")
	assert.Contains(t, prog.String(), `Execute("work", 1 vertices)`)

	// Copies validate types and sizes.
	require.Panics(t, func() {
		NewCopy(src, g.AddVariable(shapes.Make(dtypes.Float64, 2, 3), "bad"))
	})
	require.Panics(t, func() {
		NewCopy(src, g.AddVariable(shapes.Make(dtypes.Float32, 2, 2), "bad2"))
	})

	// Execute requires every vertex to be placed.
	cs2 := g.AddComputeSet("unplaced")
	cs2.AddVertex("Worker")
	require.Panics(t, func() { NewExecute(cs2) })
}
