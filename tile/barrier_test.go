package tile

import (
	"encoding/json"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/graph"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataBarrier(t *testing.T) {
	g := graph.New("test", 8)
	// Two inputs of 8-bit and 32-bit types, mapped to tiles [0,1] and [1,2].
	input8 := CreateShardedVariable(g, shapes.Make(dtypes.Int8, 3), []TileIndex{0, 1}, "in8")
	input32 := CreateShardedVariable(g, shapes.Make(dtypes.Float32, 2), []TileIndex{1, 2}, "in32")
	inputs := []*graph.Tensor{input8, input32}

	attributes := []byte(`{"vname":"TileDataBarrierVertex","inputs_tiles":[[0,1],[1,2]],"max_tile":2}`)
	prog, outputs, err := MustGet("tile_data_barrier").Build(g, inputs, attributes, "op")
	require.NoError(t, err)

	// The barrier is a scheduling fence: outputs are the inputs, by storage.
	require.Len(t, outputs, 2)
	assert.Same(t, input8, outputs[0])
	assert.Same(t, input32, outputs[1])

	// A single compute set, executed once.
	require.Len(t, prog.Statements(), 1)
	exec, ok := prog.Statements()[0].(*graph.Execute)
	require.True(t, ok)

	// Three tile buckets, all non-empty: one vertex each.
	vertices := exec.ComputeSet.Vertices()
	require.Len(t, vertices, 3)
	byTile := map[int]*graph.Vertex{}
	for _, v := range vertices {
		assert.Equal(t, "TileDataBarrierVertex", v.Name())
		assert.Equal(t, uint64(14), v.PerfEstimate())
		byTile[v.TileMapping()] = v
	}
	require.Len(t, byTile, 3)

	// Tile 1 holds slots from both inputs; tiles 0 and 2 hold one slot each.
	data0 := byTile[0].Connection("data")
	require.NotNil(t, data0)
	require.Len(t, data0.Tensors, 1)
	assert.True(t, data0.Tensors[0].SameStorage(input8.Index(0)))
	assert.Equal(t, dtypes.Uint8, data0.Tensors[0].DType())

	data1 := byTile[1].Connection("data")
	require.Len(t, data1.Tensors, 2)
	assert.True(t, data1.Tensors[0].SameStorage(input8.Index(1)))
	assert.True(t, data1.Tensors[1].SameStorage(input32.Index(0)))
	assert.Equal(t, dtypes.Uint8, data1.Tensors[0].DType())
	assert.Equal(t, dtypes.Uint32, data1.Tensors[1].DType())

	data2 := byTile[2].Connection("data")
	require.Len(t, data2.Tensors, 1)
	assert.True(t, data2.Tensors[0].SameStorage(input32.Index(1)))
}

func TestDataBarrierSkipsEmptyBuckets(t *testing.T) {
	g := graph.New("test", 8)
	input := CreateShardedVariable(g, shapes.Make(dtypes.Float16, 4), []TileIndex{5}, "in")
	input.SetInitialValue([]float32{1, 2, 3, 4})

	attributes := []byte(`{"vname":"TileDataBarrierVertex","inputs_tiles":[[5]],"max_tile":5}`)
	prog, _, err := MustGet("tile_data_barrier").Build(g, []*graph.Tensor{input}, attributes, "op")
	require.NoError(t, err)

	// Buckets for tiles 0..4 are empty and contribute no vertex instance.
	exec := prog.Statements()[0].(*graph.Execute)
	require.Len(t, exec.ComputeSet.Vertices(), 1)
	v := exec.ComputeSet.Vertices()[0]
	assert.Equal(t, 5, v.TileMapping())
	// Half-precision data passes through the barrier as 16-bit unsigned words.
	assert.Equal(t, dtypes.Uint16, v.Connection("data").Tensors[0].DType())
}

func TestNewBarrierParams(t *testing.T) {
	p := NewBarrierParams("V", [][]TileIndex{{0, 1}, {7, 2}})
	assert.Equal(t, TileIndex(7), p.MaxTile)
	require.NoError(t, p.Validate(2))

	encoded, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vname":"V","inputs_tiles":[[0,1],[7,2]],"max_tile":7}`, string(encoded))
}

func TestDataBarrierErrors(t *testing.T) {
	g := graph.New("test", 8)
	build := MustGet("tile_data_barrier").Build

	_, _, err := build(g, nil, []byte(`{}`), "op")
	require.ErrorContains(t, err, "at least one input")

	input := CreateShardedVariable(g, shapes.Make(dtypes.Float32, 2), []TileIndex{0, 1}, "in")
	_, _, err = build(g, []*graph.Tensor{input},
		[]byte(`{"vname":"V","inputs_tiles":[[0,1],[2]],"max_tile":2}`), "op")
	require.ErrorContains(t, err, "2 tile arrays for 1 inputs")

	_, _, err = build(g, []*graph.Tensor{input},
		[]byte(`{"vname":"V","inputs_tiles":[[0,3]],"max_tile":2}`), "op")
	require.ErrorContains(t, err, "outside [0, 2]")

	_, _, err = build(g, []*graph.Tensor{input},
		[]byte(`{"vname":"V","inputs_tiles":[[0]],"max_tile":2}`), "op")
	require.ErrorContains(t, err, "has 1 tile slots")

	// 64-bit element types never silently degrade.
	input64 := CreateShardedVariable(g, shapes.Make(dtypes.Float64, 2), []TileIndex{0, 1}, "in64")
	_, _, err = build(g, []*graph.Tensor{input64},
		[]byte(`{"vname":"V","inputs_tiles":[[0,1]],"max_tile":1}`), "op")
	require.ErrorContains(t, err, "unsupported element type")
}
