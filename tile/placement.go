package tile

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/graph"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/pkg/errors"
)

// CreateShardedVariable allocates a variable already partitioned across the given
// tiles: its shape is itemShape with a new leading axis of dimension len(tiles),
// and partition i of the leading axis is mapped to tiles[i].
func CreateShardedVariable(g *graph.Graph, itemShape shapes.Shape, tiles []TileIndex, debugName string) *graph.Tensor {
	output := g.AddVariable(itemShape.Prepend(len(tiles)), debugName)
	for i, tile := range tiles {
		output.Index(i).SetTileMapping(int(tile))
	}
	return output
}

// BarrierReinterpretDType maps an element type to the unsigned integer type of the
// same bit width, used so that all tensors participating in a data barrier can
// share one concrete vertex connection type. Only the 8, 16 and 32-bit families
// are supported; 64-bit and wider types are rejected.
func BarrierReinterpretDType(dtype dtypes.DType) (dtypes.DType, error) {
	switch dtype {
	case dtypes.Bool, dtypes.Int8, dtypes.Uint8:
		return dtypes.Uint8, nil
	case dtypes.Int16, dtypes.Uint16, dtypes.Float16, dtypes.BFloat16:
		return dtypes.Uint16, nil
	case dtypes.Int32, dtypes.Uint32, dtypes.Float32:
		return dtypes.Uint32, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported element type %s in tile data barrier", dtype)
}

// buildPutSharded is the build function of the tile_put_sharded primitive:
// shard the single input over tiles along its leading axis. The output is a
// fresh sharded variable, filled with one bulk copy; it never aliases the input.
func buildPutSharded(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error) {
	if len(inputs) != 1 {
		return nil, nil, errors.Errorf("tile_put_sharded: expecting a single input tensor, got %d", len(inputs))
	}
	var tiles []TileIndex
	if err := decodeAttributes(attributes, &tiles); err != nil {
		return nil, nil, err
	}
	input := inputs[0]
	if input.Shape().Rank() == 0 {
		return nil, nil, errors.Errorf("tile_put_sharded: input must have a leading axis to shard, got %s", input.Shape())
	}
	if input.Shape().Dim(0) != len(tiles) {
		return nil, nil, errors.Errorf("tile_put_sharded: inconsistent input size %d and tiles length %d",
			input.Shape().Dim(0), len(tiles))
	}
	output := CreateShardedVariable(g, input.Shape().Slice(), tiles, debugPrefix+"/sharded")
	prog := graph.NewProgram().Add(graph.NewCopy(input, output))
	return prog, []*graph.Tensor{output}, nil
}

// buildPutReplicated is the build function of the tile_put_replicated primitive:
// broadcast the single input over a new leading axis of one entry per tile. The
// broadcast itself is a view (not materialized); only the copy into the fresh
// sharded output moves data.
func buildPutReplicated(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error) {
	if len(inputs) != 1 {
		return nil, nil, errors.Errorf("tile_put_replicated: expecting a single input tensor, got %d", len(inputs))
	}
	var tiles []TileIndex
	if err := decodeAttributes(attributes, &tiles); err != nil {
		return nil, nil, err
	}
	if len(tiles) == 0 {
		return nil, nil, errors.Errorf("tile_put_replicated: empty tile array")
	}
	input := inputs[0]
	broadcast := input.ExpandDims().Broadcast(len(tiles))
	output := CreateShardedVariable(g, input.Shape(), tiles, debugPrefix+"/replicated")
	prog := graph.NewProgram().Add(graph.NewCopy(broadcast, output))
	return prog, []*graph.Tensor{output}, nil
}

func init() {
	register(Primitive{
		Name:  "tile_put_sharded",
		Build: buildPutSharded,
		Metadata: func(numInputs uint32) Metadata {
			return Metadata{
				NumInputs:     numInputs,
				IsElementwise: true,
				IsStateless:   true,
				IsHashable:    true,
			}
		},
	})
	register(Primitive{
		Name:  "tile_put_replicated",
		Build: buildPutReplicated,
		Metadata: func(numInputs uint32) Metadata {
			return Metadata{
				NumInputs: numInputs,
				// Broadcasting over the leading axis spans all destination tiles
				// from one source.
				IsElementwise: false,
				IsStateless:   true,
				IsHashable:    true,
			}
		},
	})
}
