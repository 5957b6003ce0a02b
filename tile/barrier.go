package tile

import (
	"github.com/gomlx/tilegraph/graph"
	"github.com/pkg/errors"
)

// barrierPerfEstimate is the cycle estimate of the value-free barrier vertex.
const barrierPerfEstimate = 14

// buildDataBarrier is the build function of the tile_data_barrier primitive:
// force all input tensors to participate in exactly one compute set, so the
// device scheduler cannot reorder or overlap their producers/consumers across
// tiles.
//
// Every input is reinterpreted to the unsigned integer type of its bit width
// (see BarrierReinterpretDType), so a single vertex type handles all of them.
// Slots are bucketed by destination tile; each non-empty bucket gets one vertex
// on its tile, with all the bucket's slots connected to the "data" port. The
// outputs are the inputs themselves: the barrier is a scheduling fence, not a
// transform.
func buildDataBarrier(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error) {
	if len(inputs) < 1 {
		return nil, nil, errors.Errorf("tile_data_barrier: expecting at least one input tensor")
	}
	var params BarrierParams
	if err := decodeAttributes(attributes, &params); err != nil {
		return nil, nil, err
	}
	if err := params.Validate(len(inputs)); err != nil {
		return nil, nil, err
	}

	// Bucket every reinterpreted tensor slot by its destination tile.
	tensorsPerTile := make([][]*graph.Tensor, params.MaxTile+1)
	for idx, input := range inputs {
		reinterpretDType, err := BarrierReinterpretDType(input.DType())
		if err != nil {
			return nil, nil, err
		}
		tiles := params.InputsTiles[idx]
		if input.Shape().Rank() == 0 || input.Shape().Dim(0) != len(tiles) {
			return nil, nil, errors.Errorf("tile_data_barrier: input %d of shape %s has %d tile slots",
				idx, input.Shape(), len(tiles))
		}
		reinterpreted := input.Reinterpret(reinterpretDType)
		for k, tile := range tiles {
			tensorsPerTile[tile] = append(tensorsPerTile[tile], reinterpreted.Index(k))
		}
	}

	cs := g.AddComputeSet(debugPrefix + "/tile_data_barrier")
	for tile, tensors := range tensorsPerTile {
		if len(tensors) == 0 {
			continue
		}
		v := cs.AddVertex(params.VertexName)
		v.SetTileMapping(tile)
		v.SetPerfEstimate(barrierPerfEstimate)
		v.ConnectSlices("data", tensors)
	}
	prog := graph.NewProgram().Add(graph.NewExecute(cs))
	return prog, inputs, nil
}

func init() {
	register(Primitive{
		Name:  "tile_data_barrier",
		Build: buildDataBarrier,
		Metadata: func(numInputs uint32) Metadata {
			return Metadata{
				NumInputs:     numInputs,
				IsElementwise: false,
				IsStateless:   true,
				IsHashable:    true,
			}
		},
	})
}
