package tile

import (
	"github.com/gomlx/tilegraph/graph"
	"github.com/pkg/errors"
)

// buildGather is the build function of the tile_gather primitive: permute the
// leading-axis slots of a tile-partitioned input onto a new tile assignment.
//
// For each output slot, when the source slot already lives on the destination
// tile the source slice is reused in place -- a gather that is a pure relabeling
// costs nothing. Otherwise fresh storage is allocated on the destination tile and
// an explicit copy is emitted. The emitted copies target disjoint destinations,
// so their order in the program is irrelevant.
func buildGather(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error) {
	if len(inputs) != 1 {
		return nil, nil, errors.Errorf("tile_gather: expecting a single input tensor, got %d", len(inputs))
	}
	var params GatherParams
	if err := decodeAttributes(attributes, &params); err != nil {
		return nil, nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	if len(params.Tiles) == 0 {
		return nil, nil, errors.Errorf("tile_gather: empty output tile array")
	}
	input := inputs[0]
	if input.Shape().Rank() == 0 {
		return nil, nil, errors.Errorf("tile_gather: input must have a leading axis, got %s", input.Shape())
	}
	if input.Shape().Dim(0) != len(params.PreviousTiles) {
		return nil, nil, errors.Errorf("tile_gather: inconsistent input size %d and previous tiles length %d",
			input.Shape().Dim(0), len(params.PreviousTiles))
	}
	itemShape := input.Shape().Slice()

	prog := graph.NewProgram()
	outputSlices := make([]*graph.Tensor, 0, len(params.Tiles))
	for i, outputTile := range params.Tiles {
		gatherIdx := params.Indices[i]
		inputItem := input.Index(int(gatherIdx))
		inputTile := params.PreviousTiles[gatherIdx]
		if inputTile == outputTile {
			// No copy: use the existing data on the tile directly.
			outputSlices = append(outputSlices, inputItem.ExpandDims())
			continue
		}
		outputItem := g.AddVariable(itemShape, debugPrefix+"/gather")
		outputItem.SetTileMapping(int(outputTile))
		prog.Add(graph.NewCopy(inputItem, outputItem))
		outputSlices = append(outputSlices, outputItem.ExpandDims())
	}
	output := graph.Concat(outputSlices)
	return prog, []*graph.Tensor{output}, nil
}

func init() {
	register(Primitive{
		Name:  "tile_gather",
		Build: buildGather,
		Metadata: func(numInputs uint32) Metadata {
			return Metadata{
				NumInputs:     numInputs,
				IsElementwise: true,
				IsStateless:   true,
				IsHashable:    true,
			}
		},
	})
}
