package tile

import (
	"encoding/json"

	"github.com/gomlx/tilegraph/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TileMapEquation is the declarative description of one tile-mapped operation:
// the vertex to instantiate on each tile of Tiles, how each input/output tensor
// connects to it, the static attributes baked into every instance, and an
// optional performance estimate.
//
// It is the general-purpose mechanism behind the tile primitives: sharded and
// replicated placement, gather and the data barrier encode fixed placement
// patterns that could in principle be phrased as equations, but get tighter
// validation as dedicated primitives.
type TileMapEquation struct {
	// Name of the operation (the original primitive name), used in debug scoping.
	Name string
	// VertexName is the vertex type instantiated on every tile.
	VertexName string

	// Tiles the equation is mapped on, one vertex instance per entry, in order.
	Tiles []TileIndex

	// InputsInfo describe the vertex connection of each input tensor, by position.
	InputsInfo []VertexIOInfo
	// OutputsInfo describe the vertex connection of each output tensor, by position.
	OutputsInfo []VertexIOInfo

	// Attributes baked into every vertex instance.
	Attributes []VertexAttribute

	// GpFilename optionally names the codelet file providing VertexName.
	GpFilename string
	// PerfEstimate is the per-vertex cycle estimate; only set on vertices when > 0.
	PerfEstimate uint64
}

// vertexAttributeJSON is the wire form of one attribute entry.
type vertexAttributeJSON[T uint32 | float32] struct {
	Name  string `json:"name"`
	Value T      `json:"value"`
}

// tileMapEquationJSON is the wire form of TileMapEquation. The attribute list is
// split by kind into the two original field names.
type tileMapEquationJSON struct {
	Pname         string                         `json:"pname"`
	Vname         string                         `json:"vname"`
	Tiles         []TileIndex                    `json:"tiles"`
	InputsInfo    []VertexIOInfo                 `json:"inputs_info"`
	OutputsInfo   []VertexIOInfo                 `json:"outputs_info"`
	AttributesU32 []vertexAttributeJSON[uint32]  `json:"attributes_u32"`
	AttributesF32 []vertexAttributeJSON[float32] `json:"attributes_f32"`
	GpFilename    string                         `json:"gp_filename"`
	PerfEstimate  uint64                         `json:"perf_estimate"`
}

// MarshalJSON implements json.Marshaler.
func (eq TileMapEquation) MarshalJSON() ([]byte, error) {
	raw := tileMapEquationJSON{
		Pname:         eq.Name,
		Vname:         eq.VertexName,
		Tiles:         eq.Tiles,
		InputsInfo:    eq.InputsInfo,
		OutputsInfo:   eq.OutputsInfo,
		AttributesU32: []vertexAttributeJSON[uint32]{},
		AttributesF32: []vertexAttributeJSON[float32]{},
		GpFilename:    eq.GpFilename,
		PerfEstimate:  eq.PerfEstimate,
	}
	for _, attr := range eq.Attributes {
		switch attr.Value.Kind() {
		case AttributeU32:
			raw.AttributesU32 = append(raw.AttributesU32,
				vertexAttributeJSON[uint32]{Name: attr.Name, Value: attr.Value.U32()})
		case AttributeF32:
			raw.AttributesF32 = append(raw.AttributesF32,
				vertexAttributeJSON[float32]{Name: attr.Name, Value: attr.Value.F32()})
		default:
			return nil, errors.Errorf("unknown attribute kind %d for attribute %q", attr.Value.Kind(), attr.Name)
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. Unsigned-integer attributes come
// before floating-point ones in the merged attribute list, each kind in wire order.
func (eq *TileMapEquation) UnmarshalJSON(data []byte) error {
	var raw tileMapEquationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithMessage(err, "decoding TileMapEquation")
	}
	eq.Name = raw.Pname
	eq.VertexName = raw.Vname
	eq.Tiles = raw.Tiles
	eq.InputsInfo = raw.InputsInfo
	eq.OutputsInfo = raw.OutputsInfo
	eq.GpFilename = raw.GpFilename
	eq.PerfEstimate = raw.PerfEstimate
	eq.Attributes = nil
	for _, attr := range raw.AttributesU32 {
		eq.Attributes = append(eq.Attributes, VertexAttribute{Name: attr.Name, Value: U32(attr.Value)})
	}
	for _, attr := range raw.AttributesF32 {
		eq.Attributes = append(eq.Attributes, VertexAttribute{Name: attr.Name, Value: F32(attr.Value)})
	}
	return nil
}

// inOutInputIndex resolves the input descriptor matching an InOut output by name.
// Exactly one input must match: none is an unresolved reference, more than one is
// ambiguous and also rejected.
func (eq *TileMapEquation) inOutInputIndex(name string) (int, error) {
	found := -1
	for i, info := range eq.InputsInfo {
		if info.Name != name {
			continue
		}
		if found >= 0 {
			return -1, errors.Errorf("equation %q: InOut output %q matches more than one input", eq.Name, name)
		}
		found = i
	}
	if found < 0 {
		return -1, errors.Errorf("equation %q: InOut output %q matches no input", eq.Name, name)
	}
	return found, nil
}

// Validate checks the equation against the number of concrete inputs, before any
// graph state is touched: input count, connection ranks, output roles, and InOut
// name resolution.
func (eq *TileMapEquation) Validate(numInputs int) error {
	if numInputs != len(eq.InputsInfo) {
		return errors.Errorf("equation %q: %d inputs for %d input descriptors",
			eq.Name, numInputs, len(eq.InputsInfo))
	}
	for _, info := range eq.InputsInfo {
		if info.Rank != 1 && info.Rank != 2 {
			return errors.Errorf("equation %q: input %q must have connection rank 1 or 2, got %d",
				eq.Name, info.Name, info.Rank)
		}
	}
	for _, info := range eq.OutputsInfo {
		switch info.IOType {
		case Out:
			if info.Rank != 1 && info.Rank != 2 {
				return errors.Errorf("equation %q: output %q must have connection rank 1 or 2, got %d",
					eq.Name, info.Name, info.Rank)
			}
		case InOut:
			if _, err := eq.inOutInputIndex(info.Name); err != nil {
				return err
			}
		default:
			return errors.Errorf("equation %q: unknown IO type %d for output %q",
				eq.Name, info.IOType, info.Name)
		}
	}
	return nil
}

// validateInputs checks the concrete input tensors against the equation: every
// input must be partitioned with one leading-axis slot per tile of Tiles.
// Called before any graph state is touched.
func (eq *TileMapEquation) validateInputs(inputs []*graph.Tensor) error {
	for k, input := range inputs {
		if input.Shape().Rank() == 0 {
			return errors.Errorf("equation %q: input %q is a scalar (%s), expected a leading axis with one slot per tile",
				eq.Name, eq.InputsInfo[k].Name, input.Shape())
		}
		if input.Shape().Dim(0) != len(eq.Tiles) {
			return errors.Errorf("equation %q: input %q has leading-axis extent %d for %d tiles",
				eq.Name, eq.InputsInfo[k].Name, input.Shape().Dim(0), len(eq.Tiles))
		}
	}
	return nil
}

// allocateOutputTensors allocates (or resolves, for InOut) the output tensor of
// each output descriptor. Must be called after Validate.
func (eq *TileMapEquation) allocateOutputTensors(g *graph.Graph, inputs []*graph.Tensor, debugPrefix string) ([]*graph.Tensor, error) {
	outputs := make([]*graph.Tensor, 0, len(eq.OutputsInfo))
	for _, info := range eq.OutputsInfo {
		switch info.IOType {
		case InOut:
			idx, err := eq.inOutInputIndex(info.Name)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, inputs[idx])
		case Out:
			outputs = append(outputs, CreateShardedVariable(
				g, info.Aval.Shape(), eq.Tiles, debugPrefix+"/"+info.Name))
		default:
			return nil, errors.Errorf("equation %q: unknown IO type %d for output %q",
				eq.Name, info.IOType, info.Name)
		}
	}
	return outputs, nil
}

// Apply validates the equation, allocates its outputs and emits its compute set
// into the program: one vertex per tile of Tiles, inputs and plain outputs
// connected with the declared connection ranks, attributes set on every instance,
// and a single scheduled execution of the whole set.
func (eq *TileMapEquation) Apply(g *graph.Graph, prog *graph.Program, inputs []*graph.Tensor, debugPrefix string) ([]*graph.Tensor, error) {
	if err := eq.Validate(len(inputs)); err != nil {
		return nil, err
	}
	if err := eq.validateInputs(inputs); err != nil {
		return nil, err
	}
	outputs, err := eq.allocateOutputTensors(g, inputs, debugPrefix)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("tile equation %q: vertex %q on %d tiles, %d inputs, %d outputs",
		eq.Name, eq.VertexName, len(eq.Tiles), len(inputs), len(outputs))

	cs := g.AddComputeSet(debugPrefix + "/" + eq.Name)
	for tidx, tile := range eq.Tiles {
		v := cs.AddVertex(eq.VertexName)
		v.SetTileMapping(int(tile))
		if eq.PerfEstimate > 0 {
			v.SetPerfEstimate(eq.PerfEstimate)
		}
		for k, info := range eq.InputsInfo {
			connected, err := info.connectReshape(inputs[k].Index(tidx))
			if err != nil {
				return nil, err
			}
			v.Connect(info.Name, connected)
		}
		for k, info := range eq.OutputsInfo {
			// InOut tensors are already the input's storage; only plain outputs connect.
			if info.IOType != Out {
				continue
			}
			connected, err := info.connectReshape(outputs[k].Index(tidx))
			if err != nil {
				return nil, err
			}
			v.Connect(info.Name, connected)
		}
		for _, attr := range eq.Attributes {
			v.SetInitialValue(attr.Name, attr.Value.Value())
		}
	}
	prog.Add(graph.NewExecute(cs))
	return outputs, nil
}

// buildTileMapEquation is the build function of the tile_map_equation_call
// primitive: decode the equation from the attribute payload and apply it.
func buildTileMapEquation(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error) {
	var eq TileMapEquation
	if err := decodeAttributes(attributes, &eq); err != nil {
		return nil, nil, err
	}
	prog := graph.NewProgram()
	outputs, err := eq.Apply(g, prog, inputs, debugPrefix)
	if err != nil {
		return nil, nil, err
	}
	return prog, outputs, nil
}

func init() {
	register(Primitive{
		Name:  "tile_map_equation_call",
		Build: buildTileMapEquation,
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
