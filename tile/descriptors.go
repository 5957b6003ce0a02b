package tile

import (
	"encoding/json"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/graph"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/gomlx/tilegraph/types/xslices"
	"github.com/pkg/errors"
)

// TileIndex identifies one execution unit of the device. Valid indices are
// non-negative and smaller than the device's tile count.
type TileIndex = int32

// VertexIOType tags a named connection point of a per-tile vertex.
//
// The integer values are part of the attribute wire encoding.
type VertexIOType int

const (
	// In is a read-only tensor connection.
	In VertexIOType = iota
	// Out is a fresh output tensor connection: new storage is allocated for it.
	Out
	// InOut reuses the storage of the same-named input tensor for the output:
	// no new allocation, no separate output connection.
	InOut
)

// String implements fmt.Stringer.
func (t VertexIOType) String() string {
	switch t {
	case In:
		return "In"
	case Out:
		return "Out"
	case InOut:
		return "InOut"
	}
	return "VertexIOType(?)"
}

// ShapedArray describes one logical tensor -- shape and element type -- without
// committing to placement. It is used to describe vertex I/O before the actual
// tensors are allocated.
type ShapedArray struct {
	Dimensions []int
	DType      dtypes.DType
}

// Shape converts the descriptor to a shapes.Shape.
func (a ShapedArray) Shape() shapes.Shape {
	return shapes.Make(a.DType, a.Dimensions...)
}

// shapedArrayJSON is the wire form of ShapedArray: the dtype is encoded by name.
type shapedArrayJSON struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
}

// MarshalJSON implements json.Marshaler.
func (a ShapedArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapedArrayJSON{Shape: a.Dimensions, DType: a.DType.String()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *ShapedArray) UnmarshalJSON(data []byte) error {
	var raw shapedArrayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithMessage(err, "decoding ShapedArray")
	}
	dtype, err := dtypes.DTypeString(raw.DType)
	if err != nil {
		return errors.WithMessagef(err, "decoding ShapedArray dtype %q", raw.DType)
	}
	a.Dimensions = raw.Shape
	a.DType = dtype
	return nil
}

// VertexIOInfo describes how a tile's slice of a tensor attaches to a named
// vertex port: the port name, its role, the per-tile shaped value, and the
// connection rank (1: flatten the slice to a 1-D view; 2: connect it as-is).
type VertexIOInfo struct {
	Name   string       `json:"name"`
	IOType VertexIOType `json:"iotype"`
	Aval   ShapedArray  `json:"aval"`
	Rank   uint8        `json:"rank"`
}

// UnmarshalJSON implements json.Unmarshaler. A missing rank field defaults to 1.
func (info *VertexIOInfo) UnmarshalJSON(data []byte) error {
	type vertexIOInfoAlias VertexIOInfo
	raw := vertexIOInfoAlias{Rank: 1}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithMessage(err, "decoding VertexIOInfo")
	}
	*info = VertexIOInfo(raw)
	return nil
}

// connectReshape reshapes a tile's slice of a tensor for connection to the port:
// rank 1 flattens to a linear view, rank 2 passes the slice through unreshaped.
func (info *VertexIOInfo) connectReshape(t *graph.Tensor) (*graph.Tensor, error) {
	switch info.Rank {
	case 1:
		return t.Flatten(), nil
	case 2:
		return t, nil
	}
	return nil, errors.Errorf("vertex IO tensor %q must have connection rank 1 or 2, got %d",
		info.Name, info.Rank)
}

// AttributeKind distinguishes the scalar types a static vertex attribute can hold.
type AttributeKind int

const (
	// AttributeU32 is an unsigned 32-bit integer attribute.
	AttributeU32 AttributeKind = iota
	// AttributeF32 is a 32-bit floating-point attribute.
	AttributeF32
)

// AttributeValue is the tagged value of a static vertex attribute: either an
// unsigned integer or a floating-point scalar. The wire encoding keeps the two
// kinds in separate lists (attributes_u32 / attributes_f32); in memory they are
// one type, so the per-kind code paths do not get duplicated.
type AttributeValue struct {
	kind AttributeKind
	u32  uint32
	f32  float32
}

// U32 creates an unsigned-integer attribute value.
func U32(value uint32) AttributeValue {
	return AttributeValue{kind: AttributeU32, u32: value}
}

// F32 creates a floating-point attribute value.
func F32(value float32) AttributeValue {
	return AttributeValue{kind: AttributeF32, f32: value}
}

// Kind of the value.
func (v AttributeValue) Kind() AttributeKind { return v.kind }

// U32 returns the unsigned-integer value; only meaningful if Kind() == AttributeU32.
func (v AttributeValue) U32() uint32 { return v.u32 }

// F32 returns the floating-point value; only meaningful if Kind() == AttributeF32.
func (v AttributeValue) F32() float32 { return v.f32 }

// Value returns the held scalar as an any.
func (v AttributeValue) Value() any {
	if v.kind == AttributeF32 {
		return v.f32
	}
	return v.u32
}

// VertexAttribute is a static attribute baked into every vertex instance of an
// equation at graph-build time: a name plus a scalar value.
type VertexAttribute struct {
	Name  string
	Value AttributeValue
}

// GatherParams describes one cross-tile gather: the input's existing tile
// assignment, the permutation of leading-axis indices to gather, and the tile
// assignment of the output.
type GatherParams struct {
	// PreviousTiles is the tile of each leading-axis slot of the input.
	PreviousTiles []TileIndex `json:"previous_tiles"`
	// Indices of the input slots gathered, one per output slot.
	Indices []TileIndex `json:"indices"`
	// Tiles is the tile of each leading-axis slot of the output.
	Tiles []TileIndex `json:"tiles"`
}

// Validate checks the descriptor invariants: one gather index per output slot,
// and every index valid against the input slots.
func (p *GatherParams) Validate() error {
	if len(p.Indices) != len(p.Tiles) {
		return errors.Errorf("tile gather: %d indices for %d output tiles", len(p.Indices), len(p.Tiles))
	}
	for i, idx := range p.Indices {
		if idx < 0 || int(idx) >= len(p.PreviousTiles) {
			return errors.Errorf("tile gather: index %d at slot %d out of range [0, %d)",
				idx, i, len(p.PreviousTiles))
		}
	}
	return nil
}

// BarrierParams describes one data barrier: the vertex name to instantiate, the
// tile assignment of each leading-axis slot of each input, and the maximum tile
// index referenced (sizing the per-tile buckets).
type BarrierParams struct {
	// VertexName instantiated on every participating tile.
	VertexName string `json:"vname"`
	// InputsTiles holds one tile array per input tensor.
	InputsTiles [][]TileIndex `json:"inputs_tiles"`
	// MaxTile is the largest tile index referenced by InputsTiles.
	MaxTile TileIndex `json:"max_tile"`
}

// NewBarrierParams builds the barrier descriptor for the given per-input tile
// arrays, computing the maximum referenced tile index.
func NewBarrierParams(vertexName string, inputsTiles [][]TileIndex) BarrierParams {
	maxTile := TileIndex(0)
	for _, tiles := range inputsTiles {
		if len(tiles) > 0 {
			maxTile = max(maxTile, xslices.Max(tiles))
		}
	}
	return BarrierParams{
		VertexName:  vertexName,
		InputsTiles: inputsTiles,
		MaxTile:     maxTile,
	}
}

// Validate checks the descriptor invariants against the given number of inputs.
func (p *BarrierParams) Validate(numInputs int) error {
	if len(p.InputsTiles) != numInputs {
		return errors.Errorf("tile data barrier: %d tile arrays for %d inputs",
			len(p.InputsTiles), numInputs)
	}
	if p.MaxTile < 0 {
		return errors.Errorf("tile data barrier: negative max tile %d", p.MaxTile)
	}
	for i, tiles := range p.InputsTiles {
		for k, tile := range tiles {
			if tile < 0 || tile > p.MaxTile {
				return errors.Errorf("tile data barrier: input %d slot %d mapped to tile %d, outside [0, %d]",
					i, k, tile, p.MaxTile)
			}
		}
	}
	return nil
}

// decodeAttributes decodes the JSON attribute payload of one primitive invocation
// into the given descriptor.
func decodeAttributes(attributes []byte, descriptor any) error {
	if err := json.Unmarshal(attributes, descriptor); err != nil {
		return errors.WithMessagef(err, "decoding attribute payload %q", attributes)
	}
	return nil
}
