package graph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/types/shapes"
)

// Region is a contiguous range of flat elements [Start, End) of one Variable's
// storage. Tensors are ordered lists of regions; two tensors alias when their
// region lists overlap.
type Region struct {
	Variable   *Variable
	Start, End int
}

// Size of the region, in elements.
func (r Region) Size() int { return r.End - r.Start }

// Overlaps returns whether the two regions share any storage.
func (r Region) Overlaps(r2 Region) bool {
	return r.Variable == r2.Variable && r.Start < r2.End && r2.Start < r.End
}

// Tensor is a view over variable storage: a shape plus the ordered list of storage
// regions backing it, in row-major order. Views created by Index, Flatten, Broadcast,
// Reinterpret or Concat alias the storage of the tensors they are derived from --
// no view operation copies data.
type Tensor struct {
	graph   *Graph
	shape   shapes.Shape
	regions []Region
}

// Shape of the view.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the view's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Graph the tensor belongs to.
func (t *Tensor) Graph() *Graph { return t.graph }

// Size is the number of elements viewed.
func (t *Tensor) Size() int { return t.shape.Size() }

// Regions returns a copy of the storage regions backing the view, in row-major order.
func (t *Tensor) Regions() []Region { return slices.Clone(t.regions) }

// Aliases returns whether the two views share any storage.
func (t *Tensor) Aliases(t2 *Tensor) bool {
	for _, r := range t.regions {
		for _, r2 := range t2.regions {
			if r.Overlaps(r2) {
				return true
			}
		}
	}
	return false
}

// SameStorage returns whether the two views are backed by the identical region
// list -- same variables, same offsets, in the same order.
func (t *Tensor) SameStorage(t2 *Tensor) bool {
	return slices.Equal(t.regions, t2.regions)
}

// sliceRegions returns the regions covering flat elements [from, to) of the view.
func (t *Tensor) sliceRegions(from, to int) []Region {
	if from < 0 || to > t.Size() || from > to {
		exceptions.Panicf("tensor slice [%d, %d) out of range for %s", from, to, t.shape)
	}
	var out []Region
	base := 0
	for _, r := range t.regions {
		rFrom := max(from-base, 0)
		rTo := min(to-base, r.Size())
		if rFrom < rTo {
			out = append(out, Region{Variable: r.Variable, Start: r.Start + rFrom, End: r.Start + rTo})
		}
		base += r.Size()
	}
	return out
}

// Index returns the view of element i of the leading axis: shape loses axis 0.
func (t *Tensor) Index(i int) *Tensor {
	if t.shape.Rank() == 0 {
		exceptions.Panicf("Tensor.Index: cannot index a scalar (%s)", t.shape)
	}
	dim0 := t.shape.Dim(0)
	if i < 0 || i >= dim0 {
		exceptions.Panicf("Tensor.Index(%d): out of range for %s", i, t.shape)
	}
	itemShape := t.shape.Slice()
	itemSize := itemShape.Size()
	return &Tensor{
		graph:   t.graph,
		shape:   itemShape,
		regions: t.sliceRegions(i*itemSize, (i+1)*itemSize),
	}
}

// Flatten returns the rank-1 view of all elements, aliasing the same storage.
func (t *Tensor) Flatten() *Tensor {
	return &Tensor{
		graph:   t.graph,
		shape:   shapes.Make(t.shape.DType, t.Size()),
		regions: slices.Clone(t.regions),
	}
}

// ExpandDims returns the view with a new leading axis of dimension 1.
func (t *Tensor) ExpandDims() *Tensor {
	return &Tensor{
		graph:   t.graph,
		shape:   t.shape.Prepend(1),
		regions: slices.Clone(t.regions),
	}
}

// Broadcast returns the view with its size-1 leading axis repeated n times.
// The repetitions all alias the same storage; no data is materialized.
func (t *Tensor) Broadcast(n int) *Tensor {
	if t.shape.Rank() == 0 || t.shape.Dim(0) != 1 {
		exceptions.Panicf("Tensor.Broadcast: leading axis must have dimension 1, got %s", t.shape)
	}
	if n <= 0 {
		exceptions.Panicf("Tensor.Broadcast(%d): repeat count must be positive", n)
	}
	newShape := t.shape.Clone()
	newShape.Dimensions[0] = n
	regions := make([]Region, 0, n*len(t.regions))
	for range n {
		regions = append(regions, t.regions...)
	}
	return &Tensor{graph: t.graph, shape: newShape, regions: regions}
}

// Reinterpret returns the view with its elements re-typed to dtype, which must have
// the same byte width as the current element type. The view aliases the same storage.
func (t *Tensor) Reinterpret(dtype dtypes.DType) *Tensor {
	if dtype.Memory() != t.shape.DType.Memory() {
		exceptions.Panicf("Tensor.Reinterpret: %s and %s have different widths (%d vs %d bytes)",
			t.shape.DType, dtype, t.shape.DType.Memory(), dtype.Memory())
	}
	newShape := t.shape.Clone()
	newShape.DType = dtype
	return &Tensor{graph: t.graph, shape: newShape, regions: slices.Clone(t.regions)}
}

// Concat concatenates the given views along their leading axis. All views must have
// the same element type and the same dimensions past axis 0. The result aliases the
// storage of every input, in order.
func Concat(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		exceptions.Panicf("graph.Concat of no tensors")
	}
	first := ts[0]
	itemShape := first.shape.Slice()
	dim0 := 0
	var regions []Region
	for _, t := range ts {
		first.graph.assertSameGraph(t)
		if t.shape.DType != first.shape.DType || !t.shape.Slice().EqualDimensions(itemShape) {
			exceptions.Panicf("graph.Concat: incompatible shapes %s and %s", first.shape, t.shape)
		}
		dim0 += t.shape.Dim(0)
		regions = append(regions, t.regions...)
	}
	return &Tensor{
		graph:   first.graph,
		shape:   itemShape.Prepend(dim0),
		regions: regions,
	}
}

// SetTileMapping maps the storage viewed by the tensor to the given tile.
// The view must cover each backing element exactly once (broadcast views cannot
// be mapped).
func (t *Tensor) SetTileMapping(tile int) {
	for _, r := range t.regions {
		r.Variable.setTileMapping(r.Start, r.End, tile)
	}
}

// TileMapping returns the tile the view's storage is mapped to, or -1 if the view
// is unmapped or spans more than one tile.
func (t *Tensor) TileMapping() int {
	tile := -1
	for _, r := range t.regions {
		for off := r.Start; off < r.End; off++ {
			elemTile := r.Variable.tileOf(off)
			if elemTile < 0 {
				return -1
			}
			if tile < 0 {
				tile = elemTile
			} else if tile != elemTile {
				return -1
			}
		}
	}
	return tile
}
