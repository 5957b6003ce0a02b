// Package graph implements the graph-building context the tile primitives compile
// into: variables with per-region tile mappings, vertices bundled into compute sets,
// and the sequential program (copies and compute-set executions) emitted for the
// accelerator.
//
// A Graph is exclusively owned by the invocation building against it: none of its
// methods are safe for concurrent use. Independent invocations may build against
// independent Graphs in parallel without coordination.
//
// Errors on misuse of the builder API (out-of-range tiles, mismatched shapes on a
// copy, connecting a port twice) panic with an exception (see
// github.com/gomlx/exceptions), in the style of a programming error. Callers that
// need to surface construction failures as errors validate before building -- see
// the tile package.
package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tilegraph/types/shapes"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Graph keeps track of the accelerator program being defined: the variables
// allocated (with their tile mappings), the compute sets and their vertices.
//
// Create one with New, giving the number of tiles of the target device.
type Graph struct {
	id       string
	name     string
	numTiles int

	variables   []*Variable
	computeSets []*ComputeSet
}

// New creates an empty Graph for a device with numTiles independent tiles.
func New(name string, numTiles int) *Graph {
	if numTiles <= 0 {
		exceptions.Panicf("graph.New(%q): numTiles must be positive, got %d", name, numTiles)
	}
	g := &Graph{
		id:       uuid.NewString(),
		name:     name,
		numTiles: numTiles,
	}
	klog.V(2).Infof("graph.New(%q): id=%s, numTiles=%d", name, g.id, numTiles)
	return g
}

// Name of the graph, given at construction.
func (g *Graph) Name() string { return g.name }

// ID returns the unique id of the graph, used to namespace debug names.
func (g *Graph) ID() string { return g.id }

// NumTiles of the target device.
func (g *Graph) NumTiles() int { return g.numTiles }

// NumVariables allocated in the graph so far.
func (g *Graph) NumVariables() int { return len(g.variables) }

// checkTile panics if tile is not a valid tile index for the graph's device.
func (g *Graph) checkTile(tile int) {
	if tile < 0 || tile >= g.numTiles {
		exceptions.Panicf("graph %q: tile index %d out of range [0, %d)", g.name, tile, g.numTiles)
	}
}

// Variable is one storage unit allocated in the graph: a contiguous flat buffer
// of shape.Size() elements of shape.DType, each element mapped to some tile.
//
// Variables are only created through Graph.AddVariable; user code manipulates
// Tensor views over them.
type Variable struct {
	graph     *Graph
	index     int
	shape     shapes.Shape
	debugName string

	// tileMapping assigns a tile to intervals of the flat storage.
	// Kept sorted by interval start; intervals never overlap.
	tileMapping []mappedInterval

	// initialValue is the flat host-side contents, if set. See Tensor.SetInitialValue.
	initialValue any
}

// mappedInterval maps flat elements [start, end) of a variable to one tile.
type mappedInterval struct {
	start, end int
	tile       int
}

// AddVariable allocates a new variable of the given shape.
// Its elements are unmapped until Tensor.SetTileMapping is called on (views of) it.
// It returns the Tensor view covering the whole variable.
func (g *Graph) AddVariable(shape shapes.Shape, debugName string) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("graph %q: AddVariable(%q) with invalid shape", g.name, debugName)
	}
	v := &Variable{
		graph:     g,
		index:     len(g.variables),
		shape:     shape.Clone(),
		debugName: debugName,
	}
	g.variables = append(g.variables, v)
	return v.Tensor()
}

// Shape of the variable storage.
func (v *Variable) Shape() shapes.Shape { return v.shape }

// DebugName given at allocation.
func (v *Variable) DebugName() string { return v.debugName }

// Tensor returns the view covering the variable's whole storage.
func (v *Variable) Tensor() *Tensor {
	return &Tensor{
		graph: v.graph,
		shape: v.shape.Clone(),
		regions: []Region{{
			Variable: v,
			Start:    0,
			End:      v.shape.Size(),
		}},
	}
}

// setTileMapping maps the flat interval [start, end) of the variable to tile.
// Remapping previously mapped elements is a programming error.
func (v *Variable) setTileMapping(start, end, tile int) {
	v.graph.checkTile(tile)
	for _, m := range v.tileMapping {
		if start < m.end && m.start < end {
			exceptions.Panicf("variable %q: elements [%d, %d) already mapped to tile %d",
				v.debugName, m.start, m.end, m.tile)
		}
	}
	// Insertion keeping intervals sorted by start.
	pos := len(v.tileMapping)
	for i, m := range v.tileMapping {
		if m.start > start {
			pos = i
			break
		}
	}
	v.tileMapping = append(v.tileMapping, mappedInterval{})
	copy(v.tileMapping[pos+1:], v.tileMapping[pos:])
	v.tileMapping[pos] = mappedInterval{start: start, end: end, tile: tile}
}

// tileOf returns the tile the flat element at offset is mapped to, or -1 if unmapped.
func (v *Variable) tileOf(offset int) int {
	for _, m := range v.tileMapping {
		if offset >= m.start && offset < m.end {
			return m.tile
		}
	}
	return -1
}

// DebugString lists the variables and compute sets of the graph, for logging.
func (g *Graph) DebugString() string {
	s := fmt.Sprintf("Graph %q (id=%s, %d tiles): %d variables, %d compute sets",
		g.name, g.id, g.numTiles, len(g.variables), len(g.computeSets))
	for _, v := range g.variables {
		s += fmt.Sprintf("\n\tvar #%d %q: %s", v.index, v.debugName, v.shape)
	}
	for _, cs := range g.computeSets {
		s += fmt.Sprintf("\n\tcompute set #%d %q: %d vertices", cs.index, cs.name, len(cs.vertices))
	}
	return s
}

// assertSameGraph panics if the tensor doesn't belong to graph g.
func (g *Graph) assertSameGraph(t *Tensor) {
	if t.graph != g {
		exceptions.Panicf("graph %q: tensor belongs to a different graph (%q)", g.name, t.graph.name)
	}
}
