package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tilegraph/types/xslices"
	"k8s.io/klog/v2"
)

// ComputeSet is a bundle of vertices scheduled to execute together as one unit of
// the program. Vertices placed on different tiles within one compute set execute
// concurrently on the device, so callers must not connect overlapping writable
// storage to two vertices of the same set.
type ComputeSet struct {
	graph    *Graph
	index    int
	name     string
	vertices []*Vertex
}

// AddComputeSet creates a new, empty compute set.
func (g *Graph) AddComputeSet(debugName string) *ComputeSet {
	cs := &ComputeSet{
		graph: g,
		index: len(g.computeSets),
		name:  debugName,
	}
	g.computeSets = append(g.computeSets, cs)
	klog.V(2).Infof("graph %q: compute set #%d %q", g.name, cs.index, debugName)
	return cs
}

// Name of the compute set, given at creation.
func (cs *ComputeSet) Name() string { return cs.name }

// Graph the compute set belongs to.
func (cs *ComputeSet) Graph() *Graph { return cs.graph }

// Vertices added to the compute set so far.
func (cs *ComputeSet) Vertices() []*Vertex { return cs.vertices }

// Vertex is one instance of a computation attached to a single tile, with named
// input/output connection ports and static attributes baked in at build time.
type Vertex struct {
	computeSet *ComputeSet
	name       string

	// tile is -1 until SetTileMapping is called.
	tile         int
	perfEstimate uint64

	connections   []Connection
	initialValues []InitialValue
}

// Connection attaches one or more tensor views to a named port of a vertex.
// Ports connected with a single tensor are scalar ports; ports connected with a
// list (see Vertex.ConnectSlices) are vector ports.
type Connection struct {
	Port    string
	Tensors []*Tensor
}

// InitialValue is a static attribute baked into a vertex instance: a named scalar
// set at graph-build time, not a runtime tensor.
type InitialValue struct {
	Port  string
	Value any
}

// AddVertex instantiates the named vertex in the compute set. The vertex has no
// tile until SetTileMapping is called on it.
func (cs *ComputeSet) AddVertex(name string) *Vertex {
	v := &Vertex{
		computeSet: cs,
		name:       name,
		tile:       -1,
	}
	cs.vertices = append(cs.vertices, v)
	return v
}

// Name of the vertex type.
func (v *Vertex) Name() string { return v.name }

// SetTileMapping places the vertex on the given tile.
func (v *Vertex) SetTileMapping(tile int) {
	v.computeSet.graph.checkTile(tile)
	v.tile = tile
}

// TileMapping returns the tile the vertex is placed on, or -1 if not yet placed.
func (v *Vertex) TileMapping() int { return v.tile }

// SetPerfEstimate records the cycle estimate used by the device scheduler for
// this vertex.
func (v *Vertex) SetPerfEstimate(cycles uint64) {
	v.perfEstimate = cycles
}

// PerfEstimate returns the recorded cycle estimate (0 if unset).
func (v *Vertex) PerfEstimate() uint64 { return v.perfEstimate }

// checkPortFree panics if the named port was already connected or assigned.
func (v *Vertex) checkPortFree(port string) {
	for _, c := range v.connections {
		if c.Port == port {
			exceptions.Panicf("vertex %q: port %q already connected", v.name, port)
		}
	}
	for _, iv := range v.initialValues {
		if iv.Port == port {
			exceptions.Panicf("vertex %q: port %q already has an initial value", v.name, port)
		}
	}
}

// Connect attaches the tensor view to the named scalar port.
func (v *Vertex) Connect(port string, t *Tensor) {
	v.computeSet.graph.assertSameGraph(t)
	v.checkPortFree(port)
	v.connections = append(v.connections, Connection{Port: port, Tensors: []*Tensor{t}})
}

// ConnectSlices attaches the list of tensor views to the named vector port.
func (v *Vertex) ConnectSlices(port string, ts []*Tensor) {
	if len(ts) == 0 {
		exceptions.Panicf("vertex %q: cannot connect empty tensor list to port %q", v.name, port)
	}
	for _, t := range ts {
		v.computeSet.graph.assertSameGraph(t)
	}
	v.checkPortFree(port)
	v.connections = append(v.connections, Connection{Port: port, Tensors: xslices.Copy(ts)})
}

// SetInitialValue bakes a static attribute value into the vertex under the named port.
func (v *Vertex) SetInitialValue(port string, value any) {
	v.checkPortFree(port)
	v.initialValues = append(v.initialValues, InitialValue{Port: port, Value: value})
}

// Connections returns the vertex's port connections, in connection order.
func (v *Vertex) Connections() []Connection { return v.connections }

// Connection returns the connection of the named port, or nil if not connected.
func (v *Vertex) Connection(port string) *Connection {
	for i := range v.connections {
		if v.connections[i].Port == port {
			return &v.connections[i]
		}
	}
	return nil
}

// InitialValues returns the vertex's static attributes, in assignment order.
func (v *Vertex) InitialValues() []InitialValue { return v.initialValues }
