// Package tile implements the execution-graph construction layer for
// tile-parallel primitives: operations that place data and computation across
// the independent execution units ("tiles") of a many-core accelerator, and that
// synchronize or move data between them.
//
// Each primitive takes a graph-building context, its input tensor handles, an
// opaque JSON-encoded attribute payload and a debug-naming prefix, and returns
// the sub-program it built plus its output tensor handles:
//
//	prim := tile.MustGet("tile_put_sharded")
//	prog, outputs, err := prim.Build(g, inputs, attributes, "my_op")
//
// Primitives are stateless: every invocation decodes its descriptors from the
// attribute payload, builds against the Graph it is handed, and holds nothing
// across calls. Failures are synchronous construction-time errors; a failed
// invocation is deterministic, so nothing retries internally.
//
// The five primitives are a closed set, dispatched by name:
//
//   - tile_put_sharded: shard a tensor's leading axis 1:1 over a tile array.
//   - tile_put_replicated: broadcast a tensor onto every tile of a tile array.
//   - tile_gather: permute tile-partitioned slots onto a new tile assignment,
//     eliding copies when source and destination tiles coincide.
//   - tile_data_barrier: force a set of tensors through a single compute set,
//     serializing the schedule around them.
//   - tile_map_equation_call: the general form, compiling a declarative per-tile
//     vertex description into a scheduled compute set.
package tile

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tilegraph/graph"
	"github.com/pkg/errors"
)

// BuildFn builds the sub-program of one primitive invocation: it decodes the
// attribute payload, validates it against the inputs, and emits the placement or
// compute set into g. It returns the program and the output tensor handles.
//
// The Graph is exclusively owned by the invocation for the duration of the call.
type BuildFn func(g *graph.Graph, inputs []*graph.Tensor, attributes []byte, debugPrefix string) (*graph.Program, []*graph.Tensor, error)

// Metadata is the fixed contract accompanying each primitive, consumed by the
// host compiler to decide caching and scheduling eligibility. The core build
// logic never computes it.
type Metadata struct {
	// NumInputs the primitive was declared with.
	NumInputs uint32
	// IsElementwise reports whether every output element depends only on the
	// matching input element.
	IsElementwise bool
	// IsStateless reports whether the primitive holds no state across calls.
	IsStateless bool
	// IsHashable reports whether invocations may be cached by content hash.
	IsHashable bool
	// InputOutputAliasing maps input indices to the output indices sharing
	// their storage.
	InputOutputAliasing map[int]int
	// AllocatingIndices lists input indices requiring pre-allocation.
	AllocatingIndices []int
}

// Primitive bundles the build function of one tile primitive with its metadata
// contract.
type Primitive struct {
	// Name the primitive is dispatched by.
	Name string
	// Build constructs the primitive's sub-program.
	Build BuildFn
	// Metadata returns the contract for an invocation with numInputs inputs.
	Metadata func(numInputs uint32) Metadata
}

// registry of the closed set of primitives, keyed by name.
var registry = map[string]Primitive{}

// register adds a primitive to the registry. Registering the same name twice is
// a programming error.
func register(p Primitive) {
	if _, found := registry[p.Name]; found {
		exceptions.Panicf("tile primitive %q registered twice", p.Name)
	}
	registry[p.Name] = p
}

// Get returns the primitive registered under name.
func Get(name string) (Primitive, error) {
	p, found := registry[name]
	if !found {
		return Primitive{}, errors.Errorf("unknown tile primitive %q", name)
	}
	return p, nil
}

// MustGet returns the primitive registered under name, panicking if unknown.
func MustGet(name string) Primitive {
	p, err := Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns the sorted names of all registered primitives.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
