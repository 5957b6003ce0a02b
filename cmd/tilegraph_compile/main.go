// tilegraph_compile compiles one tile primitive invocation from the command line
// and dumps the resulting program, for inspecting what a given attribute payload
// builds without a host compiler around.
//
// Example:
//
//	tilegraph_compile -primitive tile_put_sharded -inputs 'Float32[4x3]' \
//	    -attributes '[2,5,0,7]'
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tilegraph/graph"
	"github.com/gomlx/tilegraph/tile"
	"github.com/gomlx/tilegraph/types/shapes"
	"k8s.io/klog/v2"
)

var (
	flagPrimitive = flag.String("primitive", "", fmt.Sprintf(
		"Name of the tile primitive to compile. One of: %s.", strings.Join(tile.Names(), ", ")))
	flagInputs = flag.String("inputs", "", "Comma-separated input tensor shapes, e.g. 'Float32[4x3],Int8[2]'. "+
		"Each input is allocated as a fresh variable before the primitive runs.")
	flagAttributes = flag.String("attributes", "", "JSON attribute payload of the invocation. "+
		"With -attributes_file, the payload is read from the file instead.")
	flagAttributesFile = flag.String("attributes_file", "", "File holding the JSON attribute payload.")
	flagNumTiles       = flag.Int("num_tiles", 1472, "Number of tiles of the target device.")
	flagMetadata       = flag.Bool("metadata", false, "Also print the primitive's metadata contract.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagPrimitive == "" {
		klog.Errorf("Missing -primitive. See 'tilegraph_compile -help'.")
		os.Exit(1)
	}
	prim, err := tile.Get(*flagPrimitive)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}

	attributes := []byte(*flagAttributes)
	if *flagAttributesFile != "" {
		attributes, err = os.ReadFile(*flagAttributesFile)
		if err != nil {
			klog.Errorf("Failed to read -attributes_file: %v", err)
			os.Exit(1)
		}
	}

	g := graph.New(*flagPrimitive, *flagNumTiles)
	var inputs []*graph.Tensor
	if *flagInputs != "" {
		for i, spec := range strings.Split(*flagInputs, ",") {
			shape, err := parseShape(spec)
			if err != nil {
				klog.Errorf("Failed to parse -inputs entry %q: %v", spec, err)
				os.Exit(1)
			}
			inputs = append(inputs, g.AddVariable(shape, fmt.Sprintf("input%d", i)))
		}
	}

	prog, outputs, err := prim.Build(g, inputs, attributes, *flagPrimitive)
	if err != nil {
		klog.Errorf("Failed to build %q: %+v", prim.Name, err)
		os.Exit(1)
	}

	fmt.Println(prog)
	fmt.Printf("Outputs (%d):\n", len(outputs))
	for i, output := range outputs {
		fmt.Printf("\t#%d: %s\n", i, output.Shape())
	}
	if *flagMetadata {
		meta := prim.Metadata(uint32(len(inputs)))
		fmt.Printf("Metadata: %+v\n", meta)
	}
}

// parseShape parses a "DType[d0xd1x...]" spec; "DType[]" and "DType" are scalars.
func parseShape(spec string) (shapes.Shape, error) {
	spec = strings.TrimSpace(spec)
	name, dims := spec, ""
	if open := strings.Index(spec, "["); open >= 0 {
		if !strings.HasSuffix(spec, "]") {
			return shapes.Invalid(), fmt.Errorf("missing closing bracket in %q", spec)
		}
		name, dims = spec[:open], spec[open+1:len(spec)-1]
	}
	dtype, err := dtypes.DTypeString(name)
	if err != nil {
		return shapes.Invalid(), err
	}
	var dimensions []int
	if dims != "" {
		for _, d := range strings.Split(dims, "x") {
			dim, err := strconv.Atoi(d)
			if err != nil || dim <= 0 {
				return shapes.Invalid(), fmt.Errorf("bad dimension %q in %q", d, spec)
			}
			dimensions = append(dimensions, dim)
		}
	}
	return shapes.Make(dtype, dimensions...), nil
}
