package graph

import (
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// SetInitialValue records the host-side initial contents of the variable the
// tensor views. The view must cover one whole variable.
//
// flat must be a slice of the Go type matching the variable's DType, with one
// entry per element. As a convenience, Float16 variables also accept []float32,
// converted on the spot.
func (t *Tensor) SetInitialValue(flat any) {
	v := t.wholeVariable()
	flat = convertInitialValue(t.DType(), flat)
	want := reflect.SliceOf(t.DType().GoType())
	if reflect.TypeOf(flat) != want {
		exceptions.Panicf("SetInitialValue on variable %q: expected %s, got %T",
			v.debugName, want, flat)
	}
	if reflect.ValueOf(flat).Len() != v.shape.Size() {
		exceptions.Panicf("SetInitialValue on variable %q: expected %d elements, got %d",
			v.debugName, v.shape.Size(), reflect.ValueOf(flat).Len())
	}
	v.initialValue = flat
}

// InitialValue returns the flat initial contents recorded for the variable the
// tensor views, or nil if none was set. The view must cover one whole variable.
func (t *Tensor) InitialValue() any {
	return t.wholeVariable().initialValue
}

// wholeVariable returns the variable the tensor views, panicking if the view is
// not exactly one whole variable.
func (t *Tensor) wholeVariable() *Variable {
	if len(t.regions) != 1 {
		exceptions.Panicf("tensor view spans %d storage regions, expected a whole variable", len(t.regions))
	}
	r := t.regions[0]
	if r.Start != 0 || r.End != r.Variable.shape.Size() {
		exceptions.Panicf("tensor view covers [%d, %d) of variable %q, expected all of it",
			r.Start, r.End, r.Variable.debugName)
	}
	return r.Variable
}

// convertInitialValue applies the convenience conversions accepted by
// SetInitialValue.
func convertInitialValue(dtype dtypes.DType, flat any) any {
	if dtype != dtypes.Float16 {
		return flat
	}
	f32s, ok := flat.([]float32)
	if !ok {
		return flat
	}
	f16s := make([]float16.Float16, len(f32s))
	for i, f := range f32s {
		f16s[i] = float16.Fromfloat32(f)
	}
	return f16s
}
