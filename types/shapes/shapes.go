/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package shapes defines Shape and associated tools.
//
// Shape represents the shape (rank, dimensions and DType) of either a tensor variable
// in the accelerator graph or the expected per-tile shape of a vertex connection.
// DType, the type of the unit element, comes from github.com/gomlx/gopjrt/dtypes.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. Axis 0 is the leading axis, the one tile
//     partitioning applies to.
//   - Dimension: the size of a tensor in one of its axes.
//   - Scalar: a shape with no axes, a single value of the associated DType.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gopjrt/dtypes"
)

// Shape represents the shape of a tensor variable or of the expected value of a
// vertex connection.
//
// Use Make to create a new shape. Shape is used as a value type: pass it by value,
// and use Clone before mutating Dimensions.
type Shape struct {
	DType      DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given type.
func Scalar[T Supported]() Shape {
	return Shape{DType: FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating
// it with Shape{}, will be invalid.
func (s Shape) Ok() bool { return s.DType != InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape is a scalar, i.e. rank 0.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can be negative, in which case
// it counts from the end -- Dim(-1) is the dimension of the last axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if axis < 0 {
		adjustedAxis = axis + s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("shape %s doesn't have axis %d", s, axis)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a copy of itself, so Shape implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements fmt.Stringer.
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid shape)"
	}
	if s.IsScalar() {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		parts = append(parts, fmt.Sprintf("%d", dim))
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Size returns the number of elements of the shape, the product of all dimensions.
// A scalar has size 1.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the number of bytes needed to store the shape's data.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares two shapes for equality of dimensions only, ignoring DType.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone makes a deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// Slice returns the shape of one element of the leading axis: the shape with axis 0
// stripped. It panics on scalars.
func (s Shape) Slice() Shape {
	if s.Rank() == 0 {
		exceptions.Panicf("shapes.Slice: cannot take the leading-axis slice of scalar shape %s", s)
	}
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions[1:])}
}

// Prepend returns the shape with a new leading axis of the given dimension prepended.
func (s Shape) Prepend(dim int) Shape {
	if dim <= 0 {
		exceptions.Panicf("shapes.Prepend(%d): dimension must be positive", dim)
	}
	newDims := make([]int, 0, s.Rank()+1)
	newDims = append(newDims, dim)
	newDims = append(newDims, s.Dimensions...)
	return Shape{DType: s.DType, Dimensions: newDims}
}

// HasShape is an interface for objects that have an associated Shape.
type HasShape interface {
	Shape() Shape
}
