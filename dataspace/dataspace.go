// Package dataspace implements the N-dimensional offset/size/stride
// region description used both for dataset extents and user-buffer
// layouts, and the copy planner that turns a strided-to-strided N-D copy
// into a small number of tight memcpy loops.
package dataspace

import (
	"fmt"

	"github.com/esdm-project/esdm-go/hypercube"
)

// ElementType tags the scalar type stored in a Dataspace.
type ElementType int

const (
	Int8 ElementType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

// Size returns sizeof(t) in bytes.
func (t ElementType) Size() int64 {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("dataspace: unknown element type %d", t))
	}
}

func (t ElementType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Dataspace describes an N-dimensional region: where it starts (Offset),
// how large it is (Size), how its elements are laid out in a backing
// buffer (Stride, optional), and what it holds (Type).
//
// When Stride is nil, the effective stride is row-major contiguous over
// Size (see EffectiveStride). Offset entries may be negative.
type Dataspace struct {
	Offset []int64
	Size   []int64
	Stride []int64
	Type   ElementType
}

// Dims returns the dimensionality of the space.
func (d Dataspace) Dims() int { return len(d.Size) }

// ElementCount returns the product of Size.
func (d Dataspace) ElementCount() int64 {
	n := int64(1)
	for _, s := range d.Size {
		n *= s
	}
	return n
}

// ByteSize returns ElementCount() * sizeof(Type).
func (d Dataspace) ByteSize() int64 {
	return d.ElementCount() * d.Type.Size()
}

// EffectiveStride returns d.Stride if set, else the row-major stride
// implied by d.Size: stride[N-1] = 1, stride[i] = stride[i+1]*size[i+1].
func (d Dataspace) EffectiveStride() []int64 {
	if d.Stride != nil {
		return d.Stride
	}
	n := len(d.Size)
	out := make([]int64, n)
	if n == 0 {
		return out
	}
	out[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		out[i] = out[i+1] * d.Size[i+1]
	}
	return out
}

// Extent returns the hypercube covered by the space, ignoring layout.
func (d Dataspace) Extent() hypercube.Cube {
	c := make(hypercube.Cube, d.Dims())
	for i := range c {
		c[i] = hypercube.Range{Start: d.Offset[i], End: d.Offset[i] + d.Size[i]}
	}
	return c
}

// CopyCompatible reports whether a and b can participate in the same copy
// plan: same dimensionality and element type.
func CopyCompatible(a, b Dataspace) bool {
	return a.Dims() == b.Dims() && a.Type == b.Type
}

// MakeContiguous returns a fresh dataspace with the same dims/size/type as
// space but row-major contiguous stride and zero offset — the layout of a
// freshly allocated dense staging buffer for space's extents.
func MakeContiguous(space Dataspace) Dataspace {
	out := Dataspace{
		Size: append([]int64{}, space.Size...),
		Type: space.Type,
	}
	out.Offset = make([]int64, len(space.Size))
	out.Stride = Dataspace{Size: out.Size}.EffectiveStride()
	return out
}
