// Package hypercube implements the N-dimensional half-open integer box
// algebra the scheduler reasons about: intersection, subtraction, and
// covered-volume measurement.
//
// Cubes have pure value semantics — every operation here returns new
// values rather than mutating its arguments, so callers can freely share a
// Cube across goroutines.
package hypercube

import "fmt"

// Range is a half-open integer interval [Start, End). Start may be
// negative. Start == End denotes an empty range.
type Range struct {
	Start, End int64
}

// Len returns the number of integers in the range, 0 if empty.
func (r Range) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range contains no indices.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Cube is an N-dimensional half-open box: one Range per dimension.
type Cube []Range

// Clone returns a deep copy of c.
func (c Cube) Clone() Cube {
	out := make(Cube, len(c))
	copy(out, c)
	return out
}

// Dims returns the dimensionality of the cube.
func (c Cube) Dims() int { return len(c) }

// Empty reports whether the cube has zero volume, i.e. any dimension's
// range is empty.
func (c Cube) Empty() bool {
	for _, r := range c {
		if r.Empty() {
			return true
		}
	}
	return false
}

// Volume returns the element count of the cube (product of per-dimension
// lengths). A zero-dimensional cube has volume 1 (it denotes a single
// degenerate point, matching the convention that an empty product is 1).
func (c Cube) Volume() int64 {
	v := int64(1)
	for _, r := range c {
		if r.Empty() {
			return 0
		}
		v *= r.Len()
	}
	return v
}

// Offset returns the per-dimension start of the cube.
func (c Cube) Offset() []int64 {
	out := make([]int64, len(c))
	for i, r := range c {
		out[i] = r.Start
	}
	return out
}

// Size returns the per-dimension extent of the cube.
func (c Cube) Size() []int64 {
	out := make([]int64, len(c))
	for i, r := range c {
		out[i] = r.Len()
	}
	return out
}

func (c Cube) String() string {
	return fmt.Sprintf("%v", []Range(c))
}

// sameDims reports whether a and b have equal dimensionality; it panics if
// not, since mixing dimensionalities is always a caller bug, never a
// legitimate "no intersection" outcome.
func sameDims(a, b Cube) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("hypercube: dimension mismatch %d vs %d", len(a), len(b)))
	}
}

// Intersect returns the overlap of a and b. ok is false if the cubes do
// not overlap in every dimension, in which case the returned cube has no
// defined value.
func Intersect(a, b Cube) (Cube, bool) {
	sameDims(a, b)
	out := make(Cube, len(a))
	for i := range a {
		start := a[i].Start
		if b[i].Start > start {
			start = b[i].Start
		}
		end := a[i].End
		if b[i].End < end {
			end = b[i].End
		}
		if end <= start {
			return nil, false
		}
		out[i] = Range{start, end}
	}
	return out, true
}

// Intersects reports whether a and b overlap in every dimension.
func Intersects(a, b Cube) bool {
	_, ok := Intersect(a, b)
	return ok
}

// subtractOne removes b from r, returning a set of pairwise-disjoint cubes
// whose union is r \ b. It is the standard box-difference construction:
// walk the dimensions one at a time, peeling off the slabs of r that fall
// outside b's range in that dimension, and narrowing the remainder to the
// overlap before moving to the next dimension.
func subtractOne(r, b Cube) []Cube {
	inter, ok := Intersect(r, b)
	if !ok {
		return []Cube{r.Clone()}
	}
	var out []Cube
	cur := r.Clone()
	for d := range r {
		if cur[d].Start < inter[d].Start {
			left := cur.Clone()
			left[d] = Range{cur[d].Start, inter[d].Start}
			out = append(out, left)
		}
		if inter[d].End < cur[d].End {
			right := cur.Clone()
			right[d] = Range{inter[d].End, cur[d].End}
			out = append(out, right)
		}
		cur[d] = inter[d]
	}
	return out
}

// Subtract removes every cube in others from a, returning the disjoint set
// of cubes whose union equals a minus the union of others. Cubes in others
// that don't intersect the current remainder are no-ops.
func Subtract(a Cube, others []Cube) []Cube {
	remainder := []Cube{a.Clone()}
	for _, b := range others {
		if len(remainder) == 0 {
			break
		}
		var next []Cube
		for _, r := range remainder {
			next = append(next, subtractOne(r, b)...)
		}
		remainder = next
	}
	return remainder
}

// CoveredVolume reports the volume of bound covered by cubes, accounting for overlap,
// by repeated subtraction against a bounding cube. It's used by callers
// that need "how much of bound is covered" rather than the covering set
// itself.
func CoveredVolume(bound Cube, cubes []Cube) int64 {
	uncovered := Subtract(bound, cubes)
	var u int64
	for _, c := range uncovered {
		u += c.Volume()
	}
	return bound.Volume() - u
}
