package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
)

// fakeBackend is a minimal backend.Backend used only to exercise the
// allocator; it performs no I/O.
type fakeBackend struct {
	id fragment.BackendID
	w  float64
}

func (b *fakeBackend) ID() fragment.BackendID     { return b.id }
func (b *fakeBackend) Config() backend.Config     { return backend.Config{MaxFragmentSize: 1 << 30} }
func (b *fakeBackend) EstimateThroughput() float64 { return b.w }
func (b *fakeBackend) Commit(context.Context, *fragment.Fragment) error   { return nil }
func (b *fakeBackend) Retrieve(context.Context, *fragment.Fragment) error { return nil }

// End-to-end scenario 5: two backends weighted 3:1 over a 400-element 1-D
// write must split ~300/~100, within ±1 of the exact proportional boundary.
func TestAllocateBackendsWeightedSplit(t *testing.T) {
	a := &fakeBackend{id: "a", w: 3}
	b := &fakeBackend{id: "b", w: 1}
	region := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{400}, Type: dataspace.Int8}

	assignments := AllocateBackends(region, []backend.Backend{a, b}, func(be backend.Backend) float64 {
		return be.(*fakeBackend).w
	})

	assert.Len(t, assignments, 2)
	assert.False(t, assignments[0].Empty)
	assert.False(t, assignments[1].Empty)
	assert.InDelta(t, int64(300), assignments[0].Region.Size[0], 1)
	assert.Equal(t, int64(0), assignments[0].Region.Offset[0])
	assert.Equal(t, assignments[0].Region.Offset[0]+assignments[0].Region.Size[0], assignments[1].Region.Offset[0])
	assert.InDelta(t, int64(100), assignments[1].Region.Size[0], 1)
}

// P4: backend sub-regions are pairwise disjoint, their union equals the
// input region, and no volume is lost or duplicated.
func TestAllocateBackendsPartitionExact(t *testing.T) {
	backends := []backend.Backend{
		&fakeBackend{id: "a", w: 5},
		&fakeBackend{id: "b", w: 2},
		&fakeBackend{id: "c", w: 1},
	}
	region := dataspace.Dataspace{Offset: []int64{-10, 0}, Size: []int64{37, 6}, Type: dataspace.Float32}
	assignments := AllocateBackends(region, backends, func(be backend.Backend) float64 {
		return be.(*fakeBackend).w
	})

	var total int64
	for i, a := range assignments {
		if a.Empty {
			continue
		}
		total += a.Region.ElementCount()
		for j, o := range assignments {
			if i == j || o.Empty {
				continue
			}
			assert.False(t, rangesOverlap(a.Region, o.Region), "assignments %d and %d overlap", i, j)
		}
	}
	assert.Equal(t, region.ElementCount(), total)
}

func rangesOverlap(a, b dataspace.Dataspace) bool {
	for d := range a.Size {
		aEnd := a.Offset[d] + a.Size[d]
		bEnd := b.Offset[d] + b.Size[d]
		if aEnd <= b.Offset[d] || bEnd <= a.Offset[d] {
			return false
		}
	}
	return true
}

// A region with every dimension at extent 1 has no splittable dimension:
// the whole region goes to the single highest-weight backend.
func TestAllocateBackendsNoSplittableDim(t *testing.T) {
	a := &fakeBackend{id: "a", w: 1}
	b := &fakeBackend{id: "b", w: 9}
	region := dataspace.Dataspace{Offset: []int64{0, 0}, Size: []int64{1, 1}, Type: dataspace.Uint8}
	assignments := AllocateBackends(region, []backend.Backend{a, b}, func(be backend.Backend) float64 {
		return be.(*fakeBackend).w
	})
	assert.True(t, assignments[0].Empty)
	assert.False(t, assignments[1].Empty)
	assert.Equal(t, region, assignments[1].Region)
}
