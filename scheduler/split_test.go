package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/hypercube"
)

// P3: the union of split cubes equals the input region and they are
// pairwise disjoint.
func assertPartitionExact(t *testing.T, region dataspace.Dataspace, pieces []dataspace.Dataspace) {
	t.Helper()
	cubes := make([]hypercube.Cube, len(pieces))
	total := region.Extent()
	for i, p := range pieces {
		cubes[i] = p.Extent()
	}
	for i := range cubes {
		for j := i + 1; j < len(cubes); j++ {
			assert.False(t, hypercube.Intersects(cubes[i], cubes[j]), "pieces %d and %d overlap", i, j)
		}
	}
	assert.Equal(t, total.Volume(), hypercube.CoveredVolume(total, cubes))
}

func TestSplitContiguousPartitionExact(t *testing.T) {
	region := dataspace.Dataspace{Offset: []int64{0, 0}, Size: []int64{100, 8}, Type: dataspace.Uint8}
	cfg := backend.Config{MaxFragmentSize: 64, FragmentationMethod: backend.Contiguous}
	pieces := Split(region, cfg)
	assertPartitionExact(t, region, pieces)
	for _, p := range pieces {
		assert.True(t, p.ByteSize() <= cfg.MaxFragmentSize)
	}
}

func TestSplitEqualizedPartitionExact(t *testing.T) {
	region := dataspace.Dataspace{Offset: []int64{0, 0, 0}, Size: []int64{20, 20, 20}, Type: dataspace.Uint8}
	cfg := backend.Config{MaxFragmentSize: 512, FragmentationMethod: backend.Equalized}
	pieces := Split(region, cfg)
	assertPartitionExact(t, region, pieces)
	for _, p := range pieces {
		assert.True(t, p.ByteSize() <= cfg.MaxFragmentSize)
	}
}

func TestSplitBelowThresholdIsNoop(t *testing.T) {
	region := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{4}, Type: dataspace.Uint8}
	cfg := backend.Config{MaxFragmentSize: 1024}
	pieces := Split(region, cfg)
	assert.Equal(t, []dataspace.Dataspace{region}, pieces)
}
