package scheduler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/backend/membackend"
	"github.com/esdm-project/esdm-go/catalog"
	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
	"github.com/esdm-project/esdm-go/status"
)

func newTestScheduler(ids ...string) *Scheduler {
	s := New(ClusterInfo{ProcsPerNode: 1, TotalProcs: 1}, catalog.NewMem())
	for _, id := range ids {
		s.AddBackend(membackend.New(fragment.BackendID(id), backend.Config{
			MaxFragmentSize:     1 << 20,
			FragmentationMethod: backend.Equalized,
			MaxThreadsPerNode:   2,
		}))
	}
	return s
}

// P5/scenario 1: write then read an N-D region back yields the same bytes.
func TestWriteReadRoundTrip2D(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	const height, width = 10, 4096
	space := dataspace.Dataspace{Offset: []int64{0, 0}, Size: []int64{height, width}, Type: dataspace.Uint64}
	buf := make([]byte, space.ByteSize())
	for y := int64(0); y < height; y++ {
		for x := int64(0); x < width; x++ {
			v := uint64(y*width + x + 1)
			putU64(buf, (y*width+x)*8, v)
		}
	}
	code := s.Write(ctx, "grid", space, buf)
	assert.Equal(t, status.Success, code)

	out := make([]byte, space.ByteSize())
	code = s.Read(ctx, "grid", space, out)
	assert.Equal(t, status.Success, code)
	assert.Equal(t, buf, out)
}

// P7/scenario 2: a partially written dataset with a fill value reads back
// the written prefix and fillValue everywhere else, reporting no error.
func TestReadPartialWithFill(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	s.SetFillValue("series", int32(-1))

	written := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{50}, Type: dataspace.Int32}
	wbuf := make([]byte, written.ByteSize())
	for i := int64(0); i < 50; i++ {
		putU32(wbuf, i*4, uint32(i))
	}
	assert.Equal(t, status.Success, s.Write(ctx, "series", written, wbuf))

	full := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{100}, Type: dataspace.Int32}
	out := make([]byte, full.ByteSize())
	code := s.Read(ctx, "series", full, out)
	assert.Equal(t, status.Success, code)
	for i := int64(0); i < 50; i++ {
		assert.Equal(t, uint32(i), getU32(out, i*4))
	}
	for i := int64(50); i < 100; i++ {
		assert.Equal(t, int32(-1), int32(getU32(out, i*4)))
	}
}

// P8: without a fill value, reading an uncovered region fails with
// IncompleteData and leaves the caller's buffer untouched.
func TestReadUncoveredNoFillValue(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	full := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{16}, Type: dataspace.Uint8}
	out := make([]byte, full.ByteSize())
	for i := range out {
		out[i] = 0xAB
	}
	code := s.Read(ctx, "untouched", full, out)
	assert.Equal(t, status.IncompleteData, code)
	for _, b := range out {
		assert.Equal(t, byte(0xAB), b)
	}
}

// P6/scenario 3: overwriting an inner sub-region leaves the border intact.
func TestOverwriteSemantics(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	full := dataspace.Dataspace{Offset: []int64{0, 0}, Size: []int64{8, 8}, Type: dataspace.Float32}
	ones := make([]byte, full.ByteSize())
	for i := int64(0); i < 64; i++ {
		putU32(ones, i*4, math.Float32bits(1))
	}
	assert.Equal(t, status.Success, s.Write(ctx, "grid2", full, ones))

	inner := dataspace.Dataspace{Offset: []int64{2, 2}, Size: []int64{4, 4}, Type: dataspace.Float32}
	zeros := make([]byte, inner.ByteSize())
	assert.Equal(t, status.Success, s.Write(ctx, "grid2", inner, zeros))

	out := make([]byte, full.ByteSize())
	assert.Equal(t, status.Success, s.Read(ctx, "grid2", full, out))
	for y := int64(0); y < 8; y++ {
		for x := int64(0); x < 8; x++ {
			idx := (y*8 + x) * 4
			got := getU32(out, idx)
			inBox := y >= 2 && y < 6 && x >= 2 && x < 6
			if inBox {
				assert.Equal(t, uint32(0), got, "y=%d x=%d", y, x)
			} else {
				assert.Equal(t, math.Float32bits(1), got, "y=%d x=%d", y, x)
			}
		}
	}
}

// Scenario 4: a strided write (every second column) round-trips correctly
// through a contiguous read buffer.
func TestStridedWrite(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	// Source buffer logically [10,20], but the write only covers the even
	// columns of a [10,10] dataset via a stride-2 source dataspace.
	srcBuf := make([]byte, 10*20)
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			srcBuf[y*20+x] = byte(y*20 + x)
		}
	}
	userSpace := dataspace.Dataspace{
		Offset: []int64{0, 0}, Size: []int64{10, 10},
		Stride: []int64{20, 2}, Type: dataspace.Uint8,
	}
	assert.Equal(t, status.Success, s.Write(ctx, "strided", userSpace, srcBuf))

	full := dataspace.Dataspace{Offset: []int64{0, 0}, Size: []int64{10, 10}, Type: dataspace.Uint8}
	out := make([]byte, full.ByteSize())
	assert.Equal(t, status.Success, s.Read(ctx, "strided", full, out))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, srcBuf[y*20+x*2], out[y*10+x], "y=%d x=%d", y, x)
		}
	}
}

// Scenario 6 / P9: overlapping fragments are pruned to a non-redundant
// covering subset without losing coverage, and where they overlap the more
// recently registered one's data wins (as required for overwrite
// semantics, P6) rather than whichever is merely cheaper to read.
func TestRedundantFragmentPruning(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()

	first := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{60}, Type: dataspace.Uint8}
	firstBuf := make([]byte, 60)
	for i := range firstBuf {
		firstBuf[i] = byte(i)
	}
	assert.Equal(t, status.Success, s.Write(ctx, "redundant", first, firstBuf))

	second := dataspace.Dataspace{Offset: []int64{40}, Size: []int64{60}, Type: dataspace.Uint8}
	secondBuf := make([]byte, 60)
	for i := range secondBuf {
		secondBuf[i] = byte(100 + i)
	}
	assert.Equal(t, status.Success, s.Write(ctx, "redundant", second, secondBuf))

	full := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{100}, Type: dataspace.Uint8}
	out := make([]byte, 100)
	assert.Equal(t, status.Success, s.Read(ctx, "redundant", full, out))
	for i := 0; i < 40; i++ {
		assert.Equal(t, firstBuf[i], out[i], "i=%d", i)
	}
	for i := 40; i < 100; i++ {
		assert.Equal(t, secondBuf[i-40], out[i], "i=%d", i)
	}

	partial := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{50}, Type: dataspace.Uint8}
	out2 := make([]byte, 50)
	assert.Equal(t, status.Success, s.Read(ctx, "redundant", partial, out2))
	for i := 0; i < 40; i++ {
		assert.Equal(t, firstBuf[i], out2[i], "i=%d", i)
	}
	for i := 40; i < 50; i++ {
		assert.Equal(t, secondBuf[i-40], out2[i], "i=%d", i)
	}
}

// Scenario 5 end to end: a write across two equally weighted membackends
// registers fragments on both sides of offset 300 and reads back
// unchanged. The 3:1 weighting itself is checked by
// TestAllocateBackendsWeightedSplit.
func TestMultiBackendWriteSplit(t *testing.T) {
	s := newTestScheduler("a", "b")
	ctx := context.Background()
	region := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{400}, Type: dataspace.Int8}
	buf := make([]byte, 400)
	for i := range buf {
		buf[i] = byte(i)
	}
	assert.Equal(t, status.Success, s.Write(ctx, "split", region, buf))

	descsA, _ := s.cat.Lookup("split", dataspace.Dataspace{Offset: []int64{0}, Size: []int64{300}, Type: dataspace.Int8})
	descsB, _ := s.cat.Lookup("split", dataspace.Dataspace{Offset: []int64{300}, Size: []int64{100}, Type: dataspace.Int8})
	assert.NotEmpty(t, descsA)
	assert.NotEmpty(t, descsB)

	out := make([]byte, 400)
	assert.Equal(t, status.Success, s.Read(ctx, "split", region, out))
	assert.Equal(t, buf, out)
}

// P10: pending reaches zero and Wait() is releasable across many
// concurrent requests (no deadlock under stress).
func TestConcurrentRequestsNoDeadlock(t *testing.T) {
	s := newTestScheduler("a")
	ctx := context.Background()
	region := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{128}, Type: dataspace.Uint8}

	done := make(chan status.Code, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			buf := make([]byte, 128)
			for j := range buf {
				buf[j] = byte(n)
			}
			done <- s.Write(ctx, "stress", region, buf)
		}(i)
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, status.Success, <-done)
	}
}

func putU64(buf []byte, off int64, v uint64) {
	for i := 0; i < 8; i++ {
		buf[off+int64(i)] = byte(v >> (8 * i))
	}
}

func putU32(buf []byte, off int64, v uint32) {
	for i := 0; i < 4; i++ {
		buf[off+int64(i)] = byte(v >> (8 * i))
	}
}

func getU32(buf []byte, off int64) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(buf[off+int64(i)]) << (8 * i)
	}
	return v
}
