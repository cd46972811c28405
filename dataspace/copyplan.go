package dataspace

import (
	"fmt"
	"sort"

	"github.com/esdm-project/esdm-go/hypercube"
)

// Plan is the output of planning a copy between two copy-compatible
// dataspaces: one memcpy-shaped chunk, repeated over a small number of
// nested, relative-stride loops.
//
// Dims == -1 means the two spaces don't overlap: nothing to copy.
// Dims == 0 means the whole overlap collapses into a single memcpy of
// ChunkBytes starting at SrcOffset/DstOffset.
type Plan struct {
	ChunkBytes int64
	SrcOffset  int64
	DstOffset  int64
	Dims       int
	// Size, SrcStride and DstStride each have length Dims, ordered
	// outermost-first. SrcStride/DstStride are "relative": advancing a
	// dimension's counter by one and adding its stride moves the pointer
	// to the next slice, including the carry out of any inner dimensions
	// that just wrapped.
	Size      []int64
	SrcStride []int64
	DstStride []int64
}

// NoOp reports whether the plan copies zero bytes.
func (p Plan) NoOp() bool { return p.Dims < 0 }

// PlanCopy computes the copy plan between src and dst. src and dst must be
// copy-compatible (CopyCompatible(src, dst)); PlanCopy panics otherwise,
// since mismatched dims/type is always a caller bug (the public API
// validates this before calling in).
func PlanCopy(src, dst Dataspace) Plan {
	if !CopyCompatible(src, dst) {
		panic(fmt.Sprintf("dataspace: not copy-compatible: %+v vs %+v", src, dst))
	}
	overlap, ok := hypercube.Intersect(src.Extent(), dst.Extent())
	if !ok {
		return Plan{Dims: -1}
	}
	n := src.Dims()
	esize := src.Type.Size()
	srcStride := src.EffectiveStride()
	dstStride := dst.EffectiveStride()

	picked := make([]bool, n)
	chunkElements := int64(1)

	for {
		best := -1
		for d := 0; d < n; d++ {
			if picked[d] {
				continue
			}
			if srcStride[d] == dstStride[d] && abs64(srcStride[d]) == chunkElements {
				best = d
				break
			}
		}
		if best == -1 {
			break
		}
		picked[best] = true
		overlapLen := overlap[best].Len()
		fullSrc := overlapLen == src.Size[best]
		fullDst := overlapLen == dst.Size[best]
		chunkElements *= overlapLen
		if !fullSrc || !fullDst {
			break
		}
	}

	var remaining []int
	for d := 0; d < n; d++ {
		if !picked[d] {
			remaining = append(remaining, d)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		return min64(abs64(srcStride[remaining[i]]), abs64(dstStride[remaining[i]])) >
			min64(abs64(srcStride[remaining[j]]), abs64(dstStride[remaining[j]]))
	})

	m := len(remaining)
	sizes := make([]int64, m)
	srcByteStride := make([]int64, m)
	dstByteStride := make([]int64, m)
	for i, d := range remaining {
		sizes[i] = overlap[d].Len()
		srcByteStride[i] = srcStride[d] * esize
		dstByteStride[i] = dstStride[d] * esize
	}
	// Convert to relative strides: subtract the inner dimension's total
	// sweep (size[i+1]*stride[i+1]) from each outer dimension's stride, so
	// that after the inner counter wraps, adding the outer's relative
	// stride lands the pointer at the start of the next outer slice.
	relSrc := append([]int64{}, srcByteStride...)
	relDst := append([]int64{}, dstByteStride...)
	for i := 0; i < m-1; i++ {
		relSrc[i] -= sizes[i+1] * srcByteStride[i+1]
		relDst[i] -= sizes[i+1] * dstByteStride[i+1]
	}

	// For a negative-stride dimension, buffer offset 0 corresponds to the
	// *last* index of that space's declared extent (not the first): the
	// buffer is contiguous and was laid out walking the dimension in
	// reverse. anchor(sp, d) is the logical index that maps to byte 0.
	anchor := func(sp Dataspace, stride []int64, d int) int64 {
		if stride[d] < 0 {
			return sp.Offset[d] + sp.Size[d] - 1
		}
		return sp.Offset[d]
	}

	var srcOffset, dstOffset int64
	for d := 0; d < n; d++ {
		localIdx := overlap[d].Start - anchor(src, srcStride, d)
		srcOffset += localIdx * srcStride[d]
	}
	for d := 0; d < n; d++ {
		localIdx := overlap[d].Start - anchor(dst, dstStride, d)
		dstOffset += localIdx * dstStride[d]
	}

	return Plan{
		ChunkBytes: chunkElements * esize,
		SrcOffset:  srcOffset * esize,
		DstOffset:  dstOffset * esize,
		Dims:       m,
		Size:       sizes,
		SrcStride:  relSrc,
		DstStride:  relDst,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Execute runs a previously computed plan, copying bytes from srcBuf into
// dstBuf. dims == 0 collapses to a single copy; dims < 0 is a no-op.
func Execute(p Plan, srcBuf, dstBuf []byte) {
	if p.NoOp() {
		return
	}
	if p.Dims == 0 {
		copy(dstBuf[p.DstOffset:p.DstOffset+p.ChunkBytes], srcBuf[p.SrcOffset:p.SrcOffset+p.ChunkBytes])
		return
	}
	counters := make([]int64, p.Dims)
	srcPtr := p.SrcOffset
	dstPtr := p.DstOffset
	for {
		copy(dstBuf[dstPtr:dstPtr+p.ChunkBytes], srcBuf[srcPtr:srcPtr+p.ChunkBytes])

		d := p.Dims - 1
		for d >= 0 {
			counters[d]++
			srcPtr += p.SrcStride[d]
			dstPtr += p.DstStride[d]
			if counters[d] < p.Size[d] {
				break
			}
			counters[d] = 0
			d--
		}
		if d < 0 {
			return
		}
	}
}

// CopyData plans and executes a copy from (src, srcBuf) into (dst, dstBuf)
// in one call — the public copy_data operation from the external API.
func CopyData(src Dataspace, srcBuf []byte, dst Dataspace, dstBuf []byte) {
	Execute(PlanCopy(src, dst), srcBuf, dstBuf)
}
