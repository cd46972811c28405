package scheduler

import (
	"math"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/dataspace"
)

// BackendAssignment is one backend's share of a write region (§4.3/C3).
// Empty is true when the backend's weighted interval collapsed to zero
// width: it participates in no fragments for this write, but is still
// reported so callers (and tests) can confirm which backends were
// considered.
type BackendAssignment struct {
	Backend backend.Backend
	Region  dataspace.Dataspace
	Empty   bool
}

// AllocateBackends splits region across backends, weighted by weight(b)
// (§4.3): pick the splittable dimension of greatest |effective stride|
// with extent > 1, partition its range into throughput-proportional
// intervals, and substitute each interval into region to build one
// backend's sub-region. A backend whose share rounds to zero width is
// reported Empty.
//
// If region has no splittable dimension (every dimension has extent <= 1,
// or region is 0-D), the whole region goes to the single highest-weight
// backend and every other backend is Empty.
func AllocateBackends(region dataspace.Dataspace, backends []backend.Backend, weight func(backend.Backend) float64) []BackendAssignment {
	if len(backends) == 0 {
		return nil
	}
	if len(backends) == 1 {
		return []BackendAssignment{{Backend: backends[0], Region: region}}
	}

	splitDim := splittableDim(region)
	if splitDim < 0 {
		best := 0
		bestW := weight(backends[0])
		for i, b := range backends[1:] {
			if w := weight(b); w > bestW {
				best, bestW = i+1, w
			}
		}
		out := make([]BackendAssignment, len(backends))
		for i, b := range backends {
			out[i] = BackendAssignment{Backend: b, Region: region, Empty: i != best}
		}
		return out
	}

	m := len(backends)
	weights := make([]float64, m)
	var total float64
	for i, b := range backends {
		w := weight(b)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}

	start := region.Offset[splitDim]
	length := region.Size[splitDim]

	bounds := make([]int64, m+1)
	bounds[0] = start
	bounds[m] = start + length
	if total <= 0 {
		// No usable throughput signal: split evenly rather than stall the
		// write on a bad estimate.
		for i := 1; i < m; i++ {
			bounds[i] = start + int64(math.Round(float64(i)*float64(length)/float64(m)))
		}
	} else {
		cumulative := 0.0
		for i := 1; i < m; i++ {
			cumulative += weights[i-1]
			bounds[i] = start + int64(math.Round(cumulative*float64(length)/total))
		}
	}

	out := make([]BackendAssignment, m)
	for i, b := range backends {
		lo, hi := bounds[i], bounds[i+1]
		if hi < lo {
			hi = lo
		}
		sub := sliceDim(region, splitDim, lo-start, hi-lo)
		out[i] = BackendAssignment{Backend: b, Region: sub, Empty: hi <= lo}
	}
	return out
}

// splittableDim returns the dimension of greatest |effective stride| whose
// extent exceeds 1 (the outermost iterable dimension), or -1 if every
// dimension has extent <= 1.
func splittableDim(region dataspace.Dataspace) int {
	stride := region.EffectiveStride()
	best := -1
	var bestAbs int64 = -1
	for d := 0; d < region.Dims(); d++ {
		if region.Size[d] <= 1 {
			continue
		}
		abs := stride[d]
		if abs < 0 {
			abs = -abs
		}
		if abs > bestAbs {
			best = d
			bestAbs = abs
		}
	}
	return best
}
