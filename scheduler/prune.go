package scheduler

import (
	"sort"

	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
	"github.com/esdm-project/esdm-go/hypercube"
)

// pruneRedundant narrows descs (everything the catalogue returned for
// region) to the subset the read path actually needs to retrieve (§4.5.1),
// processing candidates newest-registration-first (fragment.Descriptor.Seq
// descending): a candidate is kept only if some part of its extent, bounded
// to region, isn't already claimed by a candidate already kept. Whatever it
// contributes is then subtracted from the remaining uncovered area before
// moving on to the next, older candidate.
//
// This makes overwritten sub-regions resolve correctly per §5 ("the last
// successful commit wins under catalogue semantics"): a newer, smaller
// fragment nested inside an older, larger one is never dropped just because
// the older one alone would satisfy region's coverage more cheaply — had
// pruning picked purely by minimum bytes read, it could silently serve the
// stale, superseded data for the overlapping sub-region. Every kept
// candidate supplies some part of region that no newer kept candidate
// supplies; a kept newer fragment may still lie wholly inside an older
// kept one, so the kept set is not necessarily a minimal cover by coverage
// alone.
func pruneRedundant(region dataspace.Dataspace, descs []fragment.Descriptor) []fragment.Descriptor {
	if len(descs) == 0 {
		return nil
	}
	bound := region.Extent()
	byRecency := append([]fragment.Descriptor{}, descs...)
	sort.SliceStable(byRecency, func(i, j int) bool { return byRecency[i].Seq > byRecency[j].Seq })

	var kept []fragment.Descriptor
	remaining := []hypercube.Cube{bound}
	for _, d := range byRecency {
		if len(remaining) == 0 {
			break
		}
		extent, ok := hypercube.Intersect(bound, d.Space.Extent())
		if !ok {
			continue
		}
		contributes := false
		for _, r := range remaining {
			if hypercube.Intersects(r, extent) {
				contributes = true
				break
			}
		}
		if !contributes {
			continue
		}
		kept = append(kept, d)
		remaining = subtractFromAll(remaining, extent)
	}
	return kept
}

// subtractFromAll removes cut from every cube in cubes, returning the
// disjoint union of what's left.
func subtractFromAll(cubes []hypercube.Cube, cut hypercube.Cube) []hypercube.Cube {
	var out []hypercube.Cube
	for _, c := range cubes {
		out = append(out, hypercube.Subtract(c, []hypercube.Cube{cut})...)
	}
	return out
}
