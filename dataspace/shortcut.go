package dataspace

// Shortcut is the result of evaluating the direct-I/O shortcut (§4.7/C7):
// whether a fragment's bytes can be read straight into the caller's buffer
// without an intermediate staging allocation.
type Shortcut struct {
	// Applies is true when the fragment can be read directly into userBuf
	// at Offset, false when a staging buffer must be used instead.
	Applies bool
	// Offset is userBuf's byte offset the fragment's bytes should land at
	// (only meaningful when Applies).
	Offset int64
}

// PlanShortcut evaluates the direct-I/O shortcut for a fragment occupying
// fragSpace against a user buffer described by userSpace: the fragment
// qualifies only when the copy planner collapses to a single memcpy AND
// that memcpy covers the fragment's entire byte size — a partial-fragment
// copy could only shortcut by overshooting into userBuf beyond the actual
// overlap, corrupting whatever the caller stored adjacent to it.
func PlanShortcut(fragSpace, userSpace Dataspace) Shortcut {
	plan := PlanCopy(fragSpace, userSpace)
	if plan.NoOp() {
		return Shortcut{Applies: true, Offset: 0} // nothing to copy; trivially "shortcut"
	}
	if plan.Dims != 0 {
		return Shortcut{}
	}
	if plan.ChunkBytes != fragSpace.ByteSize() {
		return Shortcut{}
	}
	return Shortcut{Applies: true, Offset: plan.DstOffset}
}
