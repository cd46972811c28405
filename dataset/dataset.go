// Package dataset is the public API surface (§6): write_blocking,
// read_blocking, copy_data, and mkfs, bound to a specific named dataset and
// a *scheduler.Scheduler. It holds no state of its own beyond the dataset
// name — the scheduler and catalogue own everything durable.
package dataset

import (
	"context"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/scheduler"
	"github.com/esdm-project/esdm-go/status"
)

// Dataset is a named region of fragment storage, backed by a Scheduler.
type Dataset struct {
	Name  string
	sched *scheduler.Scheduler
}

// Open returns a Dataset named name, driven by sched. Open performs no I/O:
// the dataset's fragments (if any) already live in sched's catalogue.
func Open(sched *scheduler.Scheduler, name string) *Dataset {
	return &Dataset{Name: name, sched: sched}
}

// WriteBlocking implements write_blocking: split, allocate, stage and
// commit buf over space, blocking until every resulting fragment task
// completes.
func (d *Dataset) WriteBlocking(ctx context.Context, space dataspace.Dataspace, buf []byte) status.Code {
	if err := validate(space, buf); err != nil {
		return status.InvalidArgument
	}
	return d.sched.Write(ctx, d.Name, space, buf)
}

// ReadBlocking implements read_blocking: look up covering fragments,
// retrieve and copy them into buf, blocking until complete. Gaps are
// filled from the dataset's fill value if one is set.
func (d *Dataset) ReadBlocking(ctx context.Context, space dataspace.Dataspace, buf []byte) status.Code {
	if err := validate(space, buf); err != nil {
		return status.InvalidArgument
	}
	return d.sched.Read(ctx, d.Name, space, buf)
}

// CopyData implements copy_data directly, with no catalogue or backend
// involvement: a pure in-memory strided copy between two buffers.
func CopyData(src dataspace.Dataspace, srcBuf []byte, dst dataspace.Dataspace, dstBuf []byte) status.Code {
	if !dataspace.CopyCompatible(src, dst) {
		return status.InvalidArgument
	}
	dataspace.CopyData(src, srcBuf, dst, dstBuf)
	return status.Success
}

// SetFillValue sets the value read_blocking fills uncovered bytes with.
func (d *Dataset) SetFillValue(value interface{}) {
	d.sched.SetFillValue(d.Name, value)
}

// Mkfs delegates to every registered backend whose DataAccessibility
// matches target.
func Mkfs(ctx context.Context, sched *scheduler.Scheduler, enforce bool, target backend.Accessibility) status.Code {
	if err := sched.Mkfs(ctx, enforce, target); err != nil {
		return status.BackendError
	}
	return status.Success
}

// validate rejects malformed requests before they reach the scheduler.
// A 0-D space (Dims() == 0) is a valid degenerate point representing a
// single scalar element, matching hypercube.Cube's own handling of the
// empty cube as a unit-volume point — it isn't rejected here.
func validate(space dataspace.Dataspace, buf []byte) error {
	for _, s := range space.Size {
		if s < 0 {
			return status.New(status.InvalidArgument, "negative extent")
		}
	}
	if int64(len(buf)) < space.ByteSize() {
		return status.New(status.InvalidArgument, "buffer smaller than dataspace")
	}
	return nil
}
