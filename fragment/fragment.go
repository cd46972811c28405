// Package fragment defines the addressable, per-backend piece of a
// dataset that the scheduler reads and writes.
package fragment

import (
	"github.com/esdm-project/esdm-go/dataspace"
)

// Status is the fragment's lifecycle state, tracked both on the fragment
// itself (as the original middleware does) and implicitly by the
// request-level completion latch.
type Status int

const (
	// NotLoaded: no buffer is attached; the fragment is either a pending
	// write/read target or a catalogue descriptor with no data in memory.
	NotLoaded Status = iota
	// Loaded: buf holds the fragment's bytes in memory, not yet (or no
	// longer) guaranteed to match what's on the backend.
	Loaded
	// Persisted: the backend has durably stored buf's bytes.
	Persisted
)

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "NotLoaded"
	case Loaded:
		return "Loaded"
	case Persisted:
		return "Persisted"
	default:
		return "Invalid"
	}
}

// Backend is the identity of the backend that stores (or will store) a
// fragment. It's a stable identifier rather than an interface value, so a
// fragment's catalogue record can cross process/serialization boundaries
// without back-pointer cycles (see DESIGN.md).
type BackendID string

// Fragment is an addressable piece of a dataset: a region (Space), the
// backend that owns it, its current buffer (if any), and its status.
//
// Fragment buffers are transient: allocated only for the duration of an
// active I/O task and freed on completion (see backend.Pool). Buf is
// borrowed (points into the caller's buffer) when the direct-I/O shortcut
// applies, and owned (a scheduler-allocated staging buffer) otherwise.
type Fragment struct {
	// Dataset identifies which dataset this fragment belongs to. Backends
	// that derive a storage key from the fragment's extent (catalog.StorageKey)
	// need this to keep two datasets' overlapping regions from colliding
	// in a shared keyspace.
	Dataset string
	Space   dataspace.Dataspace
	Backend BackendID
	Buf     []byte
	Status  Status

	// StorageKey identifies this fragment's bytes within Backend, assigned
	// by the backend on commit and round-tripped by the catalogue.
	StorageKey string
}

// ByteSize returns the fragment's region size in bytes.
func (f *Fragment) ByteSize() int64 {
	return f.Space.ByteSize()
}

// Descriptor is the catalogue's durable, buffer-free record of a
// persisted fragment — what lookup_fragments returns.
type Descriptor struct {
	Dataset    string
	Space      dataspace.Dataspace
	Backend    BackendID
	StorageKey string

	// Seq orders descriptors by registration time within a dataset: higher
	// is more recent. The catalogue assigns it on Register; the read path's
	// redundancy pruning uses it to let a newer fragment's data take
	// precedence over an older one wherever their extents overlap.
	Seq int64
}
