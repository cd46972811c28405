// Package backend defines the storage-plug-in interface the scheduler
// drives (§6), the per-backend worker pool and task record (§4.6/C6), and
// the configuration knobs (§6's backend config) that feed the thread-count
// and allocator calculations.
package backend

import (
	"context"

	"github.com/esdm-project/esdm-go/compress"
	"github.com/esdm-project/esdm-go/fragment"
)

// Accessibility describes whether a backend's storage is reachable only
// from the node that wrote it (Local) or from any node (Global) — it
// gates both the thread-count formula (§4.6) and mkfs's per-target fan-out
// (§6).
type Accessibility int

const (
	Local Accessibility = iota
	Global
)

func (a Accessibility) String() string {
	if a == Global {
		return "Global"
	}
	return "Local"
}

// FragmentationMethod selects how the fragment splitter (C2) decomposes a
// region for this backend.
type FragmentationMethod int

const (
	Equalized FragmentationMethod = iota
	Contiguous
)

// Config carries the backend-reported tunables named in §6.
type Config struct {
	MaxFragmentSize     int64
	FragmentationMethod FragmentationMethod
	MaxThreadsPerNode   int
	MaxGlobalThreads    int
	DataAccessibility   Accessibility

	// Codec is the compression transformer (compress.Codec) applied to a
	// fragment's bytes on Commit and reversed on Retrieve. Only
	// backend/posixfs honours it; membackend and s3backend store bytes
	// uncompressed. compress.None (the zero value) disables compression.
	Codec compress.Codec
}

// Backend is the storage plug-in interface consumed by the core (§6). A
// concrete backend (backend/posixfs, backend/s3backend, backend/membackend)
// persists and retrieves fragment bytes plus the catalogue metadata needed
// to look them up again; the core itself never depends on a concrete
// implementation.
type Backend interface {
	// ID returns the stable identifier the scheduler and catalogue use to
	// refer to this backend.
	ID() fragment.BackendID

	// Config returns the backend's tunables. May be called concurrently.
	Config() Config

	// Commit persists frag.Buf's bytes and enough catalogue metadata to
	// find them again on lookup. Must be safe to call concurrently from
	// different goroutines.
	Commit(ctx context.Context, frag *fragment.Fragment) error

	// Retrieve loads frag's bytes into frag.Buf, which is provided
	// contiguous and already sized to frag.ByteSize().
	Retrieve(ctx context.Context, frag *fragment.Fragment) error

	// EstimateThroughput is a fast, non-blocking (may be stale) estimate
	// used by the allocator (C3) to weight backends against each other.
	EstimateThroughput() float64
}

// ThreadCount computes a worker pool's goroutine count from a backend's
// config and the cluster shape it's running in (§4.6): min of the
// per-node and global bounds when the backend is globally accessible,
// else just the local bound. A count of zero means inline execution (the
// Pool starts no worker goroutines; Pool.Enqueue runs the task on the
// caller's goroutine).
func ThreadCount(cfg Config, procsPerNode, totalProcs int) int {
	local := ceilDiv(cfg.MaxThreadsPerNode, procsPerNode)
	if cfg.DataAccessibility != Global {
		return local
	}
	global := ceilDiv(cfg.MaxGlobalThreads, totalProcs)
	if global < local {
		return global
	}
	return local
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		b = 1
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
