// Package membackend is an in-process, in-memory Backend implementation
// used by the scheduler tests as a dependency-free stand-in for a real
// backend. It's the simplest possible
// backend: a mutex-guarded map from storage key to bytes, modeled on the
// teacher's small guarded-map stores (see DESIGN.md).
package membackend

import (
	"context"
	"sync"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/catalog"
	"github.com/esdm-project/esdm-go/fragment"
)

// Backend stores committed fragment bytes in a process-local map. Data
// accessibility is Local: nothing is shared across processes.
type Backend struct {
	id  fragment.BackendID
	cfg backend.Config

	mu    sync.RWMutex
	store map[string][]byte

	// throughput is a fixed estimate; a real backend would measure this,
	// but membackend has no underlying device to probe.
	throughput float64
}

// New returns a membackend.Backend identified by id, configured with cfg.
// A zero cfg.MaxFragmentSize is replaced with a generous default so tests
// don't need to fill in every field.
func New(id fragment.BackendID, cfg backend.Config) *Backend {
	if cfg.MaxFragmentSize <= 0 {
		cfg.MaxFragmentSize = 64 << 20
	}
	cfg.DataAccessibility = backend.Local
	return &Backend{
		id:         id,
		cfg:        cfg,
		store:      make(map[string][]byte),
		throughput: 1 << 30, // 1 GiB/s, a generous in-memory figure
	}
}

func (b *Backend) ID() fragment.BackendID { return b.id }

func (b *Backend) Config() backend.Config { return b.cfg }

func (b *Backend) EstimateThroughput() float64 { return b.throughput }

// Commit stores a copy of frag.Buf under a key derived from the fragment's
// dataset-relative extent via seahash, and records it on the fragment.
func (b *Backend) Commit(ctx context.Context, frag *fragment.Fragment) error {
	key := catalog.StorageKey(frag.Dataset, frag.Space)
	cp := make([]byte, len(frag.Buf))
	copy(cp, frag.Buf)
	b.mu.Lock()
	b.store[key] = cp
	b.mu.Unlock()
	frag.StorageKey = key
	frag.Status = fragment.Persisted
	return nil
}

// Retrieve copies the stored bytes for frag.StorageKey into frag.Buf, which
// must already be sized to frag.ByteSize().
func (b *Backend) Retrieve(ctx context.Context, frag *fragment.Fragment) error {
	b.mu.RLock()
	data, ok := b.store[frag.StorageKey]
	b.mu.RUnlock()
	if !ok {
		return &missingKeyError{frag.StorageKey}
	}
	copy(frag.Buf, data)
	frag.Status = fragment.Loaded
	return nil
}

type missingKeyError struct{ key string }

func (e *missingKeyError) Error() string { return "membackend: no data for key " + e.key }
