// Package scheduler implements the core request paths (§4.2-§4.6):
// fragment splitting (C2), backend allocation (C3), the write path (C4),
// the read path (C5, including redundancy-bounded candidate pruning), and
// per-backend worker pool wiring (C6). It is the component the public API
// (dataset.Dataset) drives; it has no knowledge of any particular backend
// or catalogue implementation beyond their interfaces.
package scheduler

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"time"

	"v.io/x/lib/vlog"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/catalog"
	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
	"github.com/esdm-project/esdm-go/hypercube"
	"github.com/esdm-project/esdm-go/status"
)

// ClusterInfo describes the cluster shape used by the thread-count formula
// (§4.6): how many processes (ranks) share a node, and how many there are
// in total. A single-process deployment uses ProcsPerNode = TotalProcs = 1.
type ClusterInfo struct {
	ProcsPerNode int
	TotalProcs   int
}

// throughputEntry caches a backend's last-observed EstimateThroughput so
// the allocator doesn't call into a backend on every single split decision
// (grounded on the original middleware's ad hoc estimate caching in its
// scheduler, see SPEC_FULL.md).
type throughputEntry struct {
	value    float64
	sampleAt time.Time
}

// Scheduler is the top-level coordination object: a set of named backends,
// the catalogue they're indexed through, and the cluster shape used to size
// worker pools. There is no process-wide singleton (§9's open question is
// resolved explicitly in favor of an ordinary constructed value); callers
// own a *Scheduler and pass it to dataset.Open.
type Scheduler struct {
	cluster ClusterInfo
	cat     catalog.Catalog

	mu       sync.Mutex
	backends map[fragment.BackendID]backend.Backend
	pools    map[fragment.BackendID]*backend.Pool
	tput     map[fragment.BackendID]*throughputEntry

	// EstimateRefresh bounds how long a cached throughput estimate is
	// trusted before EstimateThroughput is called again. Zero disables
	// caching (always re-query).
	EstimateRefresh time.Duration
}

// New returns a Scheduler with no backends registered yet.
func New(cluster ClusterInfo, cat catalog.Catalog) *Scheduler {
	if cluster.ProcsPerNode <= 0 {
		cluster.ProcsPerNode = 1
	}
	if cluster.TotalProcs <= 0 {
		cluster.TotalProcs = 1
	}
	return &Scheduler{
		cluster:         cluster,
		cat:             cat,
		backends:        make(map[fragment.BackendID]backend.Backend),
		pools:           make(map[fragment.BackendID]*backend.Pool),
		tput:            make(map[fragment.BackendID]*throughputEntry),
		EstimateRefresh: 30 * time.Second,
	}
}

// AddBackend registers b and starts its worker pool, sized per the
// ThreadCount formula against the scheduler's ClusterInfo.
func (s *Scheduler) AddBackend(b backend.Backend) {
	threads := backend.ThreadCount(b.Config(), s.cluster.ProcsPerNode, s.cluster.TotalProcs)
	s.mu.Lock()
	s.backends[b.ID()] = b
	s.pools[b.ID()] = backend.NewPool(b, threads)
	s.mu.Unlock()
	vlog.VI(1).Infof("scheduler: registered backend %s with %d threads", b.ID(), threads)
}

// Backends returns the currently registered backend IDs, in no particular
// order.
func (s *Scheduler) Backends() []fragment.BackendID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fragment.BackendID, 0, len(s.backends))
	for id := range s.backends {
		out = append(out, id)
	}
	return out
}

// SetFillValue sets dataset's fill value in the catalogue (§6's
// get_fill_value, writer side).
func (s *Scheduler) SetFillValue(dataset string, value interface{}) {
	s.cat.SetFillValue(dataset, value)
}

// Close closes every backend's worker pool (see backend.Pool.Close; it
// does not wait for queued tasks).
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Close()
	}
}

// throughput returns b's throughput estimate, served from cache when
// within EstimateRefresh of the last sample.
func (s *Scheduler) throughput(b backend.Backend) float64 {
	s.mu.Lock()
	e := s.tput[b.ID()]
	if e != nil && s.EstimateRefresh > 0 && time.Since(e.sampleAt) < s.EstimateRefresh {
		v := e.value
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	v := b.EstimateThroughput()
	s.mu.Lock()
	s.tput[b.ID()] = &throughputEntry{value: v, sampleAt: time.Now()}
	s.mu.Unlock()
	return v
}

// recommendBackends returns the registered backends eligible for a write,
// ordered by BackendID for determinism. This is the "externally supplied
// policy" named in §4.4 step 2: the default policy is "every registered
// backend is a candidate"; a caller wanting a narrower policy (e.g. only
// Local-accessibility backends for a latency-sensitive dataset) registers
// only those backends on a dedicated Scheduler.
func (s *Scheduler) recommendBackends() []backend.Backend {
	s.mu.Lock()
	out := make([]backend.Backend, 0, len(s.backends))
	for _, b := range s.backends {
		out = append(out, b)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *Scheduler) pool(id fragment.BackendID) *backend.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[id]
}

// Write implements C4: recommend backends, split region across them
// weighted by throughput (C3), split each backend's share into fragments
// per its fragmentation method (C2), stage the caller's data into each
// fragment's buffer via the copy planner, and commit them all
// concurrently, returning the latched result code.
func (s *Scheduler) Write(ctx context.Context, dataset string, region dataspace.Dataspace, buf []byte) status.Code {
	backends := s.recommendBackends()
	if len(backends) == 0 {
		return status.Internal
	}
	assignments := AllocateBackends(region, backends, s.throughput)

	type piece struct {
		space dataspace.Dataspace
		b     backend.Backend
	}
	var pieces []piece
	for _, a := range assignments {
		if a.Empty {
			continue
		}
		for _, frag := range Split(a.Region, a.Backend.Config()) {
			pieces = append(pieces, piece{space: frag, b: a.Backend})
		}
	}
	vlog.VI(1).Infof("scheduler: write %s split into %d fragments across %d backends", dataset, len(pieces), len(backends))

	req := status.NewRequest()
	req.Add(len(pieces))
	for _, p := range pieces {
		p := p
		// The fragment's bytes are staged densely, so its space must not
		// carry over the caller's (possibly strided) layout.
		p.space.Stride = nil
		frag := &fragment.Fragment{
			Dataset: dataset,
			Space:   p.space,
			Backend: p.b.ID(),
			Buf:     make([]byte, p.space.ByteSize()),
			Status:  fragment.Loaded,
		}
		dataspace.CopyData(region, buf, p.space, frag.Buf)
		s.pool(p.b.ID()).Enqueue(backendTask(backend.OpCommit, frag, req, func(f *fragment.Fragment, err error) {
			if err != nil {
				vlog.Errorf("scheduler: commit of %s failed: %v", dataset, err)
				return
			}
			s.cat.Register(dataset, fragment.Descriptor{
				Dataset:    dataset,
				Space:      f.Space,
				Backend:    f.Backend,
				StorageKey: f.StorageKey,
			})
		}))
	}
	return req.Wait()
}

// Read implements C5: look up the catalogue for fragments covering region,
// prune to a non-redundant covering subset (§4.5.1), retrieve each
// concurrently, then copy their bytes into the caller's buffer oldest
// registration first so a retained fragment that overlaps another always
// has the newer one's data win, matching write order (§5). Gaps left
// uncovered are filled with fillValue if one is set, else the request
// latches IncompleteData.
func (s *Scheduler) Read(ctx context.Context, dataset string, region dataspace.Dataspace, buf []byte) status.Code {
	descs, err := s.cat.Lookup(dataset, region)
	if err != nil {
		return status.Internal
	}
	chosen := pruneRedundant(region, descs)

	coveredCubes := make([]hypercube.Cube, len(chosen))
	for i, d := range chosen {
		coveredCubes[i] = d.Space.Extent()
	}

	// The direct-I/O shortcut (C7) lands bytes straight in buf, bypassing
	// the ordered copy pass below; it's only safe when a single fragment
	// serves the whole read, since otherwise two retained, overlapping
	// fragments could race to land in the same bytes of buf out of order.
	useShortcut := len(chosen) == 1

	frags := make([]*fragment.Fragment, len(chosen))
	directs := make([]bool, len(chosen))
	req := status.NewRequest()
	req.Add(len(chosen))
	for i, d := range chosen {
		i, d := i, d
		b := s.lookupBackend(d.Backend)
		if b == nil {
			req.Done(status.Internal)
			continue
		}
		frag := &fragment.Fragment{
			Dataset:    dataset,
			Space:      d.Space,
			Backend:    d.Backend,
			Status:     fragment.NotLoaded,
			StorageKey: d.StorageKey,
		}
		frags[i] = frag
		direct := false
		if useShortcut {
			if shortcut := dataspace.PlanShortcut(d.Space, region); shortcut.Applies {
				end := shortcut.Offset + frag.Space.ByteSize()
				if shortcut.Offset >= 0 && end <= int64(len(buf)) {
					frag.Buf = buf[shortcut.Offset:end]
					direct = true
				}
			}
		}
		directs[i] = direct
		if !direct {
			frag.Buf = make([]byte, d.Space.ByteSize())
		}
		s.pool(b.ID()).Enqueue(backendTask(backend.OpRetrieve, frag, req, func(f *fragment.Fragment, err error) {
			if err != nil {
				vlog.Errorf("scheduler: retrieve for %s failed: %v", dataset, err)
			}
		}))
	}
	code := req.Wait()
	if code != status.Success {
		return code
	}

	order := make([]int, len(chosen))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return chosen[order[i]].Seq < chosen[order[j]].Seq })
	for _, i := range order {
		if f := frags[i]; f != nil && !directs[i] {
			dataspace.CopyData(f.Space, f.Buf, region, buf)
		}
	}

	if residual := hypercube.CoveredVolume(region.Extent(), coveredCubes); residual < region.ElementCount() {
		if fillValue, ok := s.cat.FillValue(dataset); ok {
			fillGaps(region, buf, coveredCubes, fillValue)
			return status.Success
		}
		return status.IncompleteData
	}
	return status.Success
}

func (s *Scheduler) lookupBackend(id fragment.BackendID) backend.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backends[id]
}

func backendTask(op backend.Op, frag *fragment.Fragment, req *status.Request, cb func(*fragment.Fragment, error)) backend.Task {
	return backend.Task{Op: op, Fragment: frag, Req: req, Callback: cb}
}

// fillGaps writes fillValue's byte pattern into every byte of buf not
// covered by coveredCubes.
func fillGaps(region dataspace.Dataspace, buf []byte, coveredCubes []hypercube.Cube, fillValue interface{}) {
	pattern := fillPattern(region.Type, fillValue)
	if len(pattern) == 0 {
		return
	}
	esize := int64(len(pattern))
	n := int64(len(buf)) / esize
	for i := int64(0); i < n; i++ {
		if coveredAt(region, coveredCubes, i) {
			continue
		}
		copy(buf[i*esize:(i+1)*esize], pattern)
	}
}

// coveredAt reports whether the i'th element (in region's row-major
// iteration order) falls inside any of coveredCubes. This is a
// correctness-first O(n) scan.
func coveredAt(region dataspace.Dataspace, coveredCubes []hypercube.Cube, linear int64) bool {
	idx := unflatten(region.Size, linear)
	for d := range idx {
		idx[d] += region.Offset[d]
	}
	for _, c := range coveredCubes {
		inside := true
		for d, r := range c {
			if idx[d] < r.Start || idx[d] >= r.End {
				inside = false
				break
			}
		}
		if inside {
			return true
		}
	}
	return false
}

func unflatten(size []int64, linear int64) []int64 {
	n := len(size)
	idx := make([]int64, n)
	for d := n - 1; d >= 0; d-- {
		if size[d] == 0 {
			continue
		}
		idx[d] = linear % size[d]
		linear /= size[d]
	}
	return idx
}

// fillPattern encodes a dataset's fill value (one element of type t) into
// its little-endian on-the-wire byte pattern. v is either a Go value of
// the natural type for t (e.g. int32 for dataspace.Int32) or a raw,
// already-encoded []byte of length t.Size() for callers that computed the
// pattern themselves.
func fillPattern(t dataspace.ElementType, v interface{}) []byte {
	buf := make([]byte, t.Size())
	switch x := v.(type) {
	case []byte:
		copy(buf, x)
	case int8:
		buf[0] = byte(x)
	case uint8:
		buf[0] = x
	case int16:
		binary.LittleEndian.PutUint16(buf, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(buf, x)
	case int32:
		binary.LittleEndian.PutUint32(buf, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(buf, x)
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(buf, x)
	case float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
	case int:
		return fillPattern(t, int64(x))
	}
	return buf
}
