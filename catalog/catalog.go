// Package catalog is the metadata index the scheduler consults to turn a
// requested region into the set of already-persisted fragments that cover
// it (C5's lookup_fragments) and to register newly committed fragments
// (C4's write path). The default implementation keeps the index ordered by
// a fragment's first-dimension start offset using biogo/store/llrb, the
// same ordered-index structure the teacher pack uses for its interval
// indices (see DESIGN.md).
package catalog

import (
	"sync"

	"blainsmith.com/go/seahash"

	"github.com/biogo/store/llrb"

	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
	"github.com/esdm-project/esdm-go/hypercube"
)

// Catalog is the metadata store the scheduler reads and writes.
type Catalog interface {
	// Register records frag as persisted so future lookups can find it.
	Register(dataset string, frag fragment.Descriptor) error

	// Lookup returns the descriptors of every registered fragment for
	// dataset whose extent intersects region, in no particular order.
	Lookup(dataset string, region dataspace.Dataspace) ([]fragment.Descriptor, error)

	// FillValue returns the dataset's declared fill value and whether one
	// was set; used by the read path (§4.5) to satisfy gaps instead of
	// returning IncompleteData.
	FillValue(dataset string) (value interface{}, ok bool)

	// SetFillValue sets the dataset's fill value.
	SetFillValue(dataset string, value interface{})
}

// StorageKey derives a stable, collision-resistant key for a fragment's
// extent by hashing the owning dataset's name together with its offset and
// size vectors with seahash. Backends use it as the default object/file key
// when they don't have a better scheme of their own. dataset is hashed in
// so that two datasets sharing a backend never collide over the same
// spatial extent.
func StorageKey(dataset string, space dataspace.Dataspace) string {
	buf := []byte(dataset)
	buf = append(buf, 0) // separator: keeps "ab"+"c" distinct from "a"+"bc"
	for _, v := range space.Offset {
		buf = appendInt64(buf, v)
	}
	for _, v := range space.Size {
		buf = appendInt64(buf, v)
	}
	sum := seahash.Sum64(buf)
	return uint64ToHex(sum)
}

func appendInt64(buf []byte, v int64) []byte {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(u>>(8*i)))
	}
	return buf
}

const hexDigits = "0123456789abcdef"

func uint64ToHex(v uint64) string {
	var b [16]byte
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b[:])
}

// entry is the llrb.Comparable wrapping one fragment descriptor, ordered by
// its extent's first-dimension start offset and broken by StorageKey, then
// by Seq, so that two fragments with the same leading offset (different
// later dimensions, or different generations of the same region) never
// collide in the tree.
type entry struct {
	desc fragment.Descriptor
}

func firstDimStart(space dataspace.Dataspace) int64 {
	if len(space.Offset) == 0 {
		return 0
	}
	return space.Offset[0]
}

func (e *entry) Compare(other llrb.Comparable) int {
	o := other.(*entry)
	a, b := firstDimStart(e.desc.Space), firstDimStart(o.desc.Space)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	if e.desc.StorageKey < o.desc.StorageKey {
		return -1
	}
	if e.desc.StorageKey > o.desc.StorageKey {
		return 1
	}
	switch {
	case e.desc.Seq < o.desc.Seq:
		return -1
	case e.desc.Seq > o.desc.Seq:
		return 1
	}
	return 0
}

// memCatalog is the in-process Catalog implementation: one llrb.Tree per
// dataset, guarded by a single mutex (lookups and registrations are not
// expected to be hot enough to warrant sharding).
type memCatalog struct {
	mu         sync.Mutex
	trees      map[string]*llrb.Tree
	fillValues map[string]interface{}
	seq        int64
}

// NewMem returns an empty in-memory Catalog.
func NewMem() Catalog {
	return &memCatalog{
		trees:      make(map[string]*llrb.Tree),
		fillValues: make(map[string]interface{}),
	}
}

// Register stamps frag with the next registration sequence number (even if
// the caller already set one — the catalogue is the sole authority on
// ordering) before inserting it.
func (c *memCatalog) Register(dataset string, frag fragment.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	frag.Seq = c.seq
	t := c.trees[dataset]
	if t == nil {
		t = &llrb.Tree{}
		c.trees[dataset] = t
	}
	t.Insert(&entry{desc: frag})
	return nil
}

func (c *memCatalog) Lookup(dataset string, region dataspace.Dataspace) ([]fragment.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.trees[dataset]
	if t == nil {
		return nil, nil
	}
	regionExtent := region.Extent()
	var out []fragment.Descriptor
	t.Do(func(c llrb.Comparable) (done bool) {
		e := c.(*entry)
		if hypercube.Intersects(regionExtent, e.desc.Space.Extent()) {
			out = append(out, e.desc)
		}
		return false
	})
	return out, nil
}

func (c *memCatalog) FillValue(dataset string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.fillValues[dataset]
	return v, ok
}

func (c *memCatalog) SetFillValue(dataset string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillValues[dataset] = value
}
