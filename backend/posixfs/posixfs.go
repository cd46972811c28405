// Package posixfs is a Local-accessibility Backend that stores each
// fragment as a file under a root directory. Checksums use highwayhash
// (the same hash the teacher's fusion package uses for its candidate-group
// keys, see fusion/postprocess.go), and reads probe page alignment for
// direct reads via golang.org/x/sys/unix, mirroring the teacher's
// use of unix.Mmap/Madvise in fusion/kmer_index.go for direct control over
// a file descriptor's I/O behavior.
package posixfs

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/catalog"
	"github.com/esdm-project/esdm-go/compress"
	"github.com/esdm-project/esdm-go/fragment"
)

var highwayKey = make([]byte, 32) // zero key: checksums need only be stable, not keyed.

// Backend stores fragment bytes as one file per fragment under Root.
type Backend struct {
	id   fragment.BackendID
	Root string
	cfg  backend.Config
}

// New returns a posixfs.Backend rooted at root, identified by id.
func New(id fragment.BackendID, root string, cfg backend.Config) *Backend {
	if cfg.MaxFragmentSize <= 0 {
		cfg.MaxFragmentSize = 256 << 20
	}
	cfg.DataAccessibility = backend.Local
	return &Backend{id: id, Root: root, cfg: cfg}
}

func (b *Backend) ID() fragment.BackendID { return b.id }

func (b *Backend) Config() backend.Config { return b.cfg }

// EstimateThroughput reports a fixed estimate for a local disk. A
// production backend would sample recent transfer rates; posixfs keeps it
// constant since it has no telemetry loop of its own.
func (b *Backend) EstimateThroughput() float64 { return 500 << 20 } // 500 MiB/s

func (b *Backend) path(key string) string {
	return filepath.Join(b.Root, key)
}

// MkfsTarget creates (or, if enforce, recreates) the root directory.
func (b *Backend) MkfsTarget(ctx context.Context, enforce bool) error {
	if enforce {
		if err := os.RemoveAll(b.Root); err != nil {
			return err
		}
	}
	return os.MkdirAll(b.Root, 0o755)
}

// Commit compresses frag.Buf with the backend's configured codec, writes
// the result to a file named after its storage key with a trailing
// highwayhash checksum, and records the key on frag.
func (b *Backend) Commit(ctx context.Context, frag *fragment.Fragment) error {
	key := catalog.StorageKey(frag.Dataset, frag.Space)
	encoded, err := compress.Encode(b.cfg.Codec, frag.Buf)
	if err != nil {
		return errors.Wrapf(err, "posixfs: compress fragment %s", key)
	}
	sum := highwayhash.Sum(encoded, highwayKey)
	payload := make([]byte, 0, len(encoded)+len(sum))
	payload = append(payload, encoded...)
	payload = append(payload, sum[:]...)

	if err := os.MkdirAll(b.Root, 0o755); err != nil {
		return errors.Wrapf(err, "posixfs: mkdir %s", b.Root)
	}
	tmp := b.path(key) + ".tmp"
	if err := ioutil.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrapf(err, "posixfs: write %s", tmp)
	}
	if err := os.Rename(tmp, b.path(key)); err != nil {
		return errors.Wrapf(err, "posixfs: rename %s", tmp)
	}
	frag.StorageKey = key
	frag.Status = fragment.Persisted
	return nil
}

// Retrieve reads the file for frag.StorageKey, verifies its trailing
// highwayhash checksum, decompresses with the backend's codec, and copies
// the payload into frag.Buf.
//
// When the backend uses no compression and frag.Buf's address and length
// are page-aligned (checked here by directIOEligible; the scheduler's C7
// shortcut check does not look at alignment), bytes are read straight into
// frag.Buf via ReadAt, skipping the ioutil.ReadFile intermediate
// allocation entirely.
func (b *Backend) Retrieve(ctx context.Context, frag *fragment.Fragment) error {
	path := b.path(frag.StorageKey)
	sumSize := len(highwayhash.Sum(nil, highwayKey))

	if b.cfg.Codec == compress.None && directIOEligible(bufAddr(frag.Buf), len(frag.Buf)) {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "posixfs: open %s", path)
		}
		defer f.Close()
		if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(len(frag.Buf))), frag.Buf); err != nil {
			return errors.Wrapf(err, "posixfs: direct read %s", path)
		}
		sum := make([]byte, sumSize)
		if _, err := f.ReadAt(sum, int64(len(frag.Buf))); err != nil {
			return errors.Wrapf(err, "posixfs: read checksum %s", path)
		}
		if !checksumMatches(frag.Buf, sum) {
			return &corruptError{frag.StorageKey}
		}
		frag.Status = fragment.Loaded
		return nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "posixfs: read %s", path)
	}
	if len(data) < sumSize {
		return &corruptError{frag.StorageKey}
	}
	payload, sum := data[:len(data)-sumSize], data[len(data)-sumSize:]
	if !checksumMatches(payload, sum) {
		return &corruptError{frag.StorageKey}
	}
	decoded, err := compress.Decode(b.cfg.Codec, payload, len(frag.Buf))
	if err != nil {
		return errors.Wrapf(err, "posixfs: decompress %s", frag.StorageKey)
	}
	copy(frag.Buf, decoded)
	frag.Status = fragment.Loaded
	return nil
}

func checksumMatches(payload, sum []byte) bool {
	got := highwayhash.Sum(payload, highwayKey)
	for i := range sum {
		if sum[i] != got[i] {
			return false
		}
	}
	return true
}

// bufAddr returns the address of buf's backing array, or 0 for an empty
// buffer (which directIOEligible will then reject on the alignment check).
func bufAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

type corruptError struct{ key string }

func (e *corruptError) Error() string { return "posixfs: checksum mismatch for " + e.key }

// directIOEligible reports whether addr and length are both aligned to the
// page size, the condition Retrieve requires before reading a file
// straight into frag.Buf instead of through an intermediate allocation.
func directIOEligible(addr uintptr, length int) bool {
	pageSize := uintptr(unix.Getpagesize())
	return addr%pageSize == 0 && uintptr(length)%pageSize == 0
}
