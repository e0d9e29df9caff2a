package stablestore

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
)

// MemoryID identifies a region within a MemoryManager.
type MemoryID uint8

func (id MemoryID) String() string {
	return fmt.Sprintf("region.%03d", id)
}

const (
	pagesBucket   = "pages"
	entriesBucket = "entries"
)

var sizeKey = []byte("size")

// Region is an independent slice of the durable store. It has two views:
// a growable byte-addressable memory made of PageSize pages, used by Cell,
// and an ordered key space, used by Table. Regions never share buckets.
type Region struct {
	mm   *MemoryManager
	id   MemoryID
	name string
}

func (r *Region) ID() MemoryID {
	return r.id
}

// Size returns the number of pages allocated to the region's byte view.
func (r *Region) Size() (uint64, error) {
	var n uint64
	err := r.view(func(rt *regionTx) error {
		n = rt.Size()
		return nil
	})
	return n, err
}

func (r *Region) view(f func(rt *regionTx) error) error {
	return r.mm.view(func(stx storageTx) error {
		return f(openRegionTx(r, stx))
	})
}

func (r *Region) update(f func(rt *regionTx) error) error {
	return r.mm.update(func(stx storageTx) error {
		rt, err := createRegionTx(r, stx)
		if err != nil {
			return regionErrf(r.id, "", nil, err, "allocating region")
		}
		return f(rt)
	})
}

// regionTx is a region bound to a single storage transaction. In a read-only
// transaction of a never-written region the buckets are nil and the region
// reads as empty.
type regionTx struct {
	r       *Region
	root    storageBucket
	pages   storageBucket
	entries storageBucket
}

func openRegionTx(r *Region, stx storageTx) *regionTx {
	return &regionTx{
		r:       r,
		root:    stx.Bucket(r.name, ""),
		pages:   stx.Bucket(r.name, pagesBucket),
		entries: stx.Bucket(r.name, entriesBucket),
	}
}

func createRegionTx(r *Region, stx storageTx) (*regionTx, error) {
	rt := openRegionTx(r, stx)
	if rt.root != nil && rt.pages != nil && rt.entries != nil {
		return rt, nil
	}
	var err error
	if rt.pages, err = stx.CreateBucket(r.name, pagesBucket); err != nil {
		return nil, err
	}
	if rt.entries, err = stx.CreateBucket(r.name, entriesBucket); err != nil {
		return nil, err
	}
	rt.root = stx.Bucket(r.name, "")
	if rt.root == nil {
		return nil, ErrBucketNotFound
	}
	r.mm.logger.Debug("stablestore: region allocated", zap.Stringer("region", r.id))
	return rt, nil
}

// Size returns the number of allocated pages.
func (rt *regionTx) Size() uint64 {
	if rt.root == nil {
		return 0
	}
	raw := rt.root.Get(sizeKey)
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// Grow adds n zeroed pages and returns the previous size, or -1 when the
// region would exceed its page budget.
func (rt *regionTx) Grow(n uint64) int64 {
	prev := rt.Size()
	if n > rt.r.mm.maxPages || prev+n > rt.r.mm.maxPages {
		return -1
	}
	ensure(rt.root.Put(sizeKey, binary.BigEndian.AppendUint64(nil, prev+n)))
	return int64(prev)
}

// ReadAt fills p from the byte view starting at off. Pages never written read as zeros.
func (rt *regionTx) ReadAt(off uint64, p []byte) error {
	if err := rt.checkBounds(off, len(p)); err != nil {
		return err
	}
	for len(p) > 0 {
		page, inPage := off/PageSize, off%PageSize
		n := min(uint64(len(p)), PageSize-inPage)
		var data []byte
		if rt.pages != nil {
			data = rt.pages.Get(appendKey(nil, page))
		}
		if data == nil {
			clear(p[:n])
		} else {
			copy(p[:n], data[inPage:inPage+n])
		}
		p, off = p[n:], off+n
	}
	return nil
}

// WriteAt copies p into the byte view starting at off, rewriting every touched page.
func (rt *regionTx) WriteAt(off uint64, p []byte) error {
	if err := rt.checkBounds(off, len(p)); err != nil {
		return err
	}
	for len(p) > 0 {
		page, inPage := off/PageSize, off%PageSize
		n := min(uint64(len(p)), PageSize-inPage)
		key := appendKey(nil, page)
		buf := make([]byte, PageSize)
		if old := rt.pages.Get(key); old != nil {
			copy(buf, old)
		}
		copy(buf[inPage:], p[:n])
		if err := rt.pages.Put(key, buf); err != nil {
			return regionErrf(rt.r.id, "", key, err, "writing page")
		}
		p, off = p[n:], off+n
	}
	return nil
}

func (rt *regionTx) checkBounds(off uint64, n int) error {
	limit := rt.Size() * PageSize
	if off > limit || uint64(n) > limit-off {
		return regionErrf(rt.r.id, "", nil, ErrOutOfBounds, "%d bytes at offset %d, region has %d bytes", n, off, limit)
	}
	return nil
}

func (rt *regionTx) get(key []byte) []byte {
	if rt.entries == nil {
		return nil
	}
	return rt.entries.Get(key)
}

func (rt *regionTx) put(key, value []byte) error {
	if rt.r.mm.verbose {
		rt.r.mm.logger.Debug("stablestore: PUT", zap.Stringer("region", rt.r.id), hexField("key", key), zap.Int("size", len(value)))
	}
	return rt.entries.Put(key, value)
}

func (rt *regionTx) count() int {
	if rt.entries == nil {
		return 0
	}
	return rt.entries.KeyCount()
}

func (rt *regionTx) cursor() storageCursor {
	if rt.entries == nil {
		return nil
	}
	return rt.entries.Cursor()
}
