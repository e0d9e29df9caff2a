package stablestore

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

const (
	cellVersion    = 1
	cellHeaderSize = 3 + 1 + 4 + 8
)

var cellMagic = [3]byte{'S', 'C', 'L'}

// Cell is a single persisted value stored at the start of a region's byte view.
//
// Layout: magic "SCL", version, value length (u32), xxhash64 of the value, value bytes.
type Cell[T any] struct {
	region *Region
	codec  Codec[T]
	value  T
}

// NewCell attaches to the value stored in r, writing initial if r is empty.
func NewCell[T any](r *Region, codec Codec[T], initial T) (*Cell[T], error) {
	c := &Cell[T]{region: r, codec: codec}
	err := r.update(func(rt *regionTx) error {
		if rt.Size() == 0 {
			if err := c.write(rt, &initial); err != nil {
				return err
			}
			c.value = initial
			return nil
		}
		v, err := c.load(rt)
		if err != nil {
			return err
		}
		c.value = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the last value written through this cell.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set persists v. The cached value only changes once the write has committed.
func (c *Cell[T]) Set(v T) error {
	err := c.region.update(func(rt *regionTx) error {
		return c.write(rt, &v)
	})
	if err != nil {
		return err
	}
	c.value = v
	return nil
}

// Update reads the stored value, applies f and persists the result, all in one
// write transaction.
func (c *Cell[T]) Update(f func(v T) (T, error)) (T, error) {
	var result T
	err := c.region.update(func(rt *regionTx) error {
		cur, err := c.load(rt)
		if err != nil {
			return err
		}
		next, err := f(cur)
		if err != nil {
			return err
		}
		if err := c.write(rt, &next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	c.value = result
	return result, nil
}

func (c *Cell[T]) write(rt *regionTx, v *T) error {
	bb := bytesBuilder{make([]byte, cellHeaderSize, cellHeaderSize+c.codec.MaxSize())}
	bb.Buf = c.codec.Encode(bb.Buf, v)
	data := bb.Buf[cellHeaderSize:]
	if len(data) > c.codec.MaxSize() {
		panic(fmt.Errorf("%T encodes to %d bytes, exceeding declared max size %d", v, len(data), c.codec.MaxSize()))
	}

	hdr := bb.Buf[:0]
	hdr = append(hdr, cellMagic[:]...)
	hdr = append(hdr, cellVersion)
	hdr = appendFixedUint32(hdr, uint32(len(data)))
	hdr = appendFixedUint64(hdr, xxhash.Sum64(data))
	if len(hdr) != cellHeaderSize {
		panic("internal error")
	}

	have := rt.Size() * PageSize
	if need := uint64(len(bb.Buf)); need > have {
		pages := (need - have + PageSize - 1) / PageSize
		if rt.Grow(pages) < 0 {
			return regionErrf(rt.r.id, "", nil, ErrRegionFull, "cell needs %d more pages", pages)
		}
	}
	return rt.WriteAt(0, bb.Buf)
}

func (c *Cell[T]) load(rt *regionTx) (T, error) {
	var v T
	hdr := make([]byte, cellHeaderSize)
	if err := rt.ReadAt(0, hdr); err != nil {
		return v, err
	}
	d := makeByteDecoder(hdr)
	if magic := must(d.Raw(3)); string(magic) != string(cellMagic[:]) {
		return v, regionErrf(rt.r.id, "", nil, dataErrf(hdr, 0, ErrBadLayout, "bad cell magic"), "loading cell")
	}
	if ver := must(d.Raw(1))[0]; ver != cellVersion {
		return v, regionErrf(rt.r.id, "", nil, dataErrf(hdr, 3, ErrBadLayout, "unsupported cell version %d", ver), "loading cell")
	}
	n := must(d.FixedUint32())
	sum := must(d.FixedUint64())
	if uint64(n) > math.MaxInt32 || int(n) > c.codec.MaxSize() {
		return v, regionErrf(rt.r.id, "", nil, dataErrf(hdr, 4, ErrBadLayout, "cell value length %d exceeds max size %d", n, c.codec.MaxSize()), "loading cell")
	}

	data := make([]byte, n)
	if err := rt.ReadAt(cellHeaderSize, data); err != nil {
		return v, err
	}
	if xxhash.Sum64(data) != sum {
		return v, regionErrf(rt.r.id, "", nil, dataErrf(data, 0, ErrBadLayout, "cell checksum mismatch"), "loading cell")
	}
	if err := c.codec.Decode(data, &v); err != nil {
		return v, regionErrf(rt.r.id, "", nil, err, "decoding cell")
	}
	return v, nil
}
