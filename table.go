package stablestore

import "fmt"

// Table is an ordered map from uint64 keys to values of one type, bound to a
// single region. Keys are stored big-endian, so iteration is in ascending
// numeric order.
type Table[T any] struct {
	region *Region
	name   string
	codec  Codec[T]
}

func NewTable[T any](r *Region, name string, codec Codec[T]) *Table[T] {
	return &Table[T]{region: r, name: name, codec: codec}
}

func (tbl *Table[T]) Name() string {
	return tbl.name
}

// Get returns the value stored under key, or nil, false if there is none.
// Storage faults panic; use TryGet to handle them.
func (tbl *Table[T]) Get(key uint64) (*T, bool) {
	v, err := tbl.TryGet(key)
	if err != nil {
		panic(err)
	}
	return v, v != nil
}

func (tbl *Table[T]) TryGet(key uint64) (*T, error) {
	var result *T
	err := tbl.region.view(func(rt *regionTx) error {
		keyRaw := appendKey(nil, key)
		raw := rt.get(keyRaw)
		if raw == nil {
			return nil
		}
		v := new(T)
		if err := tbl.codec.Decode(raw, v); err != nil {
			return regionErrf(tbl.region.id, tbl.name, keyRaw, err, "decoding value")
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Insert stores v under key, replacing any existing value. The write is
// committed before Insert returns.
func (tbl *Table[T]) Insert(key uint64, v *T) error {
	if v == nil {
		panic(fmt.Errorf("%s: Insert(%d, nil)", tbl.name, key))
	}
	// Encoding happens outside the transaction so that a bound violation
	// panics without touching storage.
	keyRaw := appendKey(nil, key)
	valueRaw := tbl.codec.Encode(nil, v)
	err := tbl.region.update(func(rt *regionTx) error {
		return rt.put(keyRaw, valueRaw)
	})
	if err != nil {
		return regionErrf(tbl.region.id, tbl.name, keyRaw, err, "insert")
	}
	return nil
}

// Len returns the number of entries.
func (tbl *Table[T]) Len() (int, error) {
	var n int
	err := tbl.region.view(func(rt *regionTx) error {
		n = rt.count()
		return nil
	})
	return n, err
}

// Scan calls f for every entry with key >= from, in ascending key order,
// until f returns false.
func (tbl *Table[T]) Scan(from uint64, f func(key uint64, v *T) bool) error {
	return tbl.region.view(func(rt *regionTx) error {
		c := rt.cursor()
		if c == nil {
			return nil
		}
		for k, raw := c.Seek(appendKey(nil, from)); k != nil; k, raw = c.Next() {
			key, err := decodeKey(k)
			if err != nil {
				return regionErrf(tbl.region.id, tbl.name, k, err, "scan")
			}
			v := new(T)
			if err := tbl.codec.Decode(raw, v); err != nil {
				return regionErrf(tbl.region.id, tbl.name, k, err, "decoding value")
			}
			if !f(key, v) {
				break
			}
		}
		return nil
	})
}
