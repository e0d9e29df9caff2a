package stablestore

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

const memBucketSep = "\x00"

type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage, used by tests and --in-memory runs.
func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("storage closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("storage closed")
		}
		s.writer = true
	}

	// Committed buckets are never mutated in place. Readers share them; a
	// writer starts from the same buckets and copies each one on first write.
	tx := &memTx{
		writable: writable,
		base:     s,
		buckets:  s.buckets,
	}
	if writable {
		tx.buckets = maps.Clone(s.buckets)
		tx.owned = make(map[string]bool)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[string]bool // buckets already copied by this tx
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	if tx.closed {
		panic("tx is closed")
	}
	key := memBucketKey(name, sub)
	if tx.buckets[key] == nil {
		return nil
	}
	return memBucketHandle{tx: tx, key: key}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.writable {
		return nil, fmt.Errorf("tx not writable")
	}

	// Ensure the root exists for nested buckets (Bolt compatibility).
	for _, key := range []string{memBucketKey(name, ""), memBucketKey(name, sub)} {
		if tx.buckets[key] == nil {
			tx.buckets[key] = newMemBucket()
			tx.owned[key] = true
		}
	}
	return memBucketHandle{tx: tx, key: memBucketKey(name, sub)}, nil
}

// own returns a bucket that this tx may modify, copying the committed one
// the first time.
func (tx *memTx) own(key string) *memBucket {
	b := tx.buckets[key]
	if !tx.owned[key] {
		b = b.clone()
		tx.buckets[key] = b
		tx.owned[key] = true
	}
	return b
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("storage closed")
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

// Size approximates the store size as the total length of all keys and values.
func (tx *memTx) Size() int64 {
	var n int64
	for _, b := range tx.buckets {
		it := b.m.Iterator()
		for it.Next() {
			n += int64(len(it.Key().([]byte)) + len(it.Value().([]byte)))
		}
	}
	return n
}

func memBucketKey(name, sub string) string {
	return name + memBucketSep + sub
}

type memBucket struct {
	m *treemap.Map
}

func newMemBucket() *memBucket {
	return &memBucket{m: treemap.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})}
}

func (b *memBucket) clone() *memBucket {
	out := newMemBucket()
	it := b.m.Iterator()
	for it.Next() {
		// values are replaced, never modified, so sharing them is safe
		out.m.Put(it.Key(), it.Value())
	}
	return out
}

type memBucketHandle struct {
	tx  *memTx
	key string
}

func (h memBucketHandle) bucket() *memBucket {
	return h.tx.buckets[h.key]
}

func (h memBucketHandle) Get(key []byte) []byte {
	v, found := h.bucket().m.Get(key)
	if !found {
		return nil
	}
	return v.([]byte)
}

func (h memBucketHandle) Put(key, value []byte) error {
	if !h.tx.writable {
		return fmt.Errorf("tx not writable")
	}
	h.tx.own(h.key).m.Put(slices.Clone(key), slices.Clone(value))
	return nil
}

func (h memBucketHandle) Cursor() storageCursor {
	b := h.bucket()
	return &memCursor{b: b, keys: b.m.Keys(), pos: -1}
}

func (h memBucketHandle) KeyCount() int { return h.bucket().m.Size() }

// memCursor walks a snapshot of the bucket's keys taken when the cursor was created.
type memCursor struct {
	b    *memBucket
	keys []interface{}
	pos  int
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	c.pos = i
	if i < 0 || i >= len(c.keys) {
		return nil, nil
	}
	k := c.keys[i].([]byte)
	v, _ := c.b.m.Get(k)
	return k, v.([]byte)
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i := sort.Search(len(c.keys), func(i int) bool {
		return bytes.Compare(c.keys[i].([]byte), seek) >= 0
	})
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	if c.pos >= len(c.keys) {
		return nil, nil
	}
	return c.at(c.pos + 1)
}
