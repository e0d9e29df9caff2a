package stablestore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// PageSize is the unit of growth of a region's byte view.
	PageSize = 4096

	// MaxRegions is the number of regions a manager can address (ids 0..MaxRegions-1).
	MaxRegions = 255

	// DefaultMaxRegionPages caps each region at 256 MiB unless Options say otherwise.
	DefaultMaxRegionPages = 1 << 16

	managerBucket = "memmgr"
	layoutVersion = 1
	headerSize    = 3 + 1 + 4 + 2 + 8
)

var (
	managerMagic = [3]byte{'S', 'M', 'M'}
	headerKey    = []byte("header")
)

// MemoryManager partitions a single durable store into independent regions.
// There should be one MemoryManager per store file per process.
type MemoryManager struct {
	st       storage
	logger   *zap.Logger
	verbose  bool
	maxPages uint64

	regionsLock sync.Mutex
	regions     [MaxRegions]*Region

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

type Options struct {
	Logger         *zap.Logger
	Verbose        bool
	IsTesting      bool
	MmapSize       int
	MaxRegionPages uint64
}

// Open opens (creating if necessary) a Bolt file at path and attaches to its regions.
func Open(path string, opt Options) (*MemoryManager, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("stablestore: %w", err)
	}
	mm, err := attach(newBoltStorage(bdb), opt)
	if err != nil {
		return nil, err
	}
	mm.logger.Info("stablestore: opened", zap.String("path", path))
	return mm, nil
}

// OpenInMemory returns a manager over transient storage that is lost on Close.
func OpenInMemory(opt Options) (*MemoryManager, error) {
	return attach(newMemStorage(), opt)
}

// MustOpen is Open that panics on failure; the store is foundational, so callers
// have nothing to fall back to.
func MustOpen(path string, opt Options) *MemoryManager {
	return must(Open(path, opt))
}

func attach(st storage, opt Options) (*MemoryManager, error) {
	mm := &MemoryManager{
		st:       st,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		maxPages: opt.MaxRegionPages,
	}
	if mm.logger == nil {
		mm.logger = zap.NewNop()
	}
	if mm.maxPages == 0 {
		mm.maxPages = DefaultMaxRegionPages
	}

	err := mm.update(mm.initLayout)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("stablestore: %w", err)
	}
	return mm, nil
}

func (mm *MemoryManager) initLayout(stx storageTx) error {
	buck, err := stx.CreateBucket(managerBucket, "")
	if err != nil {
		return err
	}
	expected := encodeHeader()
	raw := buck.Get(headerKey)
	if raw == nil {
		mm.logger.Info("stablestore: initializing new store", zap.Int("layout", layoutVersion))
		return buck.Put(headerKey, expected)
	}
	return verifyHeader(raw)
}

func encodeHeader() []byte {
	bb := bytesBuilder{make([]byte, 0, headerSize)}
	bb.Write(managerMagic[:])
	bb.WriteByte(layoutVersion)
	bb.AppendFixedUint32(PageSize)
	bb.Write([]byte{0, MaxRegions})
	bb.AppendFixedUint64(xxhash.Sum64(bb.Buf))
	return bb.Buf
}

func verifyHeader(raw []byte) error {
	if len(raw) != headerSize {
		return dataErrf(raw, 0, ErrBadLayout, "manager header: %d bytes, wanted %d", len(raw), headerSize)
	}
	d := makeByteDecoder(raw)
	magic := must(d.Raw(3))
	if string(magic) != string(managerMagic[:]) {
		return dataErrf(raw, 0, ErrBadLayout, "manager header: bad magic")
	}
	if ver := must(d.Raw(1))[0]; ver != layoutVersion {
		return dataErrf(raw, 3, ErrBadLayout, "manager header: unsupported layout version %d", ver)
	}
	if ps := must(d.FixedUint32()); ps != PageSize {
		return dataErrf(raw, 4, ErrBadLayout, "manager header: page size %d, wanted %d", ps, PageSize)
	}
	must(d.Raw(2))
	sum := must(d.FixedUint64())
	if sum != xxhash.Sum64(raw[:headerSize-8]) {
		return dataErrf(raw, headerSize-8, ErrBadLayout, "manager header: checksum mismatch")
	}
	return nil
}

func (mm *MemoryManager) Close() error {
	return mm.st.Close()
}

// Region returns the handle for the given region id. Buckets backing the region
// are created on the first write, so reopening a store reattaches to existing data.
func (mm *MemoryManager) Region(id MemoryID) *Region {
	if int(id) >= MaxRegions {
		panic(fmt.Errorf("region id %d out of range (max %d)", id, MaxRegions-1))
	}
	mm.regionsLock.Lock()
	defer mm.regionsLock.Unlock()
	r := mm.regions[id]
	if r == nil {
		r = &Region{mm: mm, id: id, name: id.String()}
		mm.regions[id] = r
	}
	return r
}

type RegionStats struct {
	ID      MemoryID `json:"id" yaml:"id"`
	Pages   uint64   `json:"pages" yaml:"pages"`
	Entries int      `json:"entries" yaml:"entries"`
}

// Stats reports every region that has been written to at least once.
func (mm *MemoryManager) Stats() ([]RegionStats, error) {
	var result []RegionStats
	err := mm.view(func(stx storageTx) error {
		for i := 0; i < MaxRegions; i++ {
			id := MemoryID(i)
			rt := openRegionTx(mm.Region(id), stx)
			if rt.root == nil {
				continue
			}
			result = append(result, RegionStats{
				ID:      id,
				Pages:   rt.Size(),
				Entries: rt.count(),
			})
		}
		return nil
	})
	return result, err
}

// StoreSize returns the size of the underlying store in bytes: the file size
// for Bolt, the total length of keys and values for in-memory storage.
func (mm *MemoryManager) StoreSize() (int64, error) {
	var n int64
	err := mm.view(func(stx storageTx) error {
		n = stx.Size()
		return nil
	})
	return n, err
}

func (mm *MemoryManager) view(f func(stx storageTx) error) error {
	stx, err := mm.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	mm.ReadCount.Add(1)
	return f(stx)
}

func (mm *MemoryManager) update(f func(stx storageTx) error) error {
	stx, err := mm.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	err = f(stx)
	if err != nil {
		return err
	}
	mm.WriteCount.Add(1)
	return stx.Commit()
}
