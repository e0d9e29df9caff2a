/*
Package stablestore partitions one durable key-value store (Bolt) into
independent regions, and builds persistent cells, id counters and ordered
tables on top of them.

We implement:

1. MemoryManager, owning the store and handing out regions by small integer id.

2. Cells, a single typed value stored in a region (used for the id Counter).

3. Tables, ordered maps from uint64 keys to values of one type.

4. Codecs, encoding values into a bounded number of bytes.

# Technical Details

**Buckets.**
Each region is a root bucket named region.NNN with two nested buckets:
pages (the byte-addressable view) and entries (the ordered key view).
Regions never share buckets, so writes to one region cannot alter another.

**Manager header.**
The memmgr bucket holds a header written on first open and verified on every
later open: magic "SMM", layout version, page size, number of regions, and an
xxhash64 of the preceding bytes.

**Pages.**
The byte view is a sequence of PageSize pages keyed by big-endian page number.
The region's size in pages is stored under the "size" key of its root bucket.
Pages that were allocated but never written read as zeros.

**Cell layout** (at byte offset 0 of a region):
1. Magic "SCL".
2. Version (1 byte).
3. Value length (u32, big-endian).
4. xxhash64 of the value (u64, big-endian).
5. Value bytes.

**Table keys** are big-endian uint64, so Bolt's byte ordering is numeric ordering.

**Table values**: value header, then msgpack data.

**Value header**:
1. Flags (uvarint).
2. Schema version (uvarint).
3. Data size (uvarint).

# Concurrency

Every region operation runs in its own storage transaction and commits before
returning. Bolt allows one writer at a time; callers that need several
operations to appear atomic (mint an id, then insert under it) must serialize
them themselves.
*/
package stablestore
