package stablestore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes one value type into a bounded byte representation.
// Decode must be the exact left inverse of Encode, and Encode must never
// produce more than MaxSize bytes.
type Codec[T any] interface {
	MaxSize() int
	Encode(buf []byte, v *T) []byte
	Decode(data []byte, v *T) error
}

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfSupportedMask = vfVer1
	vfDefault       = vfVer1
)

// MsgpackCodec stores values as a small header followed by msgpack data.
//
// Header: flags (uvarint), schema version (uvarint), data size (uvarint).
type MsgpackCodec[T any] struct {
	Max       int
	SchemaVer uint64
}

func (c MsgpackCodec[T]) MaxSize() int {
	return c.Max
}

// Encode appends the encoding of v to buf. Exceeding MaxSize means the type and
// its declared bound have drifted apart, so it panics instead of truncating.
func (c MsgpackCodec[T]) Encode(buf []byte, v *T) []byte {
	bb := bytesBuilder{}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}

	start := len(buf)
	buf = appendUvarint(buf, uint64(vfDefault))
	buf = appendUvarint(buf, c.SchemaVer)
	buf = appendUvarint(buf, uint64(len(bb.Buf)))
	buf = appendRaw(buf, bb.Buf)
	if n := len(buf) - start; n > c.Max {
		panic(fmt.Errorf("%T encodes to %d bytes, exceeding declared max size %d", v, n, c.Max))
	}
	return buf
}

func (c MsgpackCodec[T]) Decode(data []byte, v *T) error {
	d := makeByteDecoder(data)
	flags, err := d.Uvarint()
	if err != nil {
		return err
	}
	if (flags&^uint64(vfSupportedMask)) != 0 || valueFlags(flags)&vfVerMask != vfVer1 {
		return dataErrf(data, 0, nil, "invalid value: unsupported flags %x", flags)
	}
	ver, err := d.Uvarint()
	if err != nil {
		return err
	}
	if ver != c.SchemaVer {
		return dataErrf(data, d.Off(), nil, "invalid value: schema version %d, wanted %d", ver, c.SchemaVer)
	}
	size, err := d.Uvarinti()
	if err != nil {
		return err
	}
	if size != len(d.Buf) {
		return dataErrf(data, d.Off(), nil, "invalid value: got %d bytes of data, expected %d bytes", len(d.Buf), size)
	}

	var r bytes.Reader
	r.Reset(d.Buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err = dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(data, d.Off(), err, "failed to decode msgpack into %T", v)
	}
	return nil
}

// Uint64Codec is a fixed 8-byte big-endian encoding.
type Uint64Codec struct{}

func (Uint64Codec) MaxSize() int {
	return 8
}

func (Uint64Codec) Encode(buf []byte, v *uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, *v)
}

func (Uint64Codec) Decode(data []byte, v *uint64) error {
	if len(data) != 8 {
		return dataErrf(data, 0, nil, "invalid uint64: %d bytes", len(data))
	}
	*v = binary.BigEndian.Uint64(data)
	return nil
}
