package stablestore

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestMsgpackCodec_RoundTrip(t *testing.T) {
	tests := []Widget{
		{},
		{Name: "foo", Email: "foo@example.com", Count: 1},
		{Name: "", Email: "", Count: math.MaxUint64},
		{Name: strings.Repeat("x", 100), Email: "ü∂ƒ", Count: 1 << 40},
	}
	for _, w := range tests {
		raw := widgetCodec.Encode(nil, &w)
		if len(raw) > widgetCodec.MaxSize() {
			t.Errorf("Encode(%v) = %d bytes, exceeds %d", w, len(raw), widgetCodec.MaxSize())
		}
		var got Widget
		ensure(widgetCodec.Decode(raw, &got))
		deepEqual(t, got, w)
	}
}

func TestMsgpackCodec_Deterministic(t *testing.T) {
	w := Widget{Name: "foo", Email: "bar", Count: 3}
	a := widgetCodec.Encode(nil, &w)
	b := widgetCodec.Encode([]byte{0xAA}, &w)
	if string(a) != string(b[1:]) || b[0] != 0xAA {
		t.Fatalf("Encode not deterministic or clobbered prefix: %x vs %x", a, b)
	}
}

func TestMsgpackCodec_ExceedingMaxSizePanics(t *testing.T) {
	w := Widget{Name: strings.Repeat("x", widgetCodec.MaxSize())}
	expectPanic(t, func() {
		widgetCodec.Encode(nil, &w)
	})
}

func TestMsgpackCodec_DecodeErrors(t *testing.T) {
	w := Widget{Name: "foo"}
	raw := widgetCodec.Encode(nil, &w)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", raw[:len(raw)-1]},
		{"trailing", append(append([]byte(nil), raw...), 0)},
		{"bad flags", append([]byte{0x7F}, raw[1:]...)},
		{"future schema", MsgpackCodec[Widget]{Max: 256, SchemaVer: 2}.Encode(nil, &w)},
		{"not msgpack", []byte{byte(vfDefault), 1, 2, 0xC1, 0xC1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Widget
			err := widgetCodec.Decode(tt.data, &got)
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("Decode err = %v (%T), wanted *DataError", err, err)
			}
		})
	}
}

func TestUint64Codec(t *testing.T) {
	var c Uint64Codec
	for _, v := range []uint64{0, 1, 255, math.MaxUint64} {
		raw := c.Encode(nil, &v)
		if len(raw) != c.MaxSize() {
			t.Errorf("Encode(%d) = %d bytes, wanted %d", v, len(raw), c.MaxSize())
		}
		var got uint64
		ensure(c.Decode(raw, &got))
		if got != v {
			t.Errorf("Decode(Encode(%d)) = %d", v, got)
		}
	}
	var got uint64
	if err := c.Decode([]byte{1, 2, 3}, &got); err == nil {
		t.Errorf("Decode(3 bytes) err = nil, wanted error")
	}
}
