package stablestore

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops at 1") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2) aabb") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestRegionError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("inner")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"full", regionErrf(2, "debts", []byte{0, 1}, inner, "insert"), "region.002(debts)/0001: insert: inner"},
		{"no table", regionErrf(0, "", nil, inner, "loading cell"), "region.000: loading cell: inner"},
		{"no msg", regionErrf(14, "", nil, inner, ""), "region.014: inner"},
		{"empty key", regionErrf(1, "t", []byte{}, nil, "x"), "region.001(t)/<empty>: x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, wanted %q", got, tt.want)
			}
		})
	}

	err := regionErrf(3, "t", nil, ErrRegionFull, "grow")
	if !errors.Is(err, ErrRegionFull) {
		t.Fatalf("errors.Is(err, ErrRegionFull) = false")
	}
}
