package stablestore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegionFull is returned when a region cannot grow past Options.MaxRegionPages.
	ErrRegionFull = errors.New("region full")

	// ErrOutOfBounds is returned for byte access past the end of a region.
	ErrOutOfBounds = errors.New("access out of region bounds")

	// ErrBadLayout is returned when persisted headers do not match this build.
	ErrBadLayout = errors.New("unrecognized layout")

	ErrMintFailed      = errors.New("failed to generate unique ID")
	ErrCounterOverflow = errors.New("counter overflow")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// RegionError adds region (and optionally table and key) context to a storage failure.
type RegionError struct {
	Region MemoryID
	Table  string
	Key    []byte
	Msg    string
	Err    error
}

func regionErrf(id MemoryID, table string, key []byte, err error, format string, args ...any) error {
	return &RegionError{id, table, key, fmt.Sprintf(format, args...), err}
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

func (e *RegionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Region.String())
	if e.Table != "" {
		buf.WriteByte('(')
		buf.WriteString(e.Table)
		buf.WriteByte(')')
	}
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(hexstr(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
