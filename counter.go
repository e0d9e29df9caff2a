package stablestore

import (
	"fmt"
	"math"
)

// Counter mints strictly increasing identifiers, starting from 1. Zero is the
// initial state and is never returned.
type Counter struct {
	cell *Cell[uint64]
}

func NewCounter(r *Region) (*Counter, error) {
	cell, err := NewCell[uint64](r, Uint64Codec{}, 0)
	if err != nil {
		return nil, fmt.Errorf("counter: %w", err)
	}
	return &Counter{cell: cell}, nil
}

// Mint advances the counter and returns the new value. A failed write leaves
// the counter unchanged; there is no retry.
func (c *Counter) Mint() (uint64, error) {
	v, err := c.cell.Update(func(v uint64) (uint64, error) {
		if v == math.MaxUint64 {
			return 0, ErrCounterOverflow
		}
		return v + 1, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	return v, nil
}

// Current returns the most recently minted value (0 if none).
func (c *Counter) Current() uint64 {
	return c.cell.Get()
}
