// Package ring implements arithmetic over the cyclic identifier space
// [0, 2^M) shared by peers and keys.
package ring

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// MaxBits is the largest supported identifier width.
const MaxBits = 63

// ID is a position on the ring.
type ID uint64

// String returns the decimal representation of id.
func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Space is an identifier space of 2^Bits positions. The zero value is not
// usable; create one with NewSpace.
type Space struct {
	bits uint
	mask uint64
}

// NewSpace returns a Space of 2^bits identifiers. bits must be in
// [1, MaxBits].
func NewSpace(bits uint) (Space, error) {
	if bits == 0 || bits > MaxBits {
		return Space{}, fmt.Errorf("ring bits must be between 1 and %d, got %d", MaxBits, bits)
	}
	return Space{bits: bits, mask: (uint64(1) << bits) - 1}, nil
}

// MustSpace is like NewSpace but panics on invalid input. Intended for tests
// and package-level defaults.
func MustSpace(bits uint) Space {
	s, err := NewSpace(bits)
	if err != nil {
		panic(err)
	}
	return s
}

// Bits returns M, the width of identifiers in s.
func (s Space) Bits() uint { return s.bits }

// Size returns the number of identifiers in s (2^M).
func (s Space) Size() uint64 { return s.mask + 1 }

// Valid reports whether s was created through NewSpace.
func (s Space) Valid() bool { return s.bits > 0 }

// Contains reports whether id lies inside s.
func (s Space) Contains(id ID) bool { return uint64(id) <= s.mask }

// Wrap reduces v modulo 2^M.
func (s Space) Wrap(v uint64) ID { return ID(v & s.mask) }

// Add returns (id + d) mod 2^M.
func (s Space) Add(id ID, d uint64) ID { return s.Wrap(uint64(id) + d) }

// Distance returns how far to travels clockwise from from.
func (s Space) Distance(from, to ID) uint64 { return (uint64(to) - uint64(from)) & s.mask }

// FingerStart returns the start of finger i (1-indexed) for id:
// (id + 2^(i-1)) mod 2^M. Fingers past M wrap back onto id itself.
func (s Space) FingerStart(id ID, i int) ID {
	if i < 1 {
		panic("finger index must be at least 1")
	}
	shift := uint(i - 1)
	if shift >= s.bits {
		return id
	}
	return s.Add(id, uint64(1)<<shift)
}

// Hash deterministically maps str onto the ring. The same input always
// yields the same ID within a Space, so it is safe for content keys.
func (s Space) Hash(str string) ID {
	return s.Wrap(xxhash.Sum64String(str))
}

// Between reports whether id lies strictly inside the clockwise interval
// (from, to). When from == to the interval covers the whole ring except
// from itself.
func Between(id, from, to ID) bool {
	switch {
	case from < to:
		return from < id && id < to
	case from > to:
		return id > from || id < to
	default:
		return id != from
	}
}

// InRange reports whether id lies inside the clockwise half-open interval
// (from, to]. When from == to the interval covers the whole ring, which is
// the ownership range of a peer that is alone on the ring.
func InRange(id, from, to ID) bool {
	switch {
	case from < to:
		return from < id && id <= to
	case from > to:
		return id > from || id <= to
	default:
		return true
	}
}
