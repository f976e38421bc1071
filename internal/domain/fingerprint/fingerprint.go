// Package fingerprint holds the fingerprint engine: immutable settings, the
// closed set of algorithms, the factory that turns molecules into fingerprints
// and the text encoding shared by the index and its queries.
package fingerprint

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Fingerprint is a fixed-length set of bit positions. Positions are 0-indexed
// and always smaller than NumBits. A nil *Fingerprint means "no fingerprint",
// which is distinct from an empty one.
type Fingerprint struct {
	numBits int
	bits    *bitset.BitSet
}

// New returns an empty fingerprint of length numBits.
func New(numBits int) *Fingerprint {
	if numBits < 0 {
		numBits = 0
	}
	return &Fingerprint{numBits: numBits, bits: bitset.New(uint(numBits))}
}

// FromPositions builds a fingerprint with the given positions set.
func FromPositions(numBits int, positions []int) (*Fingerprint, error) {
	if numBits <= 0 {
		return nil, fmt.Errorf("fingerprint: numBits must be positive, got %d", numBits)
	}
	fp := New(numBits)
	for _, p := range positions {
		if p < 0 || p >= numBits {
			return nil, fmt.Errorf("fingerprint: position %d out of range [0,%d)", p, numBits)
		}
		fp.bits.Set(uint(p))
	}
	return fp, nil
}

// MustFromPositions is FromPositions that panics on error. Tests only.
func MustFromPositions(numBits int, positions ...int) *Fingerprint {
	fp, err := FromPositions(numBits, positions)
	if err != nil {
		panic(err)
	}
	return fp
}

// FromBitVector converts a native bit vector. A nil vector yields nil.
func FromBitVector(v BitVector) *Fingerprint {
	if v == nil {
		return nil
	}
	n := v.NumBits()
	fp := New(n)
	if pl, ok := v.(positionLister); ok {
		for _, p := range pl.Positions() {
			if p >= 0 && p < n {
				fp.bits.Set(uint(p))
			}
		}
		return fp
	}
	for i := 0; i < n; i++ {
		if v.Test(i) {
			fp.bits.Set(uint(i))
		}
	}
	return fp
}

// NumBits returns the fingerprint length.
func (f *Fingerprint) NumBits() int { return f.numBits }

// Cardinality returns the number of set bits.
func (f *Fingerprint) Cardinality() int { return int(f.bits.Count()) }

// IsEmpty reports whether no bit is set.
func (f *Fingerprint) IsEmpty() bool { return f.bits.None() }

// Test reports whether position i is set.
func (f *Fingerprint) Test(i int) bool {
	if i < 0 || i >= f.numBits {
		return false
	}
	return f.bits.Test(uint(i))
}

// Positions returns the set positions in ascending order.
func (f *Fingerprint) Positions() []int {
	out := make([]int, 0, f.bits.Count())
	for i, ok := f.bits.NextSet(0); ok; i, ok = f.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Contains reports whether every bit of other is also set in f. This is the
// necessary condition for other's molecule being a substructure of f's.
func (f *Fingerprint) Contains(other *Fingerprint) bool {
	if other == nil {
		return true
	}
	return f.bits.IsSuperSet(other.bits)
}

// Tanimoto returns |f ∩ o| / |f ∪ o|. Two empty fingerprints score 0.
func (f *Fingerprint) Tanimoto(o *Fingerprint) float64 {
	if o == nil {
		return 0
	}
	union := f.bits.UnionCardinality(o.bits)
	if union == 0 {
		return 0
	}
	return float64(f.bits.IntersectionCardinality(o.bits)) / float64(union)
}

// Equal reports whether f and o have the same length and bits.
func (f *Fingerprint) Equal(o *Fingerprint) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.numBits == o.numBits && f.bits.Equal(o.bits)
}

// Clone returns a deep copy.
func (f *Fingerprint) Clone() *Fingerprint {
	return &Fingerprint{numBits: f.numBits, bits: f.bits.Clone()}
}

// MarshalBinary encodes the length followed by the bitset words.
func (f *Fingerprint) MarshalBinary() ([]byte, error) {
	payload, err := f.bits.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(f.numBits))
	return append(out, payload...), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (f *Fingerprint) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("fingerprint: truncated binary form (%d bytes)", len(data))
	}
	bits := &bitset.BitSet{}
	if err := bits.UnmarshalBinary(data[4:]); err != nil {
		return fmt.Errorf("fingerprint: decode bitset: %w", err)
	}
	f.numBits = int(binary.BigEndian.Uint32(data[:4]))
	f.bits = bits
	return nil
}

func (f *Fingerprint) String() string {
	if f == nil {
		return "Fingerprint(absent)"
	}
	return fmt.Sprintf("Fingerprint(%d/%d)", f.Cardinality(), f.numBits)
}
