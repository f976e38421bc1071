package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPositions(t *testing.T) {
	fp, err := FromPositions(32, []int{19, 3, 7, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 19}, fp.Positions())
	assert.Equal(t, 3, fp.Cardinality())
	assert.Equal(t, 32, fp.NumBits())
	assert.True(t, fp.Test(7))
	assert.False(t, fp.Test(8))
	assert.False(t, fp.Test(-1))
	assert.False(t, fp.Test(32))
}

func TestFromPositions_Errors(t *testing.T) {
	tests := []struct {
		name      string
		numBits   int
		positions []int
	}{
		{"zero length", 0, nil},
		{"position equals length", 8, []int{8}},
		{"negative position", 8, []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromPositions(tt.numBits, tt.positions)
			assert.Error(t, err)
		})
	}
}

func TestFromBitVector(t *testing.T) {
	assert.Nil(t, FromBitVector(nil), "nil vector is an absent fingerprint")

	v := &fakeVector{n: 16, bits: map[int]bool{1: true, 15: true}}
	fp := FromBitVector(v)
	require.NotNil(t, fp)
	assert.Equal(t, []int{1, 15}, fp.Positions())

	empty := FromBitVector(&fakeVector{n: 16, bits: map[int]bool{}})
	require.NotNil(t, empty, "an all-zero vector is an empty, not absent, fingerprint")
	assert.True(t, empty.IsEmpty())
}

type listingVector struct {
	fakeVector
	positions []int
}

func (v *listingVector) Positions() []int { return v.positions }

func TestFromBitVector_UsesPositionLister(t *testing.T) {
	v := &listingVector{fakeVector: fakeVector{n: 8}, positions: []int{2, 5, 99}}
	fp := FromBitVector(v)
	assert.Equal(t, []int{2, 5}, fp.Positions(), "out of range positions are dropped")
}

func TestFingerprint_ContainsAndTanimoto(t *testing.T) {
	big := MustFromPositions(64, 1, 3, 7, 19, 40)
	small := MustFromPositions(64, 3, 7, 19)
	other := MustFromPositions(64, 3, 8)

	assert.True(t, big.Contains(small))
	assert.False(t, small.Contains(big))
	assert.False(t, big.Contains(other))
	assert.True(t, big.Contains(nil))
	assert.True(t, big.Contains(New(64)))

	assert.InDelta(t, 3.0/5.0, big.Tanimoto(small), 1e-9)
	assert.InDelta(t, 1.0, big.Tanimoto(big), 1e-9)
	assert.Zero(t, New(64).Tanimoto(New(64)))
	assert.Zero(t, big.Tanimoto(nil))
}

func TestFingerprint_Equal(t *testing.T) {
	a := MustFromPositions(64, 1, 2)
	assert.True(t, a.Equal(a.Clone()))
	assert.False(t, a.Equal(MustFromPositions(128, 1, 2)))
	assert.False(t, a.Equal(MustFromPositions(64, 1)))
	assert.False(t, a.Equal(nil))

	var absent *Fingerprint
	assert.True(t, absent.Equal(nil))
}

func TestFingerprint_CloneIsIndependent(t *testing.T) {
	a := MustFromPositions(16, 1)
	b := a.Clone()
	b.bits.Set(2)
	assert.Equal(t, []int{1}, a.Positions())
}

func TestFingerprint_Binary(t *testing.T) {
	a := MustFromPositions(1024, 0, 63, 64, 1023)
	data, err := a.MarshalBinary()
	require.NoError(t, err)

	var b Fingerprint
	require.NoError(t, b.UnmarshalBinary(data))
	assert.True(t, a.Equal(&b))

	assert.Error(t, b.UnmarshalBinary([]byte{1, 2}))
}

func TestFingerprint_String(t *testing.T) {
	var absent *Fingerprint
	assert.Equal(t, "Fingerprint(absent)", absent.String())
	assert.Equal(t, "Fingerprint(2/64)", MustFromPositions(64, 1, 2).String())
}

func BenchmarkFingerprint_Positions(b *testing.B) {
	positions := make([]int, 0, 300)
	for i := 0; i < 2048; i += 7 {
		positions = append(positions, i)
	}
	fp := MustFromPositions(2048, positions...)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fp.Positions()
	}
}
