package fingerprint

// Molecule is a parsed, canonicalized molecule handle owned by a Toolkit.
type Molecule interface {
	// Canonical returns the toolkit's canonical text form of the molecule.
	Canonical() string

	// AtomCount returns the number of heavy atoms.
	AtomCount() int
}

// BitVector is the toolkit's native fixed-length bit vector.
type BitVector interface {
	// NumBits returns the vector length.
	NumBits() int

	// Test reports whether bit i is set.
	Test(i int) bool
}

// positionLister is implemented by bit vectors that can enumerate their set
// bits without a full scan.
type positionLister interface {
	Positions() []int
}

// PatternParams are the arguments of a pattern fingerprint computation.
// MinPath, MaxPath and LayerFlags may be Unset, in which case the toolkit
// applies its own defaults.
type PatternParams struct {
	NumBits    int
	MinPath    int
	MaxPath    int
	LayerFlags int
}

// Toolkit is the chemistry library that parses molecules and computes the raw
// fingerprints. Implementations return a nil BitVector with a nil error when a
// molecule yields no fingerprint.
type Toolkit interface {
	// Parse reads a molecule from its text notation. When sanitize is set the
	// toolkit normalizes aromaticity and valences before returning.
	Parse(text string, sanitize bool) (Molecule, error)

	PatternFingerprint(mol Molecule, p PatternParams) (BitVector, error)
	MorganFingerprint(mol Molecule, radius, numBits int) (BitVector, error)
	TorsionFingerprint(mol Molecule, pathLength, numBits int) (BitVector, error)
	TopologicalFingerprint(mol Molecule, minPath, maxPath, numBits int) (BitVector, error)
}
