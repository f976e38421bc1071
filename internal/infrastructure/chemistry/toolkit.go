// Package chemistry is the in-process reference toolkit behind the
// fingerprint engine. It reads a practical subset of SMILES into a molecular
// graph and computes hashed path, environment and torsion fingerprints.
//
// It is not a cheminformatics library: there is no aromaticity perception,
// stereochemistry or kekulization, and Canonical returns a graph hash rather
// than canonical SMILES. Two notations of the same graph do produce the same
// canonical form and the same fingerprints.
package chemistry

import (
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// DefaultMaxAtoms bounds the size of molecules the toolkit accepts.
const DefaultMaxAtoms = 256

// Toolkit implements fingerprint.Toolkit.
type Toolkit struct {
	logger   logging.Logger
	maxAtoms int
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithMaxAtoms rejects molecules with more than n heavy atoms.
func WithMaxAtoms(n int) Option {
	return func(t *Toolkit) {
		if n > 0 {
			t.maxAtoms = n
		}
	}
}

// NewToolkit returns a Toolkit. A nil logger discards output.
func NewToolkit(logger logging.Logger, opts ...Option) *Toolkit {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	t := &Toolkit{logger: logger.Named("chemistry"), maxAtoms: DefaultMaxAtoms}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ fingerprint.Toolkit = (*Toolkit)(nil)

// Parse reads a SMILES string.
func (t *Toolkit) Parse(text string, sanitize bool) (fingerprint.Molecule, error) {
	g, err := ParseSMILES(text)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeParseFailed, "invalid SMILES")
	}
	if len(g.Atoms) > t.maxAtoms {
		return nil, errors.New(errors.CodeMoleculeParseFailed, "molecule too large").
			WithDetailf("atoms=%d max=%d", len(g.Atoms), t.maxAtoms)
	}
	m, err := newMolecule(g, sanitize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeParseFailed, "sanitization failed")
	}
	t.logger.Debug("parsed molecule",
		logging.String("input", text),
		logging.String("canonical", m.Canonical()),
		logging.Int("atoms", m.AtomCount()))
	return m, nil
}

// PatternFingerprint computes the substructure-screening fingerprint.
// Molecules containing wildcard atoms have no fingerprint.
func (t *Toolkit) PatternFingerprint(mol fingerprint.Molecule, p fingerprint.PatternParams) (fingerprint.BitVector, error) {
	m, err := t.molecule(mol)
	if err != nil {
		return nil, err
	}
	if m.hasWildcard() {
		return nil, nil
	}
	minPath := orDefault(p.MinPath, DefaultPatternMinPath)
	maxPath := orDefault(p.MaxPath, DefaultPatternMaxPath)
	if maxPath < minPath {
		maxPath = minPath
	}
	return m.PatternFingerprint(p.NumBits, minPath, maxPath, orDefault(p.LayerFlags, LayerAll)), nil
}

// MorganFingerprint computes the circular environment fingerprint.
func (t *Toolkit) MorganFingerprint(mol fingerprint.Molecule, radius, numBits int) (fingerprint.BitVector, error) {
	m, err := t.molecule(mol)
	if err != nil {
		return nil, err
	}
	if m.hasWildcard() {
		return nil, nil
	}
	return m.MorganFingerprint(numBits, radius), nil
}

// TorsionFingerprint computes the topological torsion fingerprint.
func (t *Toolkit) TorsionFingerprint(mol fingerprint.Molecule, pathLength, numBits int) (fingerprint.BitVector, error) {
	m, err := t.molecule(mol)
	if err != nil {
		return nil, err
	}
	if m.hasWildcard() {
		return nil, nil
	}
	return m.TorsionFingerprint(numBits, pathLength), nil
}

// TopologicalFingerprint computes the hashed path fingerprint.
func (t *Toolkit) TopologicalFingerprint(mol fingerprint.Molecule, minPath, maxPath, numBits int) (fingerprint.BitVector, error) {
	m, err := t.molecule(mol)
	if err != nil {
		return nil, err
	}
	if m.hasWildcard() {
		return nil, nil
	}
	return m.TopologicalFingerprint(numBits, minPath, maxPath), nil
}

func (t *Toolkit) molecule(mol fingerprint.Molecule) (*Molecule, error) {
	m, ok := mol.(*Molecule)
	if !ok || m == nil {
		return nil, errors.InvalidParam("molecule was not produced by the chemistry toolkit")
	}
	return m, nil
}

func (m *Molecule) hasWildcard() bool {
	for _, a := range m.graph.Atoms {
		if a.Symbol == "*" {
			return true
		}
	}
	return false
}

func orDefault(v, def int) int {
	if fingerprint.IsAvailable(v) {
		return v
	}
	return def
}
