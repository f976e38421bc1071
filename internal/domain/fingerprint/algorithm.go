package fingerprint

import (
	"sync"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Algorithm is one member of the closed set of fingerprint algorithms. Each
// variant owns its parameter projection, validation and toolkit dispatch.
//
// Calculate holds the variant's lock, when one is configured, for the duration
// of the toolkit call. Variants backed by routines that are not safe for
// concurrent use get a lock from the Registry; the rest run unserialized.
type Algorithm interface {
	ID() AlgorithmID
	DisplayName() string

	// Specification projects raw parameters onto the fields this algorithm
	// uses, injecting defaults for missing ones. Unused fields are Unset.
	Specification(raw RawParameters) Settings

	// Validate rejects absent settings and out-of-range parameters.
	Validate(s *Settings) error

	// Calculate validates s and computes the native bit vector for mol.
	Calculate(tk Toolkit, mol Molecule, s Settings) (BitVector, error)

	// sealed closes the set of implementations to this package.
	sealed()
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared behavior
// ─────────────────────────────────────────────────────────────────────────────

type base struct {
	id   AlgorithmID
	name string
	lock sync.Locker
}

func (b *base) ID() AlgorithmID     { return b.id }
func (b *base) DisplayName() string { return b.name }
func (b *base) sealed()             {}

// validateCommon applies the rules every algorithm shares.
func (b *base) validateCommon(s *Settings) error {
	if s == nil {
		return errors.InvalidSettings("fingerprint settings are absent")
	}
	if s.algorithm != b.id {
		return errors.InvalidSettings("settings belong to another algorithm").
			WithDetailf("expected=%s got=%s", b.id, s.algorithm)
	}
	if s.numBits <= 0 {
		return errors.InvalidSettings("numBits must be positive").
			WithDetailf("algorithm=%s numBits=%d", b.id, s.numBits)
	}
	return nil
}

func (b *base) forbid(field string, v int) error {
	if IsAvailable(v) {
		return errors.InvalidSettings(field+" is not used by this algorithm").
			WithDetailf("algorithm=%s %s=%d", b.id, field, v)
	}
	return nil
}

func (b *base) validatePathBounds(minPath, maxPath int) error {
	if IsAvailable(minPath) && minPath <= 0 {
		return errors.InvalidSettings("minPath must be positive").WithDetailf("algorithm=%s minPath=%d", b.id, minPath)
	}
	if IsAvailable(maxPath) && maxPath <= 0 {
		return errors.InvalidSettings("maxPath must be positive").WithDetailf("algorithm=%s maxPath=%d", b.id, maxPath)
	}
	if IsAvailable(minPath) && IsAvailable(maxPath) && minPath > maxPath {
		return errors.InvalidSettings("minPath must not exceed maxPath").
			WithDetailf("algorithm=%s minPath=%d maxPath=%d", b.id, minPath, maxPath)
	}
	return nil
}

// run executes fn under the variant's lock, if any.
func (b *base) run(fn func() (BitVector, error)) (BitVector, error) {
	if b.lock != nil {
		b.lock.Lock()
		defer b.lock.Unlock()
	}
	return fn()
}

// ─────────────────────────────────────────────────────────────────────────────
// Pattern
// ─────────────────────────────────────────────────────────────────────────────

// patternAlgorithm is the substructure-screening fingerprint. It is the only
// variant whose bits are guaranteed monotone under substructure containment.
type patternAlgorithm struct{ base }

func (a *patternAlgorithm) Specification(raw RawParameters) Settings {
	s := unsetSettings(a.id)
	s.numBits = pick(raw.NumBits, DefaultNumBits)
	s.minPath = raw.MinPath
	s.maxPath = raw.MaxPath
	s.layerFlags = raw.LayerFlags
	return s
}

func (a *patternAlgorithm) Validate(s *Settings) error {
	if err := a.validateCommon(s); err != nil {
		return err
	}
	if err := a.forbid("radius", s.radius); err != nil {
		return err
	}
	if err := a.forbid("torsionPathLength", s.torsionPathLength); err != nil {
		return err
	}
	if IsAvailable(s.layerFlags) && s.layerFlags < 0 {
		return errors.InvalidSettings("layerFlags must not be negative").WithDetailf("layerFlags=%d", s.layerFlags)
	}
	return a.validatePathBounds(s.minPath, s.maxPath)
}

func (a *patternAlgorithm) Calculate(tk Toolkit, mol Molecule, s Settings) (BitVector, error) {
	if err := a.Validate(&s); err != nil {
		return nil, err
	}
	p := PatternParams{NumBits: s.numBits, MinPath: s.minPath, MaxPath: s.maxPath, LayerFlags: s.layerFlags}
	return a.run(func() (BitVector, error) { return tk.PatternFingerprint(mol, p) })
}

// ─────────────────────────────────────────────────────────────────────────────
// Morgan
// ─────────────────────────────────────────────────────────────────────────────

type morganAlgorithm struct{ base }

func (a *morganAlgorithm) Specification(raw RawParameters) Settings {
	s := unsetSettings(a.id)
	s.numBits = pick(raw.NumBits, DefaultNumBits)
	s.radius = pick(raw.Radius, DefaultMorganRadius)
	return s
}

func (a *morganAlgorithm) Validate(s *Settings) error {
	if err := a.validateCommon(s); err != nil {
		return err
	}
	if s.radius <= 0 {
		return errors.InvalidSettings("radius must be positive").WithDetailf("algorithm=%s radius=%d", a.id, s.radius)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"torsionPathLength", s.torsionPathLength},
		{"minPath", s.minPath},
		{"maxPath", s.maxPath},
		{"layerFlags", s.layerFlags},
	} {
		if err := a.forbid(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func (a *morganAlgorithm) Calculate(tk Toolkit, mol Molecule, s Settings) (BitVector, error) {
	if err := a.Validate(&s); err != nil {
		return nil, err
	}
	return a.run(func() (BitVector, error) { return tk.MorganFingerprint(mol, s.radius, s.numBits) })
}

// ─────────────────────────────────────────────────────────────────────────────
// Torsion
// ─────────────────────────────────────────────────────────────────────────────

type torsionAlgorithm struct{ base }

func (a *torsionAlgorithm) Specification(raw RawParameters) Settings {
	s := unsetSettings(a.id)
	s.numBits = pick(raw.NumBits, DefaultNumBits)
	s.torsionPathLength = pick(raw.TorsionPathLength, DefaultTorsionPathLength)
	return s
}

func (a *torsionAlgorithm) Validate(s *Settings) error {
	if err := a.validateCommon(s); err != nil {
		return err
	}
	if IsAvailable(s.torsionPathLength) && s.torsionPathLength <= 0 {
		return errors.InvalidSettings("torsionPathLength must be positive").
			WithDetailf("algorithm=%s torsionPathLength=%d", a.id, s.torsionPathLength)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"radius", s.radius},
		{"minPath", s.minPath},
		{"maxPath", s.maxPath},
		{"layerFlags", s.layerFlags},
	} {
		if err := a.forbid(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func (a *torsionAlgorithm) Calculate(tk Toolkit, mol Molecule, s Settings) (BitVector, error) {
	if err := a.Validate(&s); err != nil {
		return nil, err
	}
	pathLength := pick(s.torsionPathLength, DefaultTorsionPathLength)
	return a.run(func() (BitVector, error) { return tk.TorsionFingerprint(mol, pathLength, s.numBits) })
}

// ─────────────────────────────────────────────────────────────────────────────
// Topological
// ─────────────────────────────────────────────────────────────────────────────

type topologicalAlgorithm struct{ base }

func (a *topologicalAlgorithm) Specification(raw RawParameters) Settings {
	s := unsetSettings(a.id)
	s.numBits = pick(raw.NumBits, DefaultNumBits)
	s.minPath = pick(raw.MinPath, DefaultMinPath)
	s.maxPath = pick(raw.MaxPath, DefaultMaxPath)
	return s
}

func (a *topologicalAlgorithm) Validate(s *Settings) error {
	if err := a.validateCommon(s); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"radius", s.radius},
		{"torsionPathLength", s.torsionPathLength},
		{"layerFlags", s.layerFlags},
	} {
		if err := a.forbid(f.name, f.v); err != nil {
			return err
		}
	}
	return a.validatePathBounds(s.minPath, s.maxPath)
}

func (a *topologicalAlgorithm) Calculate(tk Toolkit, mol Molecule, s Settings) (BitVector, error) {
	if err := a.Validate(&s); err != nil {
		return nil, err
	}
	minPath := pick(s.minPath, DefaultMinPath)
	maxPath := pick(s.maxPath, DefaultMaxPath)
	if maxPath < minPath {
		maxPath = minPath
	}
	return a.run(func() (BitVector, error) { return tk.TopologicalFingerprint(mol, minPath, maxPath, s.numBits) })
}
