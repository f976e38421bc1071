package fingerprint

import (
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Kind selects which of the factory's two settings a fingerprint uses.
type Kind int

const (
	// KindStructure fingerprints are written to the index.
	KindStructure Kind = iota
	// KindQuery fingerprints are matched against the index.
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindStructure:
		return "structure"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// ParseKind maps "structure" and "query" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "structure", "":
		return KindStructure, nil
	case "query":
		return KindQuery, nil
	default:
		return 0, errors.InvalidParam("unknown fingerprint kind").WithDetailf("kind=%q", s)
	}
}

// ErrAbsentFingerprint is returned when the toolkit produced no bit vector
// for a molecule. It is never replaced by an empty fingerprint.
var ErrAbsentFingerprint = errors.New(errors.CodeAbsentFingerprint, "toolkit returned no fingerprint")

// Factory turns molecules into structure and query fingerprints.
// It is safe for concurrent use.
type Factory struct {
	toolkit      Toolkit
	structure    Settings
	query        Settings
	structureAlg Algorithm
	queryAlg     Algorithm
}

// NewFactory validates both settings against reg and binds them to tk. The
// query settings may differ in path or radius parameters but must share the
// structure settings' bit space.
func NewFactory(tk Toolkit, reg *Registry, structure, query Settings) (*Factory, error) {
	if tk == nil {
		return nil, errors.InvalidParam("fingerprint toolkit is required")
	}
	if reg == nil {
		reg = DefaultRegistry()
	}
	sa, err := bind(reg, structure)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "invalid structure settings")
	}
	qa, err := bind(reg, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "invalid query settings")
	}
	if !structure.SharesBitSpace(query) {
		return nil, errors.New(errors.CodeIncompatibleSettings, "query settings must use the structure algorithm and length").
			WithDetailf("structure=%s query=%s", structure.Key(), query.Key())
	}
	return &Factory{toolkit: tk, structure: structure, query: query, structureAlg: sa, queryAlg: qa}, nil
}

func bind(reg *Registry, s Settings) (Algorithm, error) {
	if err := reg.Validate(&s); err != nil {
		return nil, err
	}
	a, _ := reg.Get(s.Algorithm())
	return a, nil
}

// StructureSettings returns the settings used for indexing.
func (f *Factory) StructureSettings() Settings { return f.structure }

// QuerySettings returns the settings used for searching.
func (f *Factory) QuerySettings() Settings { return f.query }

// Settings returns the settings used for kind.
func (f *Factory) Settings(kind Kind) Settings {
	if kind == KindQuery {
		return f.query
	}
	return f.structure
}

// Toolkit returns the toolkit the factory computes with.
func (f *Factory) Toolkit() Toolkit { return f.toolkit }

// CreateStructureFingerprint parses text and computes its index fingerprint.
func (f *Factory) CreateStructureFingerprint(text string, sanitize bool) (*Fingerprint, error) {
	return f.Create(KindStructure, text, sanitize)
}

// CreateQueryFingerprint parses text and computes its search fingerprint.
func (f *Factory) CreateQueryFingerprint(text string, sanitize bool) (*Fingerprint, error) {
	return f.Create(KindQuery, text, sanitize)
}

// StructureFingerprintOf computes the index fingerprint of a parsed molecule.
func (f *Factory) StructureFingerprintOf(mol Molecule) (*Fingerprint, error) {
	return f.Of(KindStructure, mol)
}

// QueryFingerprintOf computes the search fingerprint of a parsed molecule.
func (f *Factory) QueryFingerprintOf(mol Molecule) (*Fingerprint, error) {
	return f.Of(KindQuery, mol)
}

// Create parses text with the toolkit and computes a fingerprint of kind.
// Parse errors are returned unmodified.
func (f *Factory) Create(kind Kind, text string, sanitize bool) (*Fingerprint, error) {
	mol, err := f.toolkit.Parse(text, sanitize)
	if err != nil {
		return nil, err
	}
	return f.Of(kind, mol)
}

// Of computes a fingerprint of kind for an already parsed molecule.
func (f *Factory) Of(kind Kind, mol Molecule) (*Fingerprint, error) {
	if mol == nil {
		return nil, errors.InvalidParam("molecule is required")
	}
	alg, s := f.structureAlg, f.structure
	if kind == KindQuery {
		alg, s = f.queryAlg, f.query
	}
	v, err := alg.Calculate(f.toolkit, mol, s)
	if err != nil {
		return nil, err
	}
	fp := FromBitVector(v)
	if fp == nil {
		return nil, ErrAbsentFingerprint
	}
	return fp, nil
}
