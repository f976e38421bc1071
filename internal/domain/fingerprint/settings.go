package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
)

// AlgorithmID is the stable identifier of a fingerprint algorithm. It is the
// value persisted in configuration files and index manifests.
type AlgorithmID string

const (
	AlgorithmPattern     AlgorithmID = "pattern"
	AlgorithmMorgan      AlgorithmID = "morgan"
	AlgorithmTorsion     AlgorithmID = "torsion"
	AlgorithmTopological AlgorithmID = "topological"
)

// Unset marks a numeric settings field as not applicable. It is never a valid
// parameter value for any algorithm.
const Unset = -1

// Algorithm defaults injected by DefaultSettings and Specification.
const (
	DefaultNumBits           = 2048
	DefaultMorganRadius      = 2
	DefaultTorsionPathLength = 4
	DefaultMinPath           = 1
	DefaultMaxPath           = 7
)

// IsAvailable reports whether v carries a concrete value rather than Unset.
func IsAvailable(v int) bool {
	return v != Unset
}

// Settings describes one fingerprint configuration. It is an immutable value:
// the With* methods return modified copies and never touch the receiver, so a
// Settings may be shared freely between goroutines.
type Settings struct {
	algorithm         AlgorithmID
	numBits           int
	radius            int
	torsionPathLength int
	minPath           int
	maxPath           int
	layerFlags        int
}

// NewSettings builds Settings from explicit values. Pass Unset for fields the
// algorithm does not use.
func NewSettings(alg AlgorithmID, numBits, radius, torsionPathLength, minPath, maxPath, layerFlags int) Settings {
	return Settings{
		algorithm:         alg,
		numBits:           numBits,
		radius:            radius,
		torsionPathLength: torsionPathLength,
		minPath:           minPath,
		maxPath:           maxPath,
		layerFlags:        layerFlags,
	}
}

// unsetSettings returns settings for alg with every numeric field Unset.
func unsetSettings(alg AlgorithmID) Settings {
	return NewSettings(alg, Unset, Unset, Unset, Unset, Unset, Unset)
}

// DefaultSettings returns the default configuration for alg. Fields the
// algorithm does not use stay Unset. Unknown identifiers yield settings that
// carry only the identifier and will fail validation.
func DefaultSettings(alg AlgorithmID) Settings {
	s := unsetSettings(alg)
	switch alg {
	case AlgorithmPattern:
		s.numBits = DefaultNumBits
	case AlgorithmMorgan:
		s.numBits = DefaultNumBits
		s.radius = DefaultMorganRadius
	case AlgorithmTorsion:
		s.numBits = DefaultNumBits
		s.torsionPathLength = DefaultTorsionPathLength
	case AlgorithmTopological:
		s.numBits = DefaultNumBits
		s.minPath = DefaultMinPath
		s.maxPath = DefaultMaxPath
	}
	return s
}

// Clone returns a copy of s.
func (s Settings) Clone() Settings { return s }

func (s Settings) Algorithm() AlgorithmID { return s.algorithm }
func (s Settings) NumBits() int           { return s.numBits }
func (s Settings) Radius() int            { return s.radius }
func (s Settings) TorsionPathLength() int { return s.torsionPathLength }
func (s Settings) MinPath() int           { return s.minPath }
func (s Settings) MaxPath() int           { return s.maxPath }
func (s Settings) LayerFlags() int        { return s.layerFlags }

// ── Builders ──────────────────────────────────────────────────────────────────

func (s Settings) WithAlgorithm(alg AlgorithmID) Settings {
	s.algorithm = alg
	return s
}

func (s Settings) WithNumBits(n int) Settings {
	s.numBits = n
	return s
}

func (s Settings) WithRadius(r int) Settings {
	s.radius = r
	return s
}

func (s Settings) WithTorsionPathLength(n int) Settings {
	s.torsionPathLength = n
	return s
}

func (s Settings) WithMinPath(n int) Settings {
	s.minPath = n
	return s
}

func (s Settings) WithMaxPath(n int) Settings {
	s.maxPath = n
	return s
}

func (s Settings) WithLayerFlags(flags int) Settings {
	s.layerFlags = flags
	return s
}

// ── Comparison ────────────────────────────────────────────────────────────────

// Equal reports field-wise equality including the algorithm identity.
func (s Settings) Equal(other Settings) bool {
	return s == other
}

// Compatible reports whether an index built with s can answer queries built
// with other. Only identical settings are compatible.
func (s Settings) Compatible(other Settings) bool {
	return s.Equal(other)
}

// SharesBitSpace reports whether fingerprints built with s and other hash
// features into the same bit positions: same algorithm and same length. A
// query may only be matched against an index whose settings share its bit
// space.
func (s Settings) SharesBitSpace(other Settings) bool {
	return s.algorithm == other.algorithm && s.numBits == other.numBits
}

// Key returns a stable string that identifies s. Equal settings produce equal
// keys; it is used for cache keys and index manifests.
func (s Settings) Key() string {
	var sb strings.Builder
	sb.WriteString(string(s.algorithm))
	writeKeyField(&sb, "n", s.numBits)
	writeKeyField(&sb, "r", s.radius)
	writeKeyField(&sb, "t", s.torsionPathLength)
	writeKeyField(&sb, "min", s.minPath)
	writeKeyField(&sb, "max", s.maxPath)
	writeKeyField(&sb, "l", s.layerFlags)
	return sb.String()
}

func writeKeyField(sb *strings.Builder, name string, v int) {
	sb.WriteByte(';')
	sb.WriteString(name)
	sb.WriteByte('=')
	if IsAvailable(v) {
		sb.WriteString(strconv.Itoa(v))
	} else {
		sb.WriteByte('-')
	}
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Settings, error) {
	parts := strings.Split(key, ";")
	if len(parts) != 7 || parts[0] == "" {
		return Settings{}, fmt.Errorf("fingerprint: malformed settings key %q", key)
	}
	s := unsetSettings(AlgorithmID(parts[0]))
	targets := []*int{&s.numBits, &s.radius, &s.torsionPathLength, &s.minPath, &s.maxPath, &s.layerFlags}
	names := []string{"n", "r", "t", "min", "max", "l"}
	for i, part := range parts[1:] {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name != names[i] {
			return Settings{}, fmt.Errorf("fingerprint: malformed settings key field %q", part)
		}
		if value == "-" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return Settings{}, fmt.Errorf("fingerprint: malformed settings key field %q: %w", part, err)
		}
		*targets[i] = n
	}
	return s, nil
}

func (s Settings) String() string {
	var parts []string
	parts = append(parts, "algorithm="+string(s.algorithm))
	add := func(name string, v int) {
		if IsAvailable(v) {
			parts = append(parts, name+"="+strconv.Itoa(v))
		}
	}
	add("numBits", s.numBits)
	add("radius", s.radius)
	add("torsionPathLength", s.torsionPathLength)
	add("minPath", s.minPath)
	add("maxPath", s.maxPath)
	add("layerFlags", s.layerFlags)
	return "Settings{" + strings.Join(parts, ", ") + "}"
}

// RawParameters is the unprojected parameter bag read from configuration or a
// request. Fields that were not supplied hold Unset.
type RawParameters struct {
	NumBits           int
	Radius            int
	TorsionPathLength int
	MinPath           int
	MaxPath           int
	LayerFlags        int
}

// NoParameters returns RawParameters with every field Unset.
func NoParameters() RawParameters {
	return RawParameters{
		NumBits:           Unset,
		Radius:            Unset,
		TorsionPathLength: Unset,
		MinPath:           Unset,
		MaxPath:           Unset,
		LayerFlags:        Unset,
	}
}

// pick returns v when it is available and def otherwise.
func pick(v, def int) int {
	if IsAvailable(v) {
		return v
	}
	return def
}
