package fingerprint

import (
	"strings"
	"sync"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Process-wide locks for the variants whose native routines are not safe for
// concurrent use. They are shared by every Registry built with default options.
var (
	patternMu     sync.Mutex
	topologicalMu sync.Mutex
)

// Registry resolves algorithms by identifier or display name.
type Registry struct {
	ordered []Algorithm
	byID    map[AlgorithmID]Algorithm
}

type registryOptions struct {
	locks map[AlgorithmID]sync.Locker
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

// WithLock serializes calculations of algorithm id through l. A nil l removes
// the lock for that algorithm.
func WithLock(id AlgorithmID, l sync.Locker) RegistryOption {
	return func(o *registryOptions) {
		if l == nil {
			delete(o.locks, id)
			return
		}
		o.locks[id] = l
	}
}

// WithoutLocks drops every per-algorithm lock. Use it only with a toolkit whose
// primitives are all safe for concurrent use.
func WithoutLocks() RegistryOption {
	return func(o *registryOptions) {
		o.locks = map[AlgorithmID]sync.Locker{}
	}
}

// NewRegistry builds the closed set of algorithms. By default Pattern and
// Topological calculations are serialized through one process-wide mutex each.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := &registryOptions{locks: map[AlgorithmID]sync.Locker{
		AlgorithmPattern:     &patternMu,
		AlgorithmTopological: &topologicalMu,
	}}
	for _, opt := range opts {
		opt(o)
	}

	algs := []Algorithm{
		&patternAlgorithm{base{id: AlgorithmPattern, name: "Pattern", lock: o.locks[AlgorithmPattern]}},
		&morganAlgorithm{base{id: AlgorithmMorgan, name: "Morgan", lock: o.locks[AlgorithmMorgan]}},
		&torsionAlgorithm{base{id: AlgorithmTorsion, name: "Torsion", lock: o.locks[AlgorithmTorsion]}},
		&topologicalAlgorithm{base{id: AlgorithmTopological, name: "Topological", lock: o.locks[AlgorithmTopological]}},
	}
	r := &Registry{ordered: algs, byID: make(map[AlgorithmID]Algorithm, len(algs))}
	for _, a := range algs {
		r.byID[a.ID()] = a
	}
	return r
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns a shared Registry built with default options.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Parse resolves s by exact identifier, then by case-insensitive display
// name. It returns nil when nothing matches.
func (r *Registry) Parse(s string) Algorithm {
	if a, ok := r.byID[AlgorithmID(s)]; ok {
		return a
	}
	for _, a := range r.ordered {
		if strings.EqualFold(a.DisplayName(), s) {
			return a
		}
	}
	return nil
}

// Resolve is Parse for configuration paths: an unknown name is an error.
func (r *Registry) Resolve(s string) (Algorithm, error) {
	if a := r.Parse(s); a != nil {
		return a, nil
	}
	return nil, errors.New(errors.CodeUnresolvedAlgorithm, "unknown fingerprint algorithm").WithDetailf("name=%q", s)
}

// Get returns the algorithm registered under id.
func (r *Registry) Get(id AlgorithmID) (Algorithm, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// All returns every algorithm in registration order.
func (r *Registry) All() []Algorithm {
	out := make([]Algorithm, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Validate dispatches to the algorithm named by s.
func (r *Registry) Validate(s *Settings) error {
	if s == nil {
		return errors.InvalidSettings("fingerprint settings are absent")
	}
	a, ok := r.byID[s.algorithm]
	if !ok {
		return errors.New(errors.CodeUnresolvedAlgorithm, "unknown fingerprint algorithm").WithDetailf("algorithm=%q", s.algorithm)
	}
	return a.Validate(s)
}

// Specify resolves name and projects raw onto it, validating the result.
func (r *Registry) Specify(name string, raw RawParameters) (Settings, error) {
	a, err := r.Resolve(name)
	if err != nil {
		return Settings{}, err
	}
	s := a.Specification(raw)
	if err := a.Validate(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
