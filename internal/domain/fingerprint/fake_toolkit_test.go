package fingerprint

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// fakeMolecule treats each character of the text as an atom. Sorting the
// characters canonicalizes it, so "CCO" and "OCC" are the same molecule.
type fakeMolecule struct {
	canonical string
}

func (m *fakeMolecule) Canonical() string { return m.canonical }
func (m *fakeMolecule) AtomCount() int    { return len(m.canonical) }

type fakeVector struct {
	n    int
	bits map[int]bool
}

func (v *fakeVector) NumBits() int    { return v.n }
func (v *fakeVector) Test(i int) bool { return v.bits[i] }

type fakeCall struct {
	method string
	args   []int
}

// fakeToolkit hashes each atom into a bit, making fingerprints monotone under
// adding atoms. It records calls and detects overlapping calls.
type fakeToolkit struct {
	mu       sync.Mutex
	calls    []fakeCall
	absent   bool
	parseErr error
	inFlight int32
	overlaps int32
	slowdown func()
}

func (tk *fakeToolkit) Parse(text string, _ bool) (Molecule, error) {
	if tk.parseErr != nil {
		return nil, tk.parseErr
	}
	if text == "" || strings.ContainsAny(text, "!?") {
		return nil, fmt.Errorf("fake: cannot parse %q", text)
	}
	chars := strings.Split(text, "")
	sort.Strings(chars)
	return &fakeMolecule{canonical: strings.Join(chars, "")}, nil
}

func (tk *fakeToolkit) vector(method string, mol Molecule, salt, numBits int, args ...int) (BitVector, error) {
	if atomic.AddInt32(&tk.inFlight, 1) > 1 {
		atomic.AddInt32(&tk.overlaps, 1)
	}
	defer atomic.AddInt32(&tk.inFlight, -1)
	if tk.slowdown != nil {
		tk.slowdown()
	}

	tk.mu.Lock()
	tk.calls = append(tk.calls, fakeCall{method: method, args: append([]int{numBits}, args...)})
	tk.mu.Unlock()

	if tk.absent {
		return nil, nil
	}
	v := &fakeVector{n: numBits, bits: map[int]bool{}}
	for _, r := range mol.Canonical() {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%c", salt, r)
		v.bits[int(h.Sum32()%uint32(numBits))] = true
	}
	return v, nil
}

func (tk *fakeToolkit) PatternFingerprint(mol Molecule, p PatternParams) (BitVector, error) {
	return tk.vector("pattern", mol, 1, p.NumBits, p.MinPath, p.MaxPath, p.LayerFlags)
}

func (tk *fakeToolkit) MorganFingerprint(mol Molecule, radius, numBits int) (BitVector, error) {
	return tk.vector("morgan", mol, 2, numBits, radius)
}

func (tk *fakeToolkit) TorsionFingerprint(mol Molecule, pathLength, numBits int) (BitVector, error) {
	return tk.vector("torsion", mol, 3, numBits, pathLength)
}

func (tk *fakeToolkit) TopologicalFingerprint(mol Molecule, minPath, maxPath, numBits int) (BitVector, error) {
	return tk.vector("topological", mol, 4, numBits, minPath, maxPath)
}

func (tk *fakeToolkit) lastCall() fakeCall {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if len(tk.calls) == 0 {
		return fakeCall{}
	}
	return tk.calls[len(tk.calls)-1]
}

func (tk *fakeToolkit) callCount() int {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return len(tk.calls)
}
