package chemistry

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/xxh3"
)

// Pattern layer flags select which features label a path. Every combination
// keeps the pattern fingerprint monotone under substructure containment
// because the labels depend on the atom or bond alone.
const (
	// LayerAtomTypes labels path atoms with their element and aromaticity.
	LayerAtomTypes = 1 << iota
	// LayerBondOrders labels path bonds with their order.
	LayerBondOrders
	// LayerAtoms also sets one bit per atom (paths of zero bonds).
	LayerAtoms

	LayerAll = LayerAtomTypes | LayerBondOrders | LayerAtoms
)

// Toolkit defaults for pattern parameters left unset.
const (
	DefaultPatternMinPath = 1
	DefaultPatternMaxPath = 6
)

// BitVector is the toolkit's native fingerprint. It implements
// fingerprint.BitVector.
type BitVector struct {
	n    int
	bits *bitset.BitSet
}

func newBitVector(n int) *BitVector {
	return &BitVector{n: n, bits: bitset.New(uint(n))}
}

func (v *BitVector) NumBits() int { return v.n }

func (v *BitVector) Test(i int) bool {
	if i < 0 || i >= v.n {
		return false
	}
	return v.bits.Test(uint(i))
}

// Positions lists set bits in ascending order.
func (v *BitVector) Positions() []int {
	out := make([]int, 0, v.bits.Count())
	for i, ok := v.bits.NextSet(0); ok; i, ok = v.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

func (v *BitVector) setHashed(salt, feature string) {
	h := xxh3.HashString(salt + "\x00" + feature)
	v.bits.Set(uint(h % uint64(v.n)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Path enumeration
// ─────────────────────────────────────────────────────────────────────────────

// walkPaths calls fn for every simple path of minBonds..maxBonds bonds. The
// atoms and bonds slices are only valid during the call. Each undirected path
// is visited once per direction.
func (m *Molecule) walkPaths(minBonds, maxBonds int, fn func(atoms, bonds []int)) {
	g := m.graph
	visited := make([]bool, len(g.Atoms))
	atoms := make([]int, 0, maxBonds+1)
	bonds := make([]int, 0, maxBonds)

	var extend func(u int)
	extend = func(u int) {
		if len(bonds) >= minBonds {
			fn(atoms, bonds)
		}
		if len(bonds) == maxBonds {
			return
		}
		for _, b := range g.adj[u] {
			v := g.other(b, u)
			if visited[v] {
				continue
			}
			visited[v] = true
			atoms = append(atoms, v)
			bonds = append(bonds, b)
			extend(v)
			atoms = atoms[:len(atoms)-1]
			bonds = bonds[:len(bonds)-1]
			visited[v] = false
		}
	}

	for start := range g.Atoms {
		visited[start] = true
		atoms = append(atoms[:0], start)
		bonds = bonds[:0]
		extend(start)
		visited[start] = false
	}
}

// pathKey renders a path with the given labelers and returns the smaller of
// its forward and reverse renderings, so both directions agree.
func pathKey(atoms, bonds []int, atomLabel func(pos, atom int) string, bondLabel func(bond int) string) string {
	var fwd, rev strings.Builder
	n := len(atoms)
	for i := 0; i < n; i++ {
		fwd.WriteString(atomLabel(i, atoms[i]))
		rev.WriteString(atomLabel(i, atoms[n-1-i]))
		if i < len(bonds) {
			fwd.WriteString(bondLabel(bonds[i]))
			rev.WriteString(bondLabel(bonds[len(bonds)-1-i]))
		}
	}
	f, r := fwd.String(), rev.String()
	if r < f {
		return r
	}
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Pattern
// ─────────────────────────────────────────────────────────────────────────────

// PatternFingerprint hashes labelled simple paths. If molecule A embeds in
// molecule B, every path of A is a path of B with the same labels, so the
// bits of A are a subset of the bits of B.
func (m *Molecule) PatternFingerprint(numBits, minPath, maxPath, layerFlags int) *BitVector {
	v := newBitVector(numBits)
	atomLabel := func(_ int, a int) string {
		if layerFlags&LayerAtomTypes != 0 {
			return "[" + m.elementLabel(a) + "]"
		}
		return "[*]"
	}
	bondLabel := func(b int) string {
		if layerFlags&LayerBondOrders != 0 {
			return m.graph.Bonds[b].Order.symbol()
		}
		return "~"
	}

	if layerFlags&LayerAtoms != 0 {
		for i := range m.graph.Atoms {
			v.setHashed("pattern/atom", atomLabel(0, i))
		}
	}
	m.walkPaths(minPath, maxPath, func(atoms, bonds []int) {
		v.setHashed("pattern/path", pathKey(atoms, bonds, atomLabel, bondLabel))
	})
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Topological
// ─────────────────────────────────────────────────────────────────────────────

// TopologicalFingerprint hashes simple paths labelled with element, ring
// membership and bond order. Ring membership makes it a similarity
// fingerprint rather than a substructure screen.
func (m *Molecule) TopologicalFingerprint(numBits, minPath, maxPath int) *BitVector {
	v := newBitVector(numBits)
	atomLabel := func(_ int, a int) string {
		label := m.elementLabel(a)
		if m.ringAtom[a] {
			label += "R"
		}
		return "[" + label + "]"
	}
	bondLabel := func(b int) string {
		s := m.graph.Bonds[b].Order.symbol()
		if m.ringBond[b] {
			s += "@"
		}
		return s
	}
	m.walkPaths(minPath, maxPath, func(atoms, bonds []int) {
		v.setHashed("topological", pathKey(atoms, bonds, atomLabel, bondLabel))
	})
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Morgan
// ─────────────────────────────────────────────────────────────────────────────

// MorganFingerprint sets one bit per atom environment for every radius from
// zero to radius (ECFP style).
func (m *Molecule) MorganFingerprint(numBits, radius int) *BitVector {
	g := m.graph
	v := newBitVector(numBits)
	inv := make([]uint64, len(g.Atoms))
	for i := range inv {
		inv[i] = xxh3.HashString(m.invariantLabel(i))
		v.setHashed("morgan/0", strconv.FormatUint(inv[i], 16))
	}

	for r := 1; r <= radius; r++ {
		next := make([]uint64, len(inv))
		for i := range inv {
			nb := make([]string, 0, len(g.adj[i]))
			for _, b := range g.adj[i] {
				nb = append(nb, g.Bonds[b].Order.symbol()+strconv.FormatUint(inv[g.other(b, i)], 16))
			}
			sort.Strings(nb)
			next[i] = xxh3.HashString(strconv.Itoa(r) + "|" + strconv.FormatUint(inv[i], 16) + "|" + strings.Join(nb, ","))
			v.setHashed("morgan", strconv.FormatUint(next[i], 16))
		}
		inv = next
	}
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Torsion
// ─────────────────────────────────────────────────────────────────────────────

// piElectrons counts the multiple-bond electrons around atom i.
func (m *Molecule) piElectrons(i int) int {
	n := 0
	for _, b := range m.graph.adj[i] {
		switch m.graph.Bonds[b].Order {
		case BondDouble, BondAromatic:
			n++
		case BondTriple:
			n += 2
		}
	}
	return n
}

// TorsionFingerprint hashes every path of exactly pathLength atoms. Atom codes
// carry element, pi electrons and heavy degree; the end atoms count one bond
// fewer, as in topological torsions.
func (m *Molecule) TorsionFingerprint(numBits, pathLength int) *BitVector {
	v := newBitVector(numBits)
	bonds := pathLength - 1
	if bonds < 0 {
		return v
	}
	m.walkPaths(bonds, bonds, func(atoms, pathBonds []int) {
		last := len(atoms) - 1
		atomLabel := func(pos, a int) string {
			degree := m.graph.Degree(a)
			if last > 0 && (pos == 0 || pos == last) {
				degree--
			}
			return "[" + m.elementLabel(a) + ";p" + strconv.Itoa(m.piElectrons(a)) + ";d" + strconv.Itoa(degree) + "]"
		}
		v.setHashed("torsion", pathKey(atoms, pathBonds, atomLabel, func(int) string { return "" }))
	})
	return v
}
