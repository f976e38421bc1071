package chemistry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

var defaultValences = map[string][]int{
	"B":  {3},
	"C":  {4},
	"N":  {3, 5},
	"O":  {2},
	"P":  {3, 5},
	"S":  {2, 4, 6},
	"F":  {1},
	"Cl": {1},
	"Br": {1},
	"I":  {1},
}

// Molecule is a parsed graph with perceived ring membership and hydrogen
// counts. It implements fingerprint.Molecule and is immutable.
type Molecule struct {
	graph     *Graph
	ringBond  []bool
	ringAtom  []bool
	hydrogens []int
	canonical string
}

// newMolecule perceives rings and hydrogens. With sanitize set it also
// rejects impossible valences and aromatic atoms outside rings.
func newMolecule(g *Graph, sanitize bool) (*Molecule, error) {
	m := &Molecule{graph: g}
	m.perceiveRings()
	m.hydrogens = make([]int, len(g.Atoms))
	for i := range g.Atoms {
		m.hydrogens[i] = m.implicitHydrogens(i)
	}
	if sanitize {
		if err := m.sanitize(); err != nil {
			return nil, err
		}
	}
	m.canonical = m.canonicalForm()
	return m, nil
}

// Canonical returns "<formula>/<graph hash>", identical for every atom
// ordering of the same graph.
func (m *Molecule) Canonical() string { return m.canonical }

// AtomCount returns the number of heavy atoms.
func (m *Molecule) AtomCount() int { return len(m.graph.Atoms) }

// Graph exposes the underlying graph.
func (m *Molecule) Graph() *Graph { return m.graph }

// explicitValence sums bond orders; aromatic atoms get one extra unit for the
// delocalized bond.
func (m *Molecule) explicitValence(i int) int {
	v := 0
	for _, b := range m.graph.adj[i] {
		v += m.graph.Bonds[b].Order.valence()
	}
	if m.graph.Atoms[i].Aromatic && v > 0 {
		v++
	}
	return v
}

func (m *Molecule) implicitHydrogens(i int) int {
	a := m.graph.Atoms[i]
	if a.Bracket {
		return a.ExplicitH
	}
	valences, ok := defaultValences[a.Symbol]
	if !ok {
		return 0
	}
	used := m.explicitValence(i)
	for _, v := range valences {
		if v >= used {
			return v - used
		}
	}
	return 0
}

func (m *Molecule) sanitize() error {
	for i, a := range m.graph.Atoms {
		if a.Aromatic && !m.ringAtom[i] {
			return fmt.Errorf("chemistry: aromatic atom %d (%s) is not in a ring", i, a.Symbol)
		}
		valences, ok := defaultValences[a.Symbol]
		if !ok {
			continue
		}
		limit := valences[len(valences)-1]
		if a.Charge != 0 {
			limit += abs(a.Charge)
		}
		total := m.explicitValence(i)
		if a.Bracket {
			total += a.ExplicitH
		}
		if total > limit {
			return fmt.Errorf("chemistry: atom %d (%s) has valence %d, maximum is %d", i, a.Symbol, total, limit)
		}
	}
	return nil
}

// perceiveRings marks ring bonds as the non-bridges of the graph.
func (m *Molecule) perceiveRings() {
	g := m.graph
	n := len(g.Atoms)
	m.ringBond = make([]bool, len(g.Bonds))
	m.ringAtom = make([]bool, n)

	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	timer := 0
	bridge := make([]bool, len(g.Bonds))

	var visit func(u, parentBond int)
	visit = func(u, parentBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, b := range g.adj[u] {
			if b == parentBond {
				continue
			}
			v := g.other(b, u)
			if disc[v] == -1 {
				visit(v, b)
				if low[v] < low[u] {
					low[u] = low[v]
				}
				if low[v] > disc[u] {
					bridge[b] = true
				}
			} else if disc[v] < low[u] {
				low[u] = disc[v]
			}
		}
	}
	for i := 0; i < n; i++ {
		if disc[i] == -1 {
			visit(i, -1)
		}
	}
	for b, isBridge := range bridge {
		if !isBridge {
			m.ringBond[b] = true
			m.ringAtom[g.Bonds[b].A] = true
			m.ringAtom[g.Bonds[b].B] = true
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Labels
// ─────────────────────────────────────────────────────────────────────────────

// elementLabel depends only on the atom itself, so it is stable under
// substructure embedding.
func (m *Molecule) elementLabel(i int) string {
	a := m.graph.Atoms[i]
	if a.Aromatic {
		return strings.ToLower(a.Symbol)
	}
	return a.Symbol
}

// invariantLabel also encodes the atom's environment. Used by similarity
// fingerprints and canonicalization.
func (m *Molecule) invariantLabel(i int) string {
	a := m.graph.Atoms[i]
	var sb strings.Builder
	sb.WriteString(m.elementLabel(i))
	sb.WriteString(";D")
	sb.WriteString(strconv.Itoa(m.graph.Degree(i)))
	sb.WriteString(";H")
	sb.WriteString(strconv.Itoa(m.hydrogens[i]))
	if a.Charge != 0 {
		sb.WriteString(";q")
		sb.WriteString(strconv.Itoa(a.Charge))
	}
	if a.Isotope != 0 {
		sb.WriteString(";i")
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	if m.ringAtom[i] {
		sb.WriteString(";R")
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Canonical form
// ─────────────────────────────────────────────────────────────────────────────

// canonicalForm refines atom invariants by neighborhood until the partition
// stops changing, then hashes the sorted atom and bond descriptions.
func (m *Molecule) canonicalForm() string {
	g := m.graph
	n := len(g.Atoms)
	inv := make([]uint64, n)
	for i := range inv {
		inv[i] = xxh3.HashString(m.invariantLabel(i))
	}

	classes := countClasses(inv)
	for iter := 0; iter < n; iter++ {
		next := make([]uint64, n)
		for i := range inv {
			nb := make([]string, 0, len(g.adj[i]))
			for _, b := range g.adj[i] {
				nb = append(nb, g.Bonds[b].Order.symbol()+strconv.FormatUint(inv[g.other(b, i)], 16))
			}
			sort.Strings(nb)
			next[i] = xxh3.HashString(strconv.FormatUint(inv[i], 16) + "|" + strings.Join(nb, ","))
		}
		inv = next
		c := countClasses(inv)
		if c == classes {
			break
		}
		classes = c
	}

	atoms := make([]string, n)
	for i := range atoms {
		atoms[i] = strconv.FormatUint(inv[i], 16)
	}
	sort.Strings(atoms)
	bonds := make([]string, len(g.Bonds))
	for i, b := range g.Bonds {
		x, y := inv[b.A], inv[b.B]
		if x > y {
			x, y = y, x
		}
		bonds[i] = strconv.FormatUint(x, 16) + b.Order.symbol() + strconv.FormatUint(y, 16)
	}
	sort.Strings(bonds)

	h := xxh3.HashString(strings.Join(atoms, ",") + "/" + strings.Join(bonds, ","))
	return fmt.Sprintf("%s/%016x", m.Formula(), h)
}

func countClasses(inv []uint64) int {
	seen := make(map[uint64]struct{}, len(inv))
	for _, v := range inv {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Formula returns the Hill-order molecular formula including implicit
// hydrogens, e.g. "C2H6O".
func (m *Molecule) Formula() string {
	counts := map[string]int{}
	hydrogens := 0
	for i, a := range m.graph.Atoms {
		counts[a.Symbol]++
		hydrogens += m.hydrogens[i]
	}
	if hydrogens > 0 {
		counts["H"] += hydrogens
	}

	var symbols []string
	for s := range counts {
		symbols = append(symbols, s)
	}
	hasCarbon := counts["C"] > 0
	sort.Slice(symbols, func(i, j int) bool {
		if hasCarbon {
			ri, rj := hillRank(symbols[i]), hillRank(symbols[j])
			if ri != rj {
				return ri < rj
			}
		}
		return symbols[i] < symbols[j]
	})

	var sb strings.Builder
	for _, s := range symbols {
		sb.WriteString(s)
		if counts[s] > 1 {
			sb.WriteString(strconv.Itoa(counts[s]))
		}
	}
	return sb.String()
}

func hillRank(s string) int {
	switch s {
	case "C":
		return 0
	case "H":
		return 1
	default:
		return 2
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
