package chemistry

import (
	"fmt"
	"strconv"
	"strings"
)

// BondOrder is the multiplicity of a bond. Aromatic bonds carry their own order.
type BondOrder int

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

func (o BondOrder) symbol() string {
	switch o {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondQuadruple:
		return "$"
	case BondAromatic:
		return ":"
	default:
		return "-"
	}
}

// valence contribution; aromatic bonds count as one plus the atom's aromatic
// bonus added in explicitValence.
func (o BondOrder) valence() int {
	switch o {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	default:
		return 1
	}
}

// Atom is a heavy atom of the molecular graph.
type Atom struct {
	Symbol   string
	Aromatic bool
	Charge   int
	Isotope  int

	// ExplicitH is the hydrogen count written in a bracket atom. Organic
	// subset atoms have Bracket false and derive hydrogens from valence.
	ExplicitH int
	Bracket   bool
}

// Bond joins atoms A and B (indices into Graph.Atoms).
type Bond struct {
	A, B  int
	Order BondOrder
}

// Graph is a parsed molecule.
type Graph struct {
	Atoms []Atom
	Bonds []Bond

	// adj[i] lists the indices into Bonds incident to atom i.
	adj [][]int
}

func (g *Graph) other(bond, atom int) int {
	b := g.Bonds[bond]
	if b.A == atom {
		return b.B
	}
	return b.A
}

// Degree returns the number of heavy-atom neighbors of atom i.
func (g *Graph) Degree(i int) int { return len(g.adj[i]) }

var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

var aromaticOrganic = map[byte]string{
	'b': "B", 'c': "C", 'n': "N", 'o': "O", 'p': "P", 's': "S",
}

// elements lists the symbols accepted inside brackets.
var elements = map[string]bool{
	"H": true, "He": true, "Li": true, "Be": true, "B": true, "C": true, "N": true, "O": true, "F": true, "Ne": true,
	"Na": true, "Mg": true, "Al": true, "Si": true, "P": true, "S": true, "Cl": true, "Ar": true, "K": true, "Ca": true,
	"Ti": true, "Cr": true, "Mn": true, "Fe": true, "Co": true, "Ni": true, "Cu": true, "Zn": true, "Ga": true, "Ge": true,
	"As": true, "Se": true, "Br": true, "Kr": true, "Rb": true, "Sr": true, "Ag": true, "Cd": true, "Sn": true, "Sb": true,
	"Te": true, "I": true, "Xe": true, "Cs": true, "Ba": true, "Pt": true, "Au": true, "Hg": true, "Pb": true, "Bi": true,
}

// ParseError reports a malformed SMILES string.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chemistry: cannot parse %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

type ringBond struct {
	atom  int
	order BondOrder
	set   bool
}

type parser struct {
	in    string
	pos   int
	g     *Graph
	stack []int
	rings map[int]ringBond
}

// ParseSMILES reads the supported SMILES subset: organic and bracket atoms,
// branches, ring closures (including %nn), explicit bond symbols and
// disconnected components. Stereo markers are accepted and ignored.
func ParseSMILES(s string) (*Graph, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ParseError{Input: s, Reason: "empty input"}
	}
	p := &parser{in: s, g: &Graph{}, rings: map[int]ringBond{}}
	if err := p.parse(); err != nil {
		return nil, err
	}
	p.g.buildAdjacency()
	return p.g, nil
}

func (p *parser) fail(reason string) error {
	return &ParseError{Input: p.in, Offset: p.pos, Reason: reason}
}

func (p *parser) parse() error {
	prev := -1
	pending := BondOrder(0)
	havePending := false

	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch {
		case c == '(':
			if prev < 0 {
				return p.fail("branch without a preceding atom")
			}
			p.stack = append(p.stack, prev)
			p.pos++
		case c == ')':
			if len(p.stack) == 0 {
				return p.fail("unbalanced ')'")
			}
			if havePending {
				return p.fail("bond symbol before ')'")
			}
			prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++
		case c == '.':
			if havePending {
				return p.fail("bond symbol before '.'")
			}
			prev = -1
			p.pos++
		case c == '-' || c == '=' || c == '#' || c == '$' || c == ':' || c == '/' || c == '\\':
			if havePending {
				return p.fail("consecutive bond symbols")
			}
			pending = bondFromSymbol(c)
			havePending = true
			p.pos++
		case c >= '0' && c <= '9' || c == '%':
			if prev < 0 {
				return p.fail("ring closure without a preceding atom")
			}
			num, err := p.ringNumber()
			if err != nil {
				return err
			}
			if err := p.ringClosure(prev, num, pending, havePending); err != nil {
				return err
			}
			havePending = false
		case c == '@':
			// Chirality outside brackets is not valid SMILES.
			return p.fail("unexpected '@'")
		default:
			atom, err := p.atom()
			if err != nil {
				return err
			}
			idx := len(p.g.Atoms)
			p.g.Atoms = append(p.g.Atoms, atom)
			if prev >= 0 {
				p.addBond(prev, idx, pending, havePending)
			} else if havePending {
				return p.fail("bond symbol without a preceding atom")
			}
			havePending = false
			prev = idx
		}
	}

	if havePending {
		return p.fail("dangling bond symbol")
	}
	if len(p.stack) > 0 {
		return p.fail("unbalanced '('")
	}
	if len(p.rings) > 0 {
		for n := range p.rings {
			return p.fail("unclosed ring " + strconv.Itoa(n))
		}
	}
	if len(p.g.Atoms) == 0 {
		return p.fail("no atoms")
	}
	return nil
}

func bondFromSymbol(c byte) BondOrder {
	switch c {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case '$':
		return BondQuadruple
	case ':':
		return BondAromatic
	default:
		return BondSingle
	}
}

// addBond joins a and b. Without an explicit symbol two aromatic atoms get an
// aromatic bond and everything else a single bond.
func (p *parser) addBond(a, b int, order BondOrder, explicit bool) {
	if !explicit {
		order = BondSingle
		if p.g.Atoms[a].Aromatic && p.g.Atoms[b].Aromatic {
			order = BondAromatic
		}
	}
	p.g.Bonds = append(p.g.Bonds, Bond{A: a, B: b, Order: order})
}

func (p *parser) ringNumber() (int, error) {
	if p.in[p.pos] != '%' {
		n := int(p.in[p.pos] - '0')
		p.pos++
		return n, nil
	}
	if p.pos+2 >= len(p.in) || !isDigit(p.in[p.pos+1]) || !isDigit(p.in[p.pos+2]) {
		return 0, p.fail("'%' must be followed by two digits")
	}
	n, _ := strconv.Atoi(p.in[p.pos+1 : p.pos+3])
	p.pos += 3
	return n, nil
}

func (p *parser) ringClosure(atom, num int, order BondOrder, explicit bool) error {
	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = ringBond{atom: atom, order: order, set: explicit}
		return nil
	}
	delete(p.rings, num)
	if open.atom == atom {
		return p.fail("ring closure to the same atom")
	}
	for _, b := range p.g.Bonds {
		if (b.A == open.atom && b.B == atom) || (b.A == atom && b.B == open.atom) {
			return p.fail("ring closure duplicates an existing bond")
		}
	}
	switch {
	case explicit && open.set && order != open.order:
		return p.fail("conflicting ring closure bond orders")
	case open.set:
		order, explicit = open.order, true
	}
	p.addBond(open.atom, atom, order, explicit)
	return nil
}

func (p *parser) atom() (Atom, error) {
	c := p.in[p.pos]
	if c == '[' {
		return p.bracketAtom()
	}
	if c == '*' {
		p.pos++
		return Atom{Symbol: "*"}, nil
	}
	if sym, ok := aromaticOrganic[c]; ok {
		p.pos++
		return Atom{Symbol: sym, Aromatic: true}, nil
	}
	if p.pos+1 < len(p.in) {
		two := p.in[p.pos : p.pos+2]
		if two == "Cl" || two == "Br" {
			p.pos += 2
			return Atom{Symbol: two}, nil
		}
	}
	one := string(c)
	if organicSubset[one] {
		p.pos++
		return Atom{Symbol: one}, nil
	}
	return Atom{}, p.fail(fmt.Sprintf("unexpected character %q", c))
}

func (p *parser) bracketAtom() (Atom, error) {
	end := strings.IndexByte(p.in[p.pos:], ']')
	if end < 0 {
		return Atom{}, p.fail("unterminated bracket atom")
	}
	body := p.in[p.pos+1 : p.pos+end]
	start := p.pos
	p.pos += end + 1

	a := Atom{Bracket: true}
	i := 0
	for i < len(body) && isDigit(body[i]) {
		i++
	}
	if i > 0 {
		a.Isotope, _ = strconv.Atoi(body[:i])
	}

	switch {
	case i < len(body) && body[i] == '*':
		a.Symbol = "*"
		i++
	case i < len(body) && body[i] >= 'a' && body[i] <= 'z':
		if i+2 <= len(body) && body[i:i+2] == "se" {
			a.Symbol, a.Aromatic = "Se", true
			i += 2
		} else if i+2 <= len(body) && body[i:i+2] == "as" {
			a.Symbol, a.Aromatic = "As", true
			i += 2
		} else if sym, ok := aromaticOrganic[body[i]]; ok {
			a.Symbol, a.Aromatic = sym, true
			i++
		}
	case i < len(body) && body[i] >= 'A' && body[i] <= 'Z':
		if i+2 <= len(body) && elements[body[i:i+2]] {
			a.Symbol = body[i : i+2]
			i += 2
		} else if elements[body[i:i+1]] {
			a.Symbol = body[i : i+1]
			i++
		}
	}
	if a.Symbol == "" {
		return Atom{}, &ParseError{Input: p.in, Offset: start, Reason: "unknown element in bracket atom"}
	}

	for i < len(body) && body[i] == '@' {
		i++
	}
	if i < len(body) && body[i] == 'H' {
		i++
		a.ExplicitH = 1
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		if j > i {
			a.ExplicitH, _ = strconv.Atoi(body[i:j])
			i = j
		}
	}
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		sym := body[i]
		i++
		magnitude := 1
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		if j > i {
			magnitude, _ = strconv.Atoi(body[i:j])
			i = j
		} else {
			for i < len(body) && body[i] == sym {
				magnitude++
				i++
			}
		}
		a.Charge = sign * magnitude
	}
	if i < len(body) && body[i] == ':' {
		i++
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}
	if i != len(body) {
		return Atom{}, &ParseError{Input: p.in, Offset: start + 1 + i, Reason: "unexpected text in bracket atom"}
	}
	return a, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (g *Graph) buildAdjacency() {
	g.adj = make([][]int, len(g.Atoms))
	for i, b := range g.Bonds {
		g.adj[b.A] = append(g.adj[b.A], i)
		g.adj[b.B] = append(g.adj[b.B], i)
	}
}
