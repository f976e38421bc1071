package search

import (
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
)

// Occur is the boolean role of a clause.
type Occur int

const (
	// Must clauses have to match for a document to be a candidate.
	Must Occur = iota
)

// TermClause matches documents that carry Term in Field.
type TermClause struct {
	Field string
	Term  string
	Occur Occur
}

// BooleanQuery is a conjunction of term clauses. It is a necessary-condition
// filter: every document that contains a substructure match passes it, but
// passing it does not prove a match.
type BooleanQuery struct {
	Clauses []TermClause

	// BitCount is the number of set bits of the query fingerprint. Backends
	// use it for scoring.
	BitCount int
}

// NewSubstructureQuery requires every set bit of fp. A nil fp yields nil.
// An empty fp yields a query with no clauses, which matches every document.
func NewSubstructureQuery(fp *fingerprint.Fingerprint) *BooleanQuery {
	if fp == nil {
		return nil
	}
	terms := fingerprint.Terms(fp)
	q := &BooleanQuery{Clauses: make([]TermClause, len(terms)), BitCount: len(terms)}
	for i, t := range terms {
		q.Clauses[i] = TermClause{Field: FingerprintField, Term: t, Occur: Must}
	}
	return q
}

// Terms returns the clause terms in order.
func (q *BooleanQuery) Terms() []string {
	if q == nil {
		return nil
	}
	out := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		out[i] = c.Term
	}
	return out
}

// Len returns the number of clauses.
func (q *BooleanQuery) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Clauses)
}

// String renders q in Lucene syntax, e.g. "+_fp_bits:3 +_fp_bits:7".
func (q *BooleanQuery) String() string {
	if q == nil {
		return ""
	}
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = "+" + c.Field + ":" + c.Term
	}
	return strings.Join(parts, " ")
}

// Score ranks a candidate with docBits set bits against q: the Tanimoto
// similarity of a subset query and its superset candidate, |q| / |d|.
func (q *BooleanQuery) Score(docBits int) float64 {
	if docBits <= 0 {
		if q.BitCount == 0 {
			return 1
		}
		return 0
	}
	return float64(q.BitCount) / float64(docBits)
}
