// Package search defines the fingerprint index model: documents with one term
// per set bit, the all-bits-required boolean query, the writer and searcher
// contracts that index backends implement, and the bounded top-k collector.
package search

import (
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Reserved index fields. They are internal to the index and never exposed as
// molecule properties.
const (
	// FingerprintField holds one unanalyzed, unscored term per set bit.
	FingerprintField = "_fp_bits"

	// FingerprintCountField holds the number of set bits. Backends use it for
	// ranking only; it plays no part in candidate filtering.
	FingerprintCountField = "_fp_count"
)

// Field is a single indexed term.
type Field struct {
	Name string
	Term string
}

// Document is the index entry for one molecule. It is immutable once built;
// re-indexing a molecule replaces the whole document.
type Document struct {
	ID          string
	Fingerprint *fingerprint.Fingerprint

	// Stored carries caller payload (canonical form, source ids). It is kept
	// alongside the document but never searched.
	Stored map[string]string
}

// NewDocument builds the document for a structure fingerprint.
func NewDocument(id string, fp *fingerprint.Fingerprint) (Document, error) {
	if id == "" {
		return Document{}, errors.InvalidParam("document id is required")
	}
	if fp == nil {
		return Document{}, errors.New(errors.CodeAbsentFingerprint, "cannot index an absent fingerprint").WithDetailf("id=%s", id)
	}
	return Document{ID: id, Fingerprint: fp}, nil
}

// WithStored returns a copy of d carrying payload.
func (d Document) WithStored(payload map[string]string) Document {
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	d.Stored = cp
	return d
}

// Terms returns the fingerprint terms of d in ascending position order.
func (d Document) Terms() []string {
	return fingerprint.Terms(d.Fingerprint)
}

// Fields returns one FingerprintField entry per set bit.
func (d Document) Fields() []Field {
	terms := d.Terms()
	fields := make([]Field, len(terms))
	for i, t := range terms {
		fields[i] = Field{Name: FingerprintField, Term: t}
	}
	return fields
}

// BitCount returns the number of set bits.
func (d Document) BitCount() int {
	if d.Fingerprint == nil {
		return 0
	}
	return d.Fingerprint.Cardinality()
}
