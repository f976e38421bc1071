// Package molecule describes the molecules fed into the fingerprint index:
// the records read from a system of record and the change events that keep
// the index in step with it.
package molecule

import (
	"context"
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Record is one molecule as held by the system of record.
type Record struct {
	// ID is the stable identifier the index stores as the document ID.
	ID string `json:"id"`

	// Structure is the molecule in SMILES notation.
	Structure string `json:"structure"`

	// Properties are stored alongside the fingerprint and returned with hits.
	Properties map[string]string `json:"properties,omitempty"`
}

// Validate checks that the record can be fingerprinted and indexed.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.InvalidParam("molecule id is required")
	}
	if strings.TrimSpace(r.Structure) == "" {
		return errors.InvalidParam("molecule structure is required").WithDetailf("id=%s", r.ID)
	}
	return nil
}

// Source enumerates the molecules of a system of record.
type Source interface {
	// Scan calls fn with successive pages of at most pageSize records in
	// ascending ID order. It stops at the first error fn returns.
	Scan(ctx context.Context, pageSize int, fn func(page []Record) error) error

	// Get returns a single record or a NotFound error.
	Get(ctx context.Context, id string) (Record, error)

	// Count returns the number of records Scan would visit.
	Count(ctx context.Context) (int64, error)
}

//Personal.AI order the ending
