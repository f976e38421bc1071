package search

import (
	"context"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Writer mutates an index. Implementations are single-writer: concurrent
// calls are serialized internally. AddDocument with an ID already present
// replaces the previous document.
type Writer interface {
	AddDocument(ctx context.Context, doc Document) error

	// AddDocuments appends a batch. The batch becomes visible to searchers
	// on the next Commit.
	AddDocuments(ctx context.Context, docs []Document) error

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Commit makes pending changes durable and visible. It is the transaction
	// boundary of batch indexing.
	Commit(ctx context.Context) error

	// Rollback discards every change made since the last Commit.
	Rollback(ctx context.Context) error

	Close() error
}

// Searcher runs queries against an index. Implementations are safe for
// concurrent use.
type Searcher interface {
	// Search offers every candidate matching q to collector.
	Search(ctx context.Context, q *BooleanQuery, collector *TopK) error

	// NumDocs returns the number of live documents.
	NumDocs(ctx context.Context) (int, error)
}

// Result is the outcome of Search.
type Result struct {
	Hits      []ScoreDoc `json:"hits"`
	TotalHits int        `json:"total_hits"`
}

// Search runs a substructure screen for fp and returns at most maxHits
// candidates, best first. A nil searcher or a nil fingerprint yields an
// empty result and no error.
func Search(ctx context.Context, s Searcher, fp *fingerprint.Fingerprint, maxHits int) (Result, error) {
	if s == nil || fp == nil {
		return Result{}, nil
	}
	if maxHits <= 0 {
		return Result{}, errors.InvalidParam("maxHits must be positive").WithDetailf("maxHits=%d", maxHits)
	}
	collector := NewTopK(maxHits)
	if err := s.Search(ctx, NewSubstructureQuery(fp), collector); err != nil {
		return Result{}, err
	}
	return Result{Hits: collector.TopDocs(), TotalHits: collector.TotalHits()}, nil
}
