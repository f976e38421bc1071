package search

import (
	"container/heap"
	"math"
)

// ScoreDoc is one ranked search candidate. Doc is the backend's numeric
// document number and breaks score ties; ID is the caller-visible identifier.
type ScoreDoc struct {
	Doc   int     `json:"doc"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// sentinelDoc fills a pre-populated collector. It loses every comparison
// against a real entry.
var sentinelDoc = ScoreDoc{Doc: math.MaxInt, Score: math.Inf(-1)}

// worse reports whether a ranks below b: lower score, or equal score and a
// higher document number.
func worse(a, b ScoreDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Doc > b.Doc
}

type scoreDocHeap []ScoreDoc

func (h scoreDocHeap) Len() int           { return len(h) }
func (h scoreDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoreDocHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoreDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoreDoc))
}

func (h *scoreDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK keeps the k best entries seen so far in a min-heap whose root is the
// worst retained entry. A TopK belongs to one search and is not safe for
// concurrent use.
type TopK struct {
	k            int
	h            scoreDocHeap
	prepopulated bool
	realCount    int
	totalHits    int
}

// NewTopK returns an empty collector with capacity k.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, h: make(scoreDocHeap, 0, k)}
}

// NewPrepopulatedTopK returns a collector filled with k sentinel entries
// (score -Inf, doc MaxInt). Every real entry displaces a sentinel until none
// remain; TopDocs discards the sentinels that were never displaced.
func NewPrepopulatedTopK(k int) *TopK {
	c := NewTopK(k)
	c.prepopulated = true
	for i := 0; i < c.k; i++ {
		c.h = append(c.h, sentinelDoc)
	}
	return c
}

// Collect offers document doc with score. It reports whether the entry was
// retained. NaN and -Inf scores are rejected.
func (c *TopK) Collect(doc int, score float64) bool {
	return c.CollectScoreDoc(ScoreDoc{Doc: doc, Score: score})
}

// CollectScoreDoc is Collect for an entry that already carries its ID.
func (c *TopK) CollectScoreDoc(sd ScoreDoc) bool {
	if math.IsNaN(sd.Score) || math.IsInf(sd.Score, -1) {
		return false
	}
	c.totalHits++
	if c.k == 0 {
		return false
	}
	if len(c.h) < c.k {
		heap.Push(&c.h, sd)
		c.realCount++
		return true
	}
	if !worse(c.h[0], sd) {
		return false
	}
	c.h[0] = sd
	heap.Fix(&c.h, 0)
	if c.realCount < c.k {
		c.realCount++
	}
	return true
}

// Len returns the number of entries held, sentinels included.
func (c *TopK) Len() int { return len(c.h) }

// Cap returns k.
func (c *TopK) Cap() int { return c.k }

// RealCount returns how many retained entries are real (not sentinels).
func (c *TopK) RealCount() int { return c.realCount }

// TotalHits returns how many valid entries were offered, retained or not,
// plus any matches added through AddTotalHits.
func (c *TopK) TotalHits() int { return c.totalHits }

// AddTotalHits counts n matches that a backend found but never offered, such
// as a remote engine that only returns its first k hits. Non-positive n is
// ignored.
func (c *TopK) AddTotalHits(n int) {
	if n > 0 {
		c.totalHits += n
	}
}

// Prepopulated reports whether the collector was built with sentinels.
func (c *TopK) Prepopulated() bool { return c.prepopulated }

// Worst returns the root entry, the first to be evicted.
func (c *TopK) Worst() (ScoreDoc, bool) {
	if len(c.h) == 0 {
		return ScoreDoc{}, false
	}
	return c.h[0], true
}

// TopDocs returns the real entries best first. The collector is left intact.
func (c *TopK) TopDocs() []ScoreDoc {
	h := make(scoreDocHeap, len(c.h))
	copy(h, c.h)

	if c.prepopulated {
		for i := len(h) - c.realCount; i > 0; i-- {
			heap.Pop(&h)
		}
	}

	out := make([]ScoreDoc, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ScoreDoc)
	}
	return out
}
