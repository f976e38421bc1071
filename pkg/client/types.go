package client

import "time"

// Molecule is one record submitted for indexing.
type Molecule struct {
	ID         string            `json:"id"`
	Structure  string            `json:"structure"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Kinds accepted by SearchClient.Fingerprint.
const (
	KindStructure = "structure"
	KindQuery     = "query"
)

type FingerprintRequest struct {
	Structure string `json:"structure"`
	Kind      string `json:"kind,omitempty"`
}

// EncodedQuery is the term form of a query fingerprint.
type EncodedQuery struct {
	Tokens string `json:"tokens"`
	Count  int    `json:"count"`
}

type FingerprintResult struct {
	Kind      string       `json:"kind"`
	Settings  string       `json:"settings"`
	Canonical string       `json:"canonical"`
	NumBits   int          `json:"num_bits"`
	Positions []int        `json:"positions"`
	Query     EncodedQuery `json:"query"`
}

type SearchRequest struct {
	Query   string `json:"query"`
	MaxHits int    `json:"max_hits,omitempty"`
	Verify  bool   `json:"verify,omitempty"`
}

type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type SearchResult struct {
	Query     EncodedQuery `json:"query"`
	Hits      []Hit        `json:"hits"`
	TotalHits int          `json:"total_hits"`
	Verified  bool         `json:"verified"`
}

type SkippedRecord struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Indexed         int             `json:"indexed"`
	Skipped         []SkippedRecord `json:"skipped,omitempty"`
	ChunksCommitted int             `json:"chunks_committed"`
	ChunksSkipped   int             `json:"chunks_skipped,omitempty"`
	ChunksTotal     int             `json:"chunks_total"`
	Duration        time.Duration   `json:"duration"`
}

type RebuildResult struct {
	Pages    int           `json:"pages"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

type IndexStats struct {
	Backend    string `json:"backend"`
	Settings   string `json:"settings"`
	Docs       int    `json:"docs"`
	Segments   int    `json:"segments,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Deleted    int    `json:"deleted,omitempty"`
}

// Snapshot describes one archived index.
type Snapshot struct {
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Settings   string    `json:"settings,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Docs       int       `json:"docs,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Readiness is the server's readiness check answer.
type Readiness struct {
	Status     string `json:"status"`
	Components map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"components,omitempty"`
}

//Personal.AI order the ending
