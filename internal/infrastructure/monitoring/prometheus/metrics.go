package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// FPMetrics holds the fingerprint index metrics. A nil *FPMetrics records
// nothing.
type FPMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Fingerprint Layer
	FingerprintsTotal     CounterVec
	FingerprintDuration   HistogramVec
	FingerprintCacheTotal CounterVec

	// Index Layer
	IndexDocumentsTotal CounterVec
	IndexCommitsTotal   CounterVec
	IndexCommitDuration HistogramVec
	IndexDocs           GaugeVec
	IndexSegments       GaugeVec
	IndexGeneration     GaugeVec
	BatchChunksTotal    CounterVec
	RebuildDuration     HistogramVec
	RebuildRecordsTotal CounterVec
	SnapshotsTotal      CounterVec
	SnapshotBytes       GaugeVec

	// Search Layer
	SearchRequestsTotal CounterVec
	SearchDuration      HistogramVec
	SearchHits          HistogramVec
	SearchQueryBits     HistogramVec

	// Messaging Layer
	EventsTotal          CounterVec
	EventProcessDuration HistogramVec

	// System Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultComputeDurationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1}
	DefaultCommitDurationBuckets  = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60}
	DefaultRebuildDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
	DefaultHitBuckets             = []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000}
	DefaultQueryBitBuckets        = []float64{0, 8, 16, 32, 64, 128, 256, 512, 1024}
)

// NewFPMetrics registers all metrics with collector.
func NewFPMetrics(collector MetricsCollector) *FPMetrics {
	m := &FPMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// Fingerprint
	m.FingerprintsTotal = collector.RegisterCounter("fingerprints_total", "Fingerprints computed", "algorithm", "outcome")
	m.FingerprintDuration = collector.RegisterHistogram("fingerprint_duration_seconds", "Fingerprint computation duration", DefaultComputeDurationBuckets, "algorithm")
	m.FingerprintCacheTotal = collector.RegisterCounter("fingerprint_cache_total", "Fingerprint cache lookups", "result")

	// Index
	m.IndexDocumentsTotal = collector.RegisterCounter("index_documents_total", "Documents written to the index", "operation")
	m.IndexCommitsTotal = collector.RegisterCounter("index_commits_total", "Index commits", "outcome")
	m.IndexCommitDuration = collector.RegisterHistogram("index_commit_duration_seconds", "Index commit duration", DefaultCommitDurationBuckets)
	m.IndexDocs = collector.RegisterGauge("index_docs", "Live documents in the index", "index")
	m.IndexSegments = collector.RegisterGauge("index_segments", "Committed index segments", "index")
	m.IndexGeneration = collector.RegisterGauge("index_generation", "Committed index generation", "index")
	m.BatchChunksTotal = collector.RegisterCounter("batch_chunks_total", "Indexing batch chunks", "outcome")
	m.RebuildDuration = collector.RegisterHistogram("rebuild_duration_seconds", "Full index rebuild duration", DefaultRebuildDurationBuckets, "outcome")
	m.RebuildRecordsTotal = collector.RegisterCounter("rebuild_records_total", "Records visited by rebuilds", "outcome")
	m.SnapshotsTotal = collector.RegisterCounter("snapshots_total", "Snapshot operations", "operation", "outcome")
	m.SnapshotBytes = collector.RegisterGauge("snapshot_bytes", "Size of the last saved snapshot", "index")

	// Search
	m.SearchRequestsTotal = collector.RegisterCounter("search_requests_total", "Substructure searches", "backend", "outcome")
	m.SearchDuration = collector.RegisterHistogram("search_duration_seconds", "Substructure search duration", DefaultHTTPDurationBuckets, "backend")
	m.SearchHits = collector.RegisterHistogram("search_hits", "Total hits per search", DefaultHitBuckets, "backend")
	m.SearchQueryBits = collector.RegisterHistogram("search_query_bits", "Set bits per query fingerprint", DefaultQueryBitBuckets, "backend")

	// Messaging
	m.EventsTotal = collector.RegisterCounter("molecule_events_total", "Molecule events processed", "type", "outcome")
	m.EventProcessDuration = collector.RegisterHistogram("molecule_event_duration_seconds", "Molecule event processing duration", DefaultHTTPDurationBuckets, "type")

	// System Health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "code")

	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsCode(err, errors.CodeAbsentFingerprint):
		return "absent"
	case errors.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// Helpers

func (m *FPMetrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest raises the in-flight gauge for method and returns the
// func that lowers it again.
func (m *FPMetrics) TrackActiveRequest(method string) func() {
	if m == nil {
		return func() {}
	}
	g := m.HTTPActiveRequests.WithLabelValues(method)
	g.Inc()
	return g.Dec
}

// RecordFingerprint counts one computation. Absent fingerprints are counted
// apart from failures.
func (m *FPMetrics) RecordFingerprint(algorithm string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.FingerprintsTotal.WithLabelValues(algorithm, outcome(err)).Inc()
	m.FingerprintDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordCacheAccess records a fingerprint cache lookup: hit, miss, absent or
// error.
func (m *FPMetrics) RecordCacheAccess(result string) {
	if m == nil {
		return
	}
	m.FingerprintCacheTotal.WithLabelValues(result).Inc()
}

func (m *FPMetrics) RecordDocuments(operation string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.IndexDocumentsTotal.WithLabelValues(operation).Add(float64(n))
}

func (m *FPMetrics) RecordCommit(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.IndexCommitsTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.IndexCommitDuration.WithLabelValues().Observe(duration.Seconds())
	}
}

func (m *FPMetrics) SetIndexStats(index string, docs, segments int, generation uint64) {
	if m == nil {
		return
	}
	m.IndexDocs.WithLabelValues(index).Set(float64(docs))
	m.IndexSegments.WithLabelValues(index).Set(float64(segments))
	m.IndexGeneration.WithLabelValues(index).Set(float64(generation))
}

func (m *FPMetrics) RecordBatchChunk(err error) {
	if m == nil {
		return
	}
	m.BatchChunksTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *FPMetrics) RecordRebuild(duration time.Duration, indexed, skipped int, err error) {
	if m == nil {
		return
	}
	m.RebuildDuration.WithLabelValues(outcome(err)).Observe(duration.Seconds())
	m.RebuildRecordsTotal.WithLabelValues("indexed").Add(float64(indexed))
	m.RebuildRecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *FPMetrics) RecordSnapshot(operation, index string, bytes int64, err error) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(operation, outcome(err)).Inc()
	if err == nil && operation == "save" {
		m.SnapshotBytes.WithLabelValues(index).Set(float64(bytes))
	}
}

func (m *FPMetrics) RecordSearch(backend string, queryBits, totalHits int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(backend, outcome(err)).Inc()
	m.SearchDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err == nil {
		m.SearchHits.WithLabelValues(backend).Observe(float64(totalHits))
		m.SearchQueryBits.WithLabelValues(backend).Observe(float64(queryBits))
	}
}

func (m *FPMetrics) RecordEvent(eventType string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, outcome(err)).Inc()
	m.EventProcessDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *FPMetrics) SetHealth(component string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// RecordError counts err under its error code.
func (m *FPMetrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errors.GetCode(err).String()).Inc()
}

//Personal.AI order the ending
