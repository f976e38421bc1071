// Package indexing provides the application service that fingerprints
// molecules, keeps the substructure index in step with the system of record
// and answers substructure screens.
package indexing

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/index/local"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Defaults applied when no option overrides them.
const (
	DefaultBatchSize    = 10000
	DefaultWorkers      = 8
	DefaultMaxHits      = 10000
	DefaultHits         = 100
	DefaultPageSize     = 5000
	DefaultSnapshotKeep = 7
)

// Stored payload keys written next to every document.
const (
	StoredCanonical = "canonical"
	StoredStructure = "structure"
)

// Service defines the indexing application operations.
type Service interface {
	Fingerprint(ctx context.Context, input *FingerprintInput) (*FingerprintResult, error)
	IndexMolecule(ctx context.Context, record molecule.Record) error
	IndexBatch(ctx context.Context, records []molecule.Record) (*BatchResult, error)
	DeleteMolecules(ctx context.Context, ids ...string) error
	Search(ctx context.Context, input *SearchInput) (*SearchResult, error)
	Rebuild(ctx context.Context, source molecule.Source) (*RebuildResult, error)
	HandleMoleculeEvent(ctx context.Context, ev molecule.Event) error
	Snapshot(ctx context.Context, name string) (*minio.Snapshot, error)
	Restore(ctx context.Context, name string) (*minio.Snapshot, error)
	Stats(ctx context.Context) (*IndexStats, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Cache memoizes fingerprints by settings and canonical molecule form.
type Cache interface {
	GetOrCompute(ctx context.Context, s fingerprint.Settings, canonical string,
		compute func(ctx context.Context) (*fingerprint.Fingerprint, error)) (*fingerprint.Fingerprint, error)
}

// Verifier narrows screen candidates to true substructure matches.
type Verifier interface {
	Verify(ctx context.Context, query *fingerprint.Fingerprint, hits []search.ScoreDoc) ([]search.ScoreDoc, error)
}

// Lease serializes rebuilds across processes.
type Lease interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// SnapshotStore persists local index snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, idx *local.Index, name string) (*minio.Snapshot, error)
	Restore(ctx context.Context, idx *local.Index, name string) (*minio.Snapshot, error)
	Latest(ctx context.Context, s fingerprint.Settings) (*minio.Snapshot, error)
	Prune(ctx context.Context, s fingerprint.Settings, keep int) (int, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Inputs and results
// ─────────────────────────────────────────────────────────────────────────────

// FingerprintInput contains input for computing a fingerprint.
type FingerprintInput struct {
	Structure string
	Kind      fingerprint.Kind
}

// FingerprintResult is a computed fingerprint with its encoded query form.
type FingerprintResult struct {
	Kind      string                   `json:"kind"`
	Settings  string                   `json:"settings"`
	Canonical string                   `json:"canonical"`
	NumBits   int                      `json:"num_bits"`
	Positions []int                    `json:"positions"`
	Query     fingerprint.EncodedQuery `json:"query"`

	Fingerprint *fingerprint.Fingerprint `json:"-"`
}

// SkippedRecord names a record that was not indexed and why.
type SkippedRecord struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of IndexBatch.
type BatchResult struct {
	Indexed         int             `json:"indexed"`
	Skipped         []SkippedRecord `json:"skipped,omitempty"`
	ChunksCommitted int             `json:"chunks_committed"`
	ChunksSkipped   int             `json:"chunks_skipped,omitempty"`
	ChunksTotal     int             `json:"chunks_total"`
	Duration        time.Duration   `json:"duration"`
}

// SearchInput contains input for a substructure screen.
type SearchInput struct {
	Query   string
	MaxHits int
	Verify  bool
}

// Hit is one screen candidate.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SearchResult represents substructure screen results.
type SearchResult struct {
	Query     fingerprint.EncodedQuery `json:"query"`
	Hits      []Hit                    `json:"hits"`
	TotalHits int                      `json:"total_hits"`
	Verified  bool                     `json:"verified"`
}

// RebuildResult reports the outcome of Rebuild.
type RebuildResult struct {
	Pages    int           `json:"pages"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// IndexStats describes the live index.
type IndexStats struct {
	Backend    string `json:"backend"`
	Settings   string `json:"settings"`
	Docs       int    `json:"docs"`
	Segments   int    `json:"segments,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Deleted    int    `json:"deleted,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

type options struct {
	backend      string
	cache        Cache
	verifier     Verifier
	lease        Lease
	snapshots    SnapshotStore
	localIndex   *local.Index
	metrics      *prometheus.FPMetrics
	batchSize    int
	workers      int
	maxHits      int
	defaultHits  int
	pageSize     int
	snapshotKeep int
	sanitize     bool
	delimiter    string
}

// Option configures a Service.
type Option func(*options)

func WithBackend(name string) Option { return func(o *options) { o.backend = name } }

func WithCache(c Cache) Option { return func(o *options) { o.cache = c } }

func WithVerifier(v Verifier) Option { return func(o *options) { o.verifier = v } }

func WithLease(l Lease) Option { return func(o *options) { o.lease = l } }

func WithMetrics(m *prometheus.FPMetrics) Option { return func(o *options) { o.metrics = m } }

// WithLocalIndex exposes the local index behind the writer for statistics
// and snapshots.
func WithLocalIndex(idx *local.Index) Option { return func(o *options) { o.localIndex = idx } }

// WithSnapshots enables Snapshot and Restore through store, keeping the keep
// newest snapshots after every save. It requires WithLocalIndex.
func WithSnapshots(store SnapshotStore, keep int) Option {
	return func(o *options) {
		o.snapshots = store
		o.snapshotKeep = keep
	}
}

// WithBatchSize sets the number of records committed per transaction.
func WithBatchSize(n int) Option { return func(o *options) { o.batchSize = n } }

// WithWorkers bounds the fingerprinting goroutines of one chunk.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithHitLimits sets the default and maximum number of hits per search.
func WithHitLimits(defaultHits, maxHits int) Option {
	return func(o *options) {
		o.defaultHits = defaultHits
		o.maxHits = maxHits
	}
}

func WithPageSize(n int) Option { return func(o *options) { o.pageSize = n } }

func WithSanitize(sanitize bool) Option { return func(o *options) { o.sanitize = sanitize } }

func WithDelimiter(d string) Option { return func(o *options) { o.delimiter = d } }

// ─────────────────────────────────────────────────────────────────────────────
// Implementation
// ─────────────────────────────────────────────────────────────────────────────

// serviceImpl implements the Service interface.
type serviceImpl struct {
	factory  *fingerprint.Factory
	writer   search.Writer
	searcher search.Searcher
	opts     options
	logger   logging.Logger

	// writeMu makes add+commit sequences atomic with respect to each other.
	writeMu sync.Mutex
}

// NewService creates the indexing application service.
func NewService(factory *fingerprint.Factory, writer search.Writer, searcher search.Searcher, logger logging.Logger, opts ...Option) (Service, error) {
	if factory == nil {
		return nil, errors.InvalidParam("fingerprint factory is required")
	}
	if writer == nil || searcher == nil {
		return nil, errors.InvalidParam("index writer and searcher are required")
	}
	o := options{
		backend:      "local",
		batchSize:    DefaultBatchSize,
		workers:      DefaultWorkers,
		maxHits:      DefaultMaxHits,
		defaultHits:  DefaultHits,
		pageSize:     DefaultPageSize,
		snapshotKeep: DefaultSnapshotKeep,
		sanitize:     true,
		delimiter:    fingerprint.DefaultDelimiter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize < 1 || o.workers < 1 || o.pageSize < 1 {
		return nil, errors.InvalidParam("batch size, workers and page size must be positive")
	}
	if o.maxHits < 1 || o.defaultHits < 1 || o.defaultHits > o.maxHits {
		return nil, errors.InvalidParam("invalid hit limits").WithDetailf("default=%d max=%d", o.defaultHits, o.maxHits)
	}
	if err := fingerprint.ValidateDelimiter(o.delimiter); err != nil {
		return nil, err
	}
	if o.snapshots != nil && (o.localIndex == nil || o.snapshotKeep < 1) {
		return nil, errors.InvalidParam("snapshots need the local index and a positive keep count")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{
		factory:  factory,
		writer:   writer,
		searcher: searcher,
		opts:     o,
		logger:   logger.Named("indexing"),
	}, nil
}

// fingerprint parses text and returns its fingerprint of kind with the
// canonical form, through the cache when one is configured.
func (s *serviceImpl) fingerprint(ctx context.Context, text string, kind fingerprint.Kind) (*fingerprint.Fingerprint, string, error) {
	settings := s.factory.Settings(kind)
	alg := string(settings.Algorithm())
	start := time.Now()

	mol, err := s.factory.Toolkit().Parse(text, s.opts.sanitize)
	if err != nil {
		s.opts.metrics.RecordFingerprint(alg, time.Since(start), err)
		return nil, "", err
	}
	canonical := mol.Canonical()

	compute := func(context.Context) (*fingerprint.Fingerprint, error) {
		return s.factory.Of(kind, mol)
	}
	var fp *fingerprint.Fingerprint
	if s.opts.cache != nil {
		computed := false
		fp, err = s.opts.cache.GetOrCompute(ctx, settings, canonical, func(ctx context.Context) (*fingerprint.Fingerprint, error) {
			computed = true
			return compute(ctx)
		})
		switch {
		case computed:
			s.opts.metrics.RecordCacheAccess("miss")
		case errors.IsCode(err, errors.CodeAbsentFingerprint):
			s.opts.metrics.RecordCacheAccess("absent")
		default:
			s.opts.metrics.RecordCacheAccess("hit")
		}
	} else {
		fp, err = compute(ctx)
	}
	s.opts.metrics.RecordFingerprint(alg, time.Since(start), err)
	if err != nil {
		return nil, canonical, err
	}
	return fp, canonical, nil
}

// Fingerprint computes the structure or query fingerprint of a molecule.
func (s *serviceImpl) Fingerprint(ctx context.Context, input *FingerprintInput) (*FingerprintResult, error) {
	if input == nil || input.Structure == "" {
		return nil, errors.InvalidParam("structure is required")
	}
	fp, canonical, err := s.fingerprint(ctx, input.Structure, input.Kind)
	if err != nil {
		return nil, err
	}
	return &FingerprintResult{
		Kind:        input.Kind.String(),
		Settings:    s.factory.Settings(input.Kind).Key(),
		Canonical:   canonical,
		NumBits:     fp.NumBits(),
		Positions:   fp.Positions(),
		Query:       fingerprint.Encode(fp, s.opts.delimiter),
		Fingerprint: fp,
	}, nil
}

// document fingerprints record for the index.
func (s *serviceImpl) document(ctx context.Context, record molecule.Record) (search.Document, error) {
	if err := record.Validate(); err != nil {
		return search.Document{}, err
	}
	fp, canonical, err := s.fingerprint(ctx, record.Structure, fingerprint.KindStructure)
	if err != nil {
		return search.Document{}, err
	}
	doc, err := search.NewDocument(record.ID, fp)
	if err != nil {
		return search.Document{}, err
	}
	stored := make(map[string]string, len(record.Properties)+2)
	for k, v := range record.Properties {
		stored[k] = v
	}
	stored[StoredCanonical] = canonical
	stored[StoredStructure] = record.Structure
	return doc.WithStored(stored), nil
}

// commit runs fn and commits, rolling back when either step fails. Callers
// hold writeMu.
func (s *serviceImpl) commit(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		s.rollback(ctx)
		return err
	}
	start := time.Now()
	err := s.writer.Commit(ctx)
	s.opts.metrics.RecordCommit(time.Since(start), err)
	if err != nil {
		s.rollback(ctx)
		return err
	}
	return nil
}

func (s *serviceImpl) rollback(ctx context.Context) {
	if err := s.writer.Rollback(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("index rollback failed", logging.Err(err))
	}
}

// IndexMolecule fingerprints record and commits it, replacing any document
// with the same ID.
func (s *serviceImpl) IndexMolecule(ctx context.Context, record molecule.Record) error {
	doc, err := s.document(ctx, record)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err = s.commit(ctx, func() error { return s.writer.AddDocument(ctx, doc) })
	if err != nil {
		return err
	}
	s.opts.metrics.RecordDocuments("add", 1)
	s.logger.Debug("molecule indexed", logging.String("id", record.ID), logging.Int("bits", doc.BitCount()))
	return nil
}

// DeleteMolecules removes documents by ID and commits.
func (s *serviceImpl) DeleteMolecules(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.commit(ctx, func() error { return s.writer.Delete(ctx, ids...) }); err != nil {
		return err
	}
	s.opts.metrics.RecordDocuments("delete", len(ids))
	return nil
}

// resolveHits applies the default and maximum hit limits.
func (s *serviceImpl) resolveHits(maxHits int) (int, error) {
	switch {
	case maxHits == 0:
		return s.opts.defaultHits, nil
	case maxHits < 0 || maxHits > s.opts.maxHits:
		return 0, errors.InvalidParam("max hits is out of range").
			WithDetailf("max_hits=%d limit=%d", maxHits, s.opts.maxHits)
	default:
		return maxHits, nil
	}
}

// Search screens the index for molecules that may contain the query
// structure. An unavailable index yields an empty result.
func (s *serviceImpl) Search(ctx context.Context, input *SearchInput) (*SearchResult, error) {
	if input == nil || input.Query == "" {
		return nil, errors.InvalidParam("query structure is required")
	}
	maxHits, err := s.resolveHits(input.MaxHits)
	if err != nil {
		return nil, err
	}
	fp, _, err := s.fingerprint(ctx, input.Query, fingerprint.KindQuery)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := search.Search(ctx, s.searcher, fp, maxHits)
	s.opts.metrics.RecordSearch(s.opts.backend, fp.Cardinality(), res.TotalHits, time.Since(start), err)
	if err != nil {
		if errors.IsCode(err, errors.CodeIndexUnavailable) {
			s.logger.Warn("index unavailable, returning no hits", logging.Err(err))
			return &SearchResult{Query: fingerprint.Encode(fp, s.opts.delimiter), Hits: []Hit{}}, nil
		}
		return nil, err
	}

	hits := res.Hits
	verified := false
	if input.Verify && s.opts.verifier != nil {
		hits, err = s.opts.verifier.Verify(ctx, fp, hits)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "candidate verification failed")
		}
		verified = true
	}

	out := &SearchResult{
		Query:     fingerprint.Encode(fp, s.opts.delimiter),
		Hits:      make([]Hit, len(hits)),
		TotalHits: res.TotalHits,
		Verified:  verified,
	}
	for i, h := range hits {
		out.Hits[i] = Hit{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// HandleMoleculeEvent applies one change event. An upserted molecule without
// a fingerprint is removed from the index.
func (s *serviceImpl) HandleMoleculeEvent(ctx context.Context, ev molecule.Event) error {
	start := time.Now()
	err := s.handleEvent(ctx, ev)
	s.opts.metrics.RecordEvent(string(ev.Type), time.Since(start), err)
	return err
}

func (s *serviceImpl) handleEvent(ctx context.Context, ev molecule.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Type {
	case molecule.EventDeleted:
		return s.DeleteMolecules(ctx, ev.Record.ID)
	default:
		err := s.IndexMolecule(ctx, ev.Record)
		if errors.IsCode(err, errors.CodeAbsentFingerprint) {
			s.logger.Info("molecule has no fingerprint, removing", logging.String("id", ev.Record.ID))
			return s.DeleteMolecules(ctx, ev.Record.ID)
		}
		return err
	}
}

// Stats describes the live index.
func (s *serviceImpl) Stats(ctx context.Context) (*IndexStats, error) {
	docs, err := s.searcher.NumDocs(ctx)
	if err != nil {
		return nil, err
	}
	st := &IndexStats{
		Backend:  s.opts.backend,
		Settings: s.factory.StructureSettings().Key(),
		Docs:     docs,
	}
	if s.opts.localIndex != nil {
		ls := s.opts.localIndex.Stats()
		st.Segments, st.Generation, st.Deleted = ls.Segments, ls.Generation, ls.Deleted
		s.opts.metrics.SetIndexStats(st.Settings, ls.Docs, ls.Segments, ls.Generation)
	}
	return st, nil
}

//Personal.AI order the ending
