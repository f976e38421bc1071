// Package local is the on-disk fingerprint index. Committed documents live in
// immutable segment files holding one roaring posting bitmap per fingerprint
// bit; a JSON manifest lists the live segments and the tombstones of deleted
// documents. Writes are buffered in memory and become visible on Commit.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l logging.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// Stats describes the committed state of an index.
type Stats struct {
	Generation uint64 `json:"generation"`
	Segments   int    `json:"segments"`
	Docs       int    `json:"docs"`
	Deleted    int    `json:"deleted"`
	Pending    int    `json:"pending"`
}

// snapshot is an immutable view shared by concurrent searchers.
type snapshot struct {
	generation uint64
	segments   []*segment
	deleted    *roaring.Bitmap
	numDocs    int
}

// Index implements search.Writer and search.Searcher over a directory.
// A single writer is enforced internally; searches never block on it.
type Index struct {
	dir      string
	settings fingerprint.Settings
	logger   logging.Logger

	// Writer state, guarded by writeMu.
	writeMu  sync.Mutex
	manifest *manifest
	live     map[string]uint32
	nextDoc  uint32
	pending  map[string]search.Document
	order    []string
	deletes  map[string]struct{}

	mu     sync.RWMutex
	snap   *snapshot
	closed bool
}

var (
	_ search.Writer   = (*Index)(nil)
	_ search.Searcher = (*Index)(nil)
)

// Open opens the index in dir, creating it when absent. An existing index
// built with different settings is rejected with IncompatibleSettings.
func Open(dir string, settings fingerprint.Settings, opts ...Option) (*Index, error) {
	if dir == "" {
		return nil, errors.InvalidParam("index directory is required")
	}
	if settings.NumBits() <= 0 {
		return nil, errors.InvalidSettings("index settings need a positive numBits").WithDetail(settings.String())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "creating index directory")
	}
	x := &Index{
		dir:      dir,
		settings: settings,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = x.logger.With(logging.String("index_dir", dir))
	if err := x.load(); err != nil {
		return nil, err
	}
	return x, nil
}

// Dir returns the index directory.
func (x *Index) Dir() string { return x.dir }

// Settings returns the fingerprint settings the index was opened with.
func (x *Index) Settings() fingerprint.Settings { return x.settings }

// load reads the manifest and every listed segment. Callers hold writeMu or
// have exclusive access.
func (x *Index) load() error {
	m, err := readManifest(x.dir)
	if err != nil {
		return err
	}
	if m == nil {
		m = &manifest{Settings: x.settings.Key()}
		if err := writeManifest(x.dir, m); err != nil {
			return err
		}
	} else if m.Settings != x.settings.Key() {
		return errors.New(errors.CodeIncompatibleSettings, "index was built with different fingerprint settings").
			WithDetailf("index=%s requested=%s", m.Settings, x.settings.Key())
	}

	deleted, err := m.deletedBitmap()
	if err != nil {
		return err
	}
	segs := make([]*segment, 0, len(m.Segments))
	for _, name := range m.Segments {
		s, err := readSegment(x.dir, name)
		if err != nil {
			return err
		}
		if s.numBits != x.settings.NumBits() {
			return corrupted(name, fmt.Sprintf("numBits %d, expected %d", s.numBits, x.settings.NumBits()))
		}
		segs = append(segs, s)
	}

	live := make(map[string]uint32)
	for _, s := range segs {
		for d, e := range s.docs {
			if deleted.Contains(d) {
				continue
			}
			if prev, ok := live[e.ID]; !ok || d > prev {
				live[e.ID] = d
			}
		}
	}

	x.manifest = m
	x.live = live
	x.nextDoc = m.NextDoc
	x.resetPending()
	x.publish(&snapshot{generation: m.Generation, segments: segs, deleted: deleted, numDocs: len(live)})
	x.removeGarbage(m)

	x.logger.Info("index opened",
		logging.Uint64("generation", m.Generation),
		logging.Int("segments", len(segs)),
		logging.Int("docs", len(live)))
	return nil
}

// removeGarbage deletes temp files and segments the manifest does not list.
func (x *Index) removeGarbage(m *manifest) {
	keep := make(map[string]bool, len(m.Segments))
	for _, s := range m.Segments {
		keep[s] = true
	}
	entries, err := os.ReadDir(x.dir)
	if err != nil {
		x.logger.Warn("listing index directory failed", logging.Err(err))
		return
	}
	for _, e := range entries {
		name := e.Name()
		stale := strings.HasSuffix(name, ".tmp") || (strings.HasSuffix(name, segmentExt) && !keep[name])
		if !stale || e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(x.dir, name)); err != nil {
			x.logger.Warn("removing stale index file failed", logging.String("file", name), logging.Err(err))
		}
	}
}

func (x *Index) resetPending() {
	x.pending = make(map[string]search.Document)
	x.order = x.order[:0]
	x.deletes = make(map[string]struct{})
}

func (x *Index) publish(s *snapshot) {
	x.mu.Lock()
	x.snap = s
	x.mu.Unlock()
}

func (x *Index) acquire() (*snapshot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, errClosed()
	}
	return x.snap, nil
}

func (x *Index) isClosed() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.closed
}

func errClosed() error {
	return errors.New(errors.CodeIndexUnavailable, "index is closed")
}

func segmentName(generation uint64) string {
	return fmt.Sprintf("seg_%010d%s", generation, segmentExt)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

// AddDocument buffers doc. An existing document with the same ID is replaced
// on Commit.
func (x *Index) AddDocument(ctx context.Context, doc search.Document) error {
	return x.AddDocuments(ctx, []search.Document{doc})
}

// AddDocuments buffers docs. The batch is rejected as a whole if any
// document is invalid.
func (x *Index) AddDocuments(ctx context.Context, docs []search.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == "" {
			return errors.InvalidParam("document id is required")
		}
		if d.Fingerprint == nil {
			return errors.New(errors.CodeAbsentFingerprint, "cannot index an absent fingerprint").WithDetailf("id=%s", d.ID)
		}
		if d.Fingerprint.NumBits() != x.settings.NumBits() {
			return errors.New(errors.CodeIncompatibleSettings, "fingerprint length does not match the index").
				WithDetailf("id=%s numBits=%d index=%d", d.ID, d.Fingerprint.NumBits(), x.settings.NumBits())
		}
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if x.isClosed() {
		return errClosed()
	}
	for _, d := range docs {
		if _, ok := x.pending[d.ID]; !ok {
			x.order = append(x.order, d.ID)
		}
		x.pending[d.ID] = d
	}
	return nil
}

// Delete removes documents by ID on Commit. Unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if x.isClosed() {
		return errClosed()
	}
	for _, id := range ids {
		delete(x.pending, id)
		x.deletes[id] = struct{}{}
	}
	return nil
}

// Commit writes buffered documents as a new segment, records tombstones for
// deleted and replaced documents, and publishes the new state to searchers.
// On failure the committed state is unchanged and the buffer is kept.
func (x *Index) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if x.isClosed() {
		return errClosed()
	}
	if len(x.pending) == 0 && len(x.deletes) == 0 {
		return nil
	}

	start := time.Now()
	cur := x.snap
	deleted := cur.deleted.Clone()
	removed := 0
	for id := range x.deletes {
		if d, ok := x.live[id]; ok {
			deleted.Add(d)
			removed++
		}
	}
	for id := range x.pending {
		if _, gone := x.deletes[id]; gone {
			continue
		}
		if d, ok := x.live[id]; ok {
			deleted.Add(d)
		}
	}

	m := *x.manifest
	m.Segments = append([]string(nil), x.manifest.Segments...)
	m.Generation++
	segs := append([]*segment(nil), cur.segments...)

	next := x.nextDoc
	added := make(map[string]uint32, len(x.pending))
	var written string
	if len(x.pending) > 0 {
		seg := newSegment(segmentName(m.Generation), x.settings.NumBits())
		for _, id := range x.order {
			d, ok := x.pending[id]
			if !ok {
				continue
			}
			if _, done := added[id]; done {
				continue
			}
			seg.add(next, docEntry{ID: id, Bits: d.BitCount(), Stored: d.Stored}, d.Fingerprint.Positions())
			added[id] = next
			next++
		}
		if err := writeSegment(x.dir, seg); err != nil {
			return err
		}
		written = seg.name
		segs = append(segs, seg)
		m.Segments = append(m.Segments, seg.name)
	}
	m.NextDoc = next
	if err := m.setDeleted(deleted); err != nil {
		return err
	}
	if err := writeManifest(x.dir, &m); err != nil {
		if written != "" {
			os.Remove(filepath.Join(x.dir, written))
		}
		return err
	}

	for id := range x.deletes {
		delete(x.live, id)
	}
	for id, d := range added {
		x.live[id] = d
	}
	x.nextDoc = next
	x.manifest = &m
	x.publish(&snapshot{generation: m.Generation, segments: segs, deleted: deleted, numDocs: len(x.live)})
	x.resetPending()

	x.logger.Info("index committed",
		logging.Uint64("generation", m.Generation),
		logging.Int("added", len(added)),
		logging.Int("deleted", removed),
		logging.Int("docs", len(x.live)),
		logging.Duration("duration", time.Since(start)))
	return nil
}

// Rollback discards buffered changes.
func (x *Index) Rollback(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if n := len(x.pending) + len(x.deletes); n > 0 {
		x.logger.Info("index rollback", logging.Int("discarded", n))
	}
	x.resetPending()
	return nil
}

// Compact merges every segment into one and drops deleted documents.
func (x *Index) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if x.isClosed() {
		return errClosed()
	}
	cur := x.snap
	if len(cur.segments) <= 1 && cur.deleted.IsEmpty() {
		return nil
	}

	m := *x.manifest
	m.Generation++
	m.Segments = nil
	m.Deleted = nil

	var kept []*segment
	for _, s := range cur.segments {
		if t := s.without(s.name, cur.deleted); t != nil {
			kept = append(kept, t)
		}
	}
	var segs []*segment
	if len(kept) > 0 {
		merged := mergeSegments(segmentName(m.Generation), x.settings.NumBits(), kept)
		if err := writeSegment(x.dir, merged); err != nil {
			return err
		}
		segs = []*segment{merged}
		m.Segments = []string{merged.name}
	}
	if err := writeManifest(x.dir, &m); err != nil {
		return err
	}
	old := x.manifest.Segments
	x.manifest = &m
	x.publish(&snapshot{generation: m.Generation, segments: segs, deleted: roaring.New(), numDocs: len(x.live)})

	for _, name := range old {
		if err := os.Remove(filepath.Join(x.dir, name)); err != nil && !os.IsNotExist(err) {
			x.logger.Warn("removing compacted segment failed", logging.String("segment", name), logging.Err(err))
		}
	}
	x.logger.Info("index compacted",
		logging.Uint64("generation", m.Generation),
		logging.Int("merged_segments", len(old)),
		logging.Int("docs", len(x.live)))
	return nil
}

// Reload discards buffered changes and rereads the directory.
func (x *Index) Reload(ctx context.Context) error {
	return x.Replace(ctx, func(string) error { return nil })
}

// Replace runs fn with writers blocked, then discards buffered changes and
// rereads the directory. fn may rewrite any file in dir; searches keep using
// the previous snapshot until the reload succeeds.
func (x *Index) Replace(ctx context.Context, fn func(dir string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if x.isClosed() {
		return errClosed()
	}
	if err := fn(x.dir); err != nil {
		return err
	}
	return x.load()
}

// Files blocks writers and returns the committed files, relative to Dir.
// The caller must call release once it has finished copying them.
func (x *Index) Files() (files []string, release func()) {
	x.writeMu.Lock()
	files = append([]string{ManifestFile}, x.manifest.Segments...)
	return files, x.writeMu.Unlock
}

// Close discards buffered changes. Later calls fail with IndexUnavailable.
func (x *Index) Close() error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if n := len(x.pending) + len(x.deletes); n > 0 {
		x.logger.Warn("closing index with uncommitted changes", logging.Int("discarded", n))
	}
	x.resetPending()
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Searcher
// ─────────────────────────────────────────────────────────────────────────────

// Search offers every live document holding all query bits to collector.
// Doc numbers are index-wide and grow with insertion order.
func (x *Index) Search(ctx context.Context, q *search.BooleanQuery, collector *search.TopK) error {
	if q == nil || collector == nil {
		return errors.InvalidParam("query and collector are required")
	}
	bits, err := queryBits(q)
	if err != nil {
		return err
	}
	snap, err := x.acquire()
	if err != nil {
		return err
	}
	for _, seg := range snap.segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		cands := seg.match(bits)
		if cands == nil {
			continue
		}
		cands.AndNot(snap.deleted)
		it := cands.Iterator()
		for it.HasNext() {
			d := it.Next()
			e := seg.docs[d]
			collector.CollectScoreDoc(search.ScoreDoc{Doc: int(d), ID: e.ID, Score: q.Score(e.Bits)})
		}
	}
	return nil
}

// NumDocs returns the number of committed live documents.
func (x *Index) NumDocs(ctx context.Context) (int, error) {
	snap, err := x.acquire()
	if err != nil {
		return 0, err
	}
	return snap.numDocs, nil
}

// Stats reports the committed state and the size of the write buffer.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	snap := x.snap
	x.mu.RUnlock()

	x.writeMu.Lock()
	pending := len(x.pending) + len(x.deletes)
	x.writeMu.Unlock()

	return Stats{
		Generation: snap.generation,
		Segments:   len(snap.segments),
		Docs:       snap.numDocs,
		Deleted:    int(snap.deleted.GetCardinality()),
		Pending:    pending,
	}
}

func queryBits(q *search.BooleanQuery) ([]uint32, error) {
	bits := make([]uint32, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		if c.Field != search.FingerprintField || c.Occur != search.Must {
			return nil, errors.InvalidParam("unsupported query clause").WithDetailf("field=%s", c.Field)
		}
		b, err := strconv.ParseUint(c.Term, 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeEncodingFailed, "invalid fingerprint term").WithDetailf("term=%q", c.Term)
		}
		bits = append(bits, uint32(b))
	}
	return bits, nil
}
