package local

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Segment file layout (little endian):
//
//	magic | version | numBits | docCount | termCount | docTableLen
//	docTable (JSON)
//	termCount × (bit | len | roaring bitmap)
//	crc32 of everything above
const (
	segmentMagic   uint32 = 0x46505347 // "FPSG"
	segmentVersion uint32 = 1
	segmentHeader         = 24
	segmentExt            = ".fps"
)

// docEntry is the stored side of an indexed document.
type docEntry struct {
	ID     string            `json:"id"`
	Bits   int               `json:"bits"`
	Stored map[string]string `json:"stored,omitempty"`
}

type docRow struct {
	Doc uint32 `json:"doc"`
	docEntry
}

// segment is an immutable, fully loaded set of documents with one posting
// bitmap per set fingerprint bit.
type segment struct {
	name     string
	numBits  int
	docs     map[uint32]docEntry
	all      *roaring.Bitmap
	postings map[uint32]*roaring.Bitmap
}

func newSegment(name string, numBits int) *segment {
	return &segment{
		name:     name,
		numBits:  numBits,
		docs:     make(map[uint32]docEntry),
		all:      roaring.New(),
		postings: make(map[uint32]*roaring.Bitmap),
	}
}

func (s *segment) add(doc uint32, e docEntry, positions []int) {
	s.docs[doc] = e
	s.all.Add(doc)
	for _, p := range positions {
		bm, ok := s.postings[uint32(p)]
		if !ok {
			bm = roaring.New()
			s.postings[uint32(p)] = bm
		}
		bm.Add(doc)
	}
}

// match returns the documents holding every bit, or nil when some bit has no
// postings at all. An empty bit list matches every document.
func (s *segment) match(bits []uint32) *roaring.Bitmap {
	if len(bits) == 0 {
		return s.all.Clone()
	}
	lists := make([]*roaring.Bitmap, 0, len(bits))
	for _, b := range bits {
		bm, ok := s.postings[b]
		if !ok {
			return nil
		}
		lists = append(lists, bm)
	}
	// Intersect from the shortest list so the running result stays small.
	sort.Slice(lists, func(i, j int) bool {
		return lists[i].GetCardinality() < lists[j].GetCardinality()
	})
	result := lists[0].Clone()
	for _, bm := range lists[1:] {
		if result.IsEmpty() {
			break
		}
		result.And(bm)
	}
	return result
}

// without returns a copy of s that drops the deleted documents, or nil when
// nothing would remain.
func (s *segment) without(name string, deleted *roaring.Bitmap) *segment {
	live := roaring.AndNot(s.all, deleted)
	if live.IsEmpty() {
		return nil
	}
	out := newSegment(name, s.numBits)
	out.all = live
	it := live.Iterator()
	for it.HasNext() {
		d := it.Next()
		out.docs[d] = s.docs[d]
	}
	for bit, bm := range s.postings {
		kept := roaring.And(bm, live)
		if !kept.IsEmpty() {
			out.postings[bit] = kept
		}
	}
	return out
}

// mergeSegments unions segments with disjoint document ids.
func mergeSegments(name string, numBits int, segs []*segment) *segment {
	out := newSegment(name, numBits)
	for _, s := range segs {
		out.all.Or(s.all)
		for d, e := range s.docs {
			out.docs[d] = e
		}
		for bit, bm := range s.postings {
			if cur, ok := out.postings[bit]; ok {
				cur.Or(bm)
			} else {
				out.postings[bit] = bm.Clone()
			}
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoding
// ─────────────────────────────────────────────────────────────────────────────

func (s *segment) encode() ([]byte, error) {
	rows := make([]docRow, 0, len(s.docs))
	for d, e := range s.docs {
		rows = append(rows, docRow{Doc: d, docEntry: e})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Doc < rows[j].Doc })
	table, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshaling doc table: %w", err)
	}

	bits := make([]uint32, 0, len(s.postings))
	for b := range s.postings {
		bits = append(bits, b)
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })

	var buf bytes.Buffer
	header := make([]byte, segmentHeader)
	binary.LittleEndian.PutUint32(header[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(header[4:8], segmentVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.numBits))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(rows)))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(bits)))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(table)))
	buf.Write(header)
	buf.Write(table)

	word := make([]byte, 8)
	for _, b := range bits {
		data, err := s.postings[b].ToBytes()
		if err != nil {
			return nil, fmt.Errorf("serializing postings for bit %d: %w", b, err)
		}
		binary.LittleEndian.PutUint32(word[0:4], b)
		binary.LittleEndian.PutUint32(word[4:8], uint32(len(data)))
		buf.Write(word)
		buf.Write(data)
	}

	sum := make([]byte, 4)
	binary.LittleEndian.PutUint32(sum, crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(sum)
	return buf.Bytes(), nil
}

func corrupted(name, reason string) error {
	return errors.New(errors.CodeIndexCorrupted, "corrupted segment").WithDetailf("segment=%s: %s", name, reason)
}

func decodeSegment(name string, data []byte) (*segment, error) {
	if len(data) < segmentHeader+4 {
		return nil, corrupted(name, "truncated")
	}
	body, sum := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(sum) {
		return nil, corrupted(name, "checksum mismatch")
	}
	if binary.LittleEndian.Uint32(body[0:4]) != segmentMagic {
		return nil, corrupted(name, "bad magic")
	}
	if v := binary.LittleEndian.Uint32(body[4:8]); v != segmentVersion {
		return nil, corrupted(name, fmt.Sprintf("unsupported version %d", v))
	}
	numBits := int(binary.LittleEndian.Uint32(body[8:12]))
	docCount := int(binary.LittleEndian.Uint32(body[12:16]))
	termCount := int(binary.LittleEndian.Uint32(body[16:20]))
	tableLen := int(binary.LittleEndian.Uint32(body[20:24]))

	off := segmentHeader
	if off+tableLen > len(body) {
		return nil, corrupted(name, "doc table out of range")
	}
	var rows []docRow
	if err := json.Unmarshal(body[off:off+tableLen], &rows); err != nil {
		return nil, corrupted(name, "doc table: "+err.Error())
	}
	if len(rows) != docCount {
		return nil, corrupted(name, "doc count mismatch")
	}
	off += tableLen

	s := newSegment(name, numBits)
	for _, r := range rows {
		s.docs[r.Doc] = r.docEntry
		s.all.Add(r.Doc)
	}
	for i := 0; i < termCount; i++ {
		if off+8 > len(body) {
			return nil, corrupted(name, "postings header out of range")
		}
		bit := binary.LittleEndian.Uint32(body[off : off+4])
		n := int(binary.LittleEndian.Uint32(body[off+4 : off+8]))
		off += 8
		if off+n > len(body) {
			return nil, corrupted(name, "postings out of range")
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(body[off : off+n]); err != nil {
			return nil, corrupted(name, fmt.Sprintf("postings for bit %d: %v", bit, err))
		}
		s.postings[bit] = bm
		off += n
	}
	if off != len(body) {
		return nil, corrupted(name, "trailing bytes")
	}
	return s, nil
}

// writeSegment persists s into dir with a temp file and rename.
func writeSegment(dir string, s *segment) error {
	data, err := s.encode()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "encoding segment")
	}
	return writeFileAtomic(filepath.Join(dir, s.name), data)
}

func readSegment(dir, name string) (*segment, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "reading segment").WithDetailf("segment=%s", name)
	}
	return decodeSegment(name, data)
}

// writeFileAtomic writes to path+".tmp", syncs, and renames over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "creating temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeStorageError, "writing temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeStorageError, "syncing temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeStorageError, "closing temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeStorageError, "renaming temp file")
	}
	return nil
}
