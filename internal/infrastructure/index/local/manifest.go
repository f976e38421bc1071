package local

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// ManifestFile names the file that defines the committed state of an index
// directory. Segment files not listed in it are garbage.
const ManifestFile = "MANIFEST.json"

const manifestVersion = 1

type manifest struct {
	Version    int       `json:"version"`
	Settings   string    `json:"settings"`
	Generation uint64    `json:"generation"`
	NextDoc    uint32    `json:"next_doc"`
	Segments   []string  `json:"segments"`
	Deleted    []byte    `json:"deleted,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (m *manifest) deletedBitmap() (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(m.Deleted) == 0 {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(m.Deleted); err != nil {
		return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "decoding tombstones")
	}
	return bm, nil
}

func (m *manifest) setDeleted(bm *roaring.Bitmap) error {
	if bm == nil || bm.IsEmpty() {
		m.Deleted = nil
		return nil
	}
	data, err := bm.ToBytes()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "encoding tombstones")
	}
	m.Deleted = data
	return nil
}

// readManifest returns nil, nil when dir holds no manifest yet.
func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "reading manifest")
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "parsing manifest")
	}
	if m.Version != manifestVersion {
		return nil, errors.New(errors.CodeIndexCorrupted, "unsupported manifest version").WithDetailf("version=%d", m.Version)
	}
	return &m, nil
}

func writeManifest(dir string, m *manifest) error {
	m.Version = manifestVersion
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "marshaling manifest")
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}
